package translate

import (
	"context"

	"github.com/louper-cloud/queryline/internal/domain/query"
	"github.com/louper-cloud/queryline/internal/domain/result"
	"github.com/louper-cloud/queryline/internal/usecase/validate"
)

// ModelClient sends one prompt to the completion service.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Extractor parses raw model text into a structured query.
type Extractor interface {
	Extract(raw string) (query.Query, error)
}

// Validator applies the allow-list policy to a structured query.
type Validator interface {
	Validate(q query.Query) validate.Verdict
}

// Executor runs a validated query against the backend.
type Executor interface {
	Execute(ctx context.Context, q query.Query) (result.Result, error)
}
