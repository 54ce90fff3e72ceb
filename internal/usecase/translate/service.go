// Package translate orchestrates one question end to end: prompt the model,
// extract, validate, execute. Per-request state only; nothing survives the
// request.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/result"
	logpkg "github.com/louper-cloud/queryline/internal/logger"
	"github.com/louper-cloud/queryline/internal/metrics"
)

// Service runs the translation pipeline under an end-to-end deadline.
type Service struct {
	model             ModelClient
	extract           Extractor
	validate          Validator
	exec              Executor
	prompts           *PromptBuilder
	deadline          time.Duration
	defaultCollection string
}

// New creates the orchestrator. deadline bounds the whole chain; the model
// client and executor keep their own per-call timeouts underneath it.
func New(
	model ModelClient,
	extract Extractor,
	validate Validator,
	exec Executor,
	prompts *PromptBuilder,
	deadline time.Duration,
	defaultCollection string,
) *Service {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	if defaultCollection == "" {
		defaultCollection = "users"
	}
	return &Service{
		model:             model,
		extract:           extract,
		validate:          validate,
		exec:              exec,
		prompts:           prompts,
		deadline:          deadline,
		defaultCollection: defaultCollection,
	}
}

// Handle translates question into a query and executes it. collection is an
// optional hint for the prompt; the model's target_collection is what gets
// validated. Every failure returns a wrapped domain sentinel; nothing is
// retried because the generated query may have side effects.
func (s *Service) Handle(ctx context.Context, question, collection string) (result.Result, error) {
	if question == "" {
		return result.Result{}, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if collection == "" {
		collection = s.defaultCollection
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	logger := logpkg.FromContext(ctx)

	raw, err := s.model.Complete(ctx, s.prompts.System(collection), question)
	if err != nil {
		return result.Result{}, s.fail(ctx, "model", err)
	}

	q, err := s.extract.Extract(raw)
	if err != nil {
		logger.Warn("extraction failed",
			zap.Error(err),
			zap.Int("raw_len", len(raw)),
		)
		return result.Result{}, s.fail(ctx, "extract", err)
	}

	if verdict := s.validate.Validate(q); !verdict.Allowed {
		// Full rejection detail stays in the logs; the caller sees only the kind.
		logger.Warn("query rejected by policy",
			zap.Error(verdict.Err),
			zap.String("collection", q.Collection()),
			zap.String("operation", string(q.Operation())),
		)
		metrics.StageFailuresTotal.WithLabelValues("validate", kindOf(verdict.Err)).Inc()
		metrics.QueriesTotal.WithLabelValues(string(q.Operation()), "error").Inc()
		return result.Result{}, verdict.Err
	}

	res, err := s.exec.Execute(ctx, q)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(string(q.Operation()), "error").Inc()
		return result.Result{}, s.fail(ctx, "execute", err)
	}

	// The deadline may have expired while the call was in flight; the result
	// is then discarded rather than returned late.
	if ctx.Err() != nil {
		return result.Result{}, s.fail(ctx, "execute", ctx.Err())
	}

	if res.Truncated() {
		metrics.ResultsTruncatedTotal.Inc()
	}
	metrics.QueriesTotal.WithLabelValues(string(q.Operation()), "success").Inc()

	logger.Info("query executed",
		zap.String("collection", q.Collection()),
		zap.String("operation", string(q.Operation())),
		zap.Int("documents", len(res.Docs())),
		zap.Bool("truncated", res.Truncated()),
	)

	return res, nil
}

// fail maps deadline expiry to ErrTimeout regardless of the failing stage and
// records the stage failure metric.
func (s *Service) fail(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		err = fmt.Errorf("stage %s: %w", stage, domain.ErrTimeout)
	}
	metrics.StageFailuresTotal.WithLabelValues(stage, kindOf(err)).Inc()
	return err
}

// kindOf returns a stable metric label for a wrapped domain sentinel.
func kindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, domain.ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, domain.ErrIncompleteQuery):
		return "incomplete_query"
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.Is(err, domain.ErrUnauthorizedCollection):
		return "unauthorized_collection"
	case errors.Is(err, domain.ErrUnauthorizedOperation):
		return "unauthorized_operation"
	case errors.Is(err, domain.ErrUnsafePayload):
		return "unsafe_payload"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, domain.ErrBackendRejected):
		return "backend_rejected"
	}
	return "internal"
}
