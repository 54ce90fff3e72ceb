// Package extract parses raw model output into a structured query.
//
// This is the layer most exposed to adversarial or malformed model text:
// extraction is all-or-nothing and the text is never evaluated or passed to
// the backend as-is.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/query"
)

// Service turns raw completion text into a query.Query.
type Service struct{}

// New creates an extraction service.
func New() *Service { return &Service{} }

// modelOutput is the exact document shape the model is instructed to return.
type modelOutput struct {
	TargetCollection *string         `json:"target_collection"`
	Operation        *string         `json:"operation"`
	Payload          json.RawMessage `json:"payload"`
}

// Extract parses raw into a structured query. Failure kinds:
// ErrMalformedOutput when the text is not a JSON document,
// ErrIncompleteQuery when required fields are missing, mis-shaped, or
// accompanied by unknown fields,
// ErrUnsupportedOperation when the operation is outside the fixed set.
func (s *Service) Extract(raw string) (query.Query, error) {
	text := stripFences(raw)
	if text == "" {
		return query.Query{}, fmt.Errorf("%w: empty model response", domain.ErrMalformedOutput)
	}

	if !json.Valid([]byte(text)) {
		return query.Query{}, fmt.Errorf("%w: not a JSON document", domain.ErrMalformedOutput)
	}

	// The model is instructed to emit exactly three fields; anything extra
	// means it did not follow the contract and the document is rejected.
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var out modelOutput
	if err := dec.Decode(&out); err != nil {
		// Valid JSON but not an object of exactly the expected fields.
		return query.Query{}, fmt.Errorf("%w: %v", domain.ErrIncompleteQuery, err)
	}

	if out.TargetCollection == nil || *out.TargetCollection == "" {
		return query.Query{}, fmt.Errorf("%w: target_collection is missing", domain.ErrIncompleteQuery)
	}
	if out.Operation == nil || *out.Operation == "" {
		return query.Query{}, fmt.Errorf("%w: operation is missing", domain.ErrIncompleteQuery)
	}
	if len(out.Payload) == 0 {
		return query.Query{}, fmt.Errorf("%w: payload is missing", domain.ErrIncompleteQuery)
	}

	op, err := query.ParseOperation(*out.Operation)
	if err != nil {
		return query.Query{}, err
	}

	return query.New(*out.TargetCollection, op, out.Payload)
}

// stripFences removes markdown code fences that chat models habitually wrap
// around JSON, e.g. ```json ... ```.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the optional language tag on the opening fence line.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		first := strings.TrimSpace(text[:idx])
		if first == "" || isFenceTag(first) {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
