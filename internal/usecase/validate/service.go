// Package validate enforces the allow-list policy on structured queries.
// It is the sole enforcement point before execution; the executor trusts it.
package validate

import (
	"fmt"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/policy"
	"github.com/louper-cloud/queryline/internal/domain/query"
)

// Verdict is the outcome of validating one query. When disallowed, Err wraps
// the matching domain sentinel and carries the full reason; callers must not
// forward that reason to the client.
type Verdict struct {
	Allowed bool
	Err     error
}

// Service validates queries against a fixed policy.
type Service struct {
	policy policy.Policy
}

// New creates a validation service bound to an immutable policy.
func New(p policy.Policy) *Service {
	return &Service{policy: p}
}

// Validate checks q against the policy. Checks run in order and short-circuit:
// collection allow-list, operation allow-list, then a recursive payload walk
// for forbidden operators and nesting depth. Stateless: the same query and
// policy always produce the same verdict.
func (s *Service) Validate(q query.Query) Verdict {
	if !s.policy.AllowsCollection(q.Collection()) {
		return deny(fmt.Errorf("%w: %q", domain.ErrUnauthorizedCollection, q.Collection()))
	}

	if !s.policy.AllowsOperation(q.Operation()) {
		return deny(fmt.Errorf("%w: %q", domain.ErrUnauthorizedOperation, q.Operation()))
	}

	for _, payload := range q.Payloads() {
		if err := s.walk(payload, 1); err != nil {
			return deny(err)
		}
	}

	return Verdict{Allowed: true}
}

// walk recursively inspects a payload value. depth counts nested containers;
// keys are checked at every level, not just the top.
func (s *Service) walk(v any, depth int) error {
	if depth > s.policy.MaxPayloadDepth() {
		return fmt.Errorf("%w: payload nesting exceeds depth %d", domain.ErrUnsafePayload, s.policy.MaxPayloadDepth())
	}

	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if s.policy.ForbidsKey(k) {
				return fmt.Errorf("%w: forbidden operator %q", domain.ErrUnsafePayload, k)
			}
			if err := s.walk(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := s.walk(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func deny(err error) Verdict {
	return Verdict{Allowed: false, Err: err}
}
