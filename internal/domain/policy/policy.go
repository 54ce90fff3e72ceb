// Package policy holds the immutable allow-list policy applied to every
// model-generated query before execution.
package policy

import (
	"fmt"
	"strings"

	"github.com/louper-cloud/queryline/internal/domain/query"
)

const defaultMaxPayloadDepth = 8

// DefaultForbiddenOperators are operators that enable server-side code
// execution or unrestricted writes and are rejected unless overridden.
var DefaultForbiddenOperators = []string{"$where", "$function", "$accumulator", "$out", "$merge"}

// Policy enumerates what a validated query is allowed to touch.
// Constructed once at startup and never mutated afterwards.
type Policy struct {
	collections map[string]struct{}
	operations  map[query.Operation]struct{}
	forbidden   map[string]struct{}
	maxDepth    int
}

// New builds a Policy. collections must be non-empty; operations entries must
// parse as recognized operations. Empty forbidden falls back to
// DefaultForbiddenOperators; maxDepth <= 0 falls back to the default depth.
func New(collections, operations, forbidden []string, maxDepth int) (Policy, error) {
	if len(collections) == 0 {
		return Policy{}, fmt.Errorf("policy requires at least one allowed collection")
	}

	p := Policy{
		collections: make(map[string]struct{}, len(collections)),
		operations:  make(map[query.Operation]struct{}, len(operations)),
		forbidden:   make(map[string]struct{}),
		maxDepth:    maxDepth,
	}
	for _, c := range collections {
		if c = strings.TrimSpace(c); c != "" {
			p.collections[c] = struct{}{}
		}
	}
	if len(p.collections) == 0 {
		return Policy{}, fmt.Errorf("policy requires at least one allowed collection")
	}

	for _, o := range operations {
		op, err := query.ParseOperation(o)
		if err != nil {
			return Policy{}, fmt.Errorf("allowed_operations: unknown operation %q", o)
		}
		p.operations[op] = struct{}{}
	}
	if len(p.operations) == 0 {
		return Policy{}, fmt.Errorf("policy requires at least one allowed operation")
	}

	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenOperators
	}
	for _, f := range forbidden {
		if f = strings.TrimSpace(f); f != "" {
			p.forbidden[f] = struct{}{}
		}
	}

	if p.maxDepth <= 0 {
		p.maxDepth = defaultMaxPayloadDepth
	}

	return p, nil
}

// AllowsCollection reports whether name is in the collection allow-list.
func (p Policy) AllowsCollection(name string) bool {
	_, ok := p.collections[name]
	return ok
}

// AllowsOperation reports whether op is in the operation allow-list.
func (p Policy) AllowsOperation(op query.Operation) bool {
	_, ok := p.operations[op]
	return ok
}

// ForbidsKey reports whether a payload key is a forbidden operator.
func (p Policy) ForbidsKey(key string) bool {
	_, ok := p.forbidden[key]
	return ok
}

// MaxPayloadDepth returns the maximum allowed payload nesting depth.
func (p Policy) MaxPayloadDepth() int { return p.maxDepth }

// Collections returns the allowed collection names (unordered copy).
func (p Policy) Collections() []string {
	out := make([]string, 0, len(p.collections))
	for c := range p.collections {
		out = append(out, c)
	}
	return out
}

// Operations returns the allowed operations (unordered copy).
func (p Policy) Operations() []query.Operation {
	out := make([]query.Operation, 0, len(p.operations))
	for o := range p.operations {
		out = append(out, o)
	}
	return out
}
