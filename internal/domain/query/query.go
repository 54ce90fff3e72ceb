// Package query defines the structured query derived from model output.
package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louper-cloud/queryline/internal/domain"
)

// Operation is one of the fixed set of backend operations a query may request.
type Operation string

const (
	// OpFind reads documents matching a filter.
	OpFind Operation = "find"
	// OpCount counts documents matching a filter.
	OpCount Operation = "count"
	// OpAggregate runs an aggregation pipeline.
	OpAggregate Operation = "aggregate"
	// OpUpdate modifies documents matching a filter.
	OpUpdate Operation = "update"
	// OpDelete removes documents matching a filter.
	OpDelete Operation = "delete"
)

// Operations lists every recognized operation.
func Operations() []Operation {
	return []Operation{OpFind, OpCount, OpAggregate, OpUpdate, OpDelete}
}

// ParseOperation case-normalizes s into an Operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpFind, OpCount, OpAggregate, OpUpdate, OpDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, s)
}

// Query is the validated-shape representation of one model-generated query.
// It is immutable after construction; validation never mutates it.
type Query struct {
	collection string
	op         Operation
	filter     map[string]any
	pipeline   []any
	update     map[string]any
}

// New builds a Query from a target collection, an operation, and the raw
// payload document the model produced. The payload must match the shape the
// operation requires: an object filter for find/count/delete, a stage array
// for aggregate, and {filter, update} objects for update.
func New(collection string, op Operation, payload json.RawMessage) (Query, error) {
	if collection == "" {
		return Query{}, fmt.Errorf("%w: target_collection is empty", domain.ErrIncompleteQuery)
	}
	if len(payload) == 0 {
		return Query{}, fmt.Errorf("%w: payload is missing", domain.ErrIncompleteQuery)
	}

	q := Query{collection: collection, op: op}

	switch op {
	case OpFind, OpCount, OpDelete:
		filter, err := decodeObject(payload)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %s payload must be a filter object: %v", domain.ErrIncompleteQuery, op, err)
		}
		q.filter = filter

	case OpAggregate:
		var stages []any
		if err := json.Unmarshal(payload, &stages); err != nil {
			return Query{}, fmt.Errorf("%w: aggregate payload must be a stage array: %v", domain.ErrIncompleteQuery, err)
		}
		for i, st := range stages {
			if _, ok := st.(map[string]any); !ok {
				return Query{}, fmt.Errorf("%w: aggregate stage %d is not an object", domain.ErrIncompleteQuery, i)
			}
		}
		q.pipeline = stages

	case OpUpdate:
		var body struct {
			Filter json.RawMessage `json:"filter"`
			Update json.RawMessage `json:"update"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return Query{}, fmt.Errorf("%w: update payload must be an object: %v", domain.ErrIncompleteQuery, err)
		}
		if len(body.Filter) == 0 || len(body.Update) == 0 {
			return Query{}, fmt.Errorf("%w: update payload requires filter and update objects", domain.ErrIncompleteQuery)
		}
		filter, err := decodeObject(body.Filter)
		if err != nil {
			return Query{}, fmt.Errorf("%w: update filter must be an object: %v", domain.ErrIncompleteQuery, err)
		}
		update, err := decodeObject(body.Update)
		if err != nil {
			return Query{}, fmt.Errorf("%w: update document must be an object: %v", domain.ErrIncompleteQuery, err)
		}
		q.filter = filter
		q.update = update

	default:
		return Query{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, op)
	}

	return q, nil
}

// Collection returns the target collection name.
func (q Query) Collection() string { return q.collection }

// Operation returns the requested operation.
func (q Query) Operation() Operation { return q.op }

// Filter returns the filter document (find, count, delete, update).
func (q Query) Filter() map[string]any { return q.filter }

// Pipeline returns the aggregation stages (aggregate only).
func (q Query) Pipeline() []any { return q.pipeline }

// Update returns the update document (update only).
func (q Query) Update() map[string]any { return q.update }

// Payloads returns every payload document of the query for policy walks:
// filter, update, and each pipeline stage, in that order.
func (q Query) Payloads() []any {
	var out []any
	if q.filter != nil {
		out = append(out, q.filter)
	}
	if q.update != nil {
		out = append(out, q.update)
	}
	out = append(out, q.pipeline...)
	return out
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
