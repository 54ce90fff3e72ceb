// Package result holds the bounded outcome of one executed query.
package result

import "fmt"

// Result is the serializable outcome of a query execution. Exactly one of
// Documents (find, aggregate) or Count (count, update, delete) carries data.
type Result struct {
	documents []map[string]any
	count     *int64
	truncated bool
}

// Documents creates a document-list result. truncated marks that the true
// result set exceeded the configured bound and was cut off.
func Documents(docs []map[string]any, truncated bool) Result {
	return Result{documents: docs, truncated: truncated}
}

// Count creates a scalar result (count, modified count, deleted count).
func Count(n int64) Result {
	return Result{count: &n}
}

// Docs returns the result documents, nil for scalar results.
func (r Result) Docs() []map[string]any { return r.documents }

// Scalar returns the scalar value, nil for document results.
func (r Result) Scalar() *int64 { return r.count }

// Truncated reports whether the document list was cut at the result bound.
func (r Result) Truncated() bool { return r.truncated }

// Message renders the human-readable summary exposed alongside the data.
func (r Result) Message() string {
	if r.count != nil {
		return fmt.Sprintf("Count: %d matches", *r.count)
	}
	if len(r.documents) == 0 {
		return "No matches found"
	}
	if r.truncated {
		return fmt.Sprintf("Found %d matches (truncated)", len(r.documents))
	}
	return fmt.Sprintf("Found %d matches", len(r.documents))
}
