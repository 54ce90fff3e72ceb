package translate

import (
	"fmt"
	"strings"

	"github.com/louper-cloud/queryline/internal/domain/query"
)

// PromptBuilder renders the system prompt instructing the model to emit the
// expected query document. Schema hints come from configuration; the shape
// contract (target_collection, operation, payload) is fixed.
type PromptBuilder struct {
	schemaHints string
}

// NewPromptBuilder creates a prompt builder. schemaHints is a free-form
// description of the collection fields, shown to the model verbatim.
func NewPromptBuilder(schemaHints string) *PromptBuilder {
	return &PromptBuilder{schemaHints: strings.TrimSpace(schemaHints)}
}

// System renders the system prompt for a question against collection.
func (b *PromptBuilder) System(collection string) string {
	ops := make([]string, 0, len(query.Operations()))
	for _, op := range query.Operations() {
		ops = append(ops, string(op))
	}

	var sb strings.Builder
	sb.WriteString("You are a MongoDB query generator. ")
	sb.WriteString("Convert the user's natural language request into a single JSON object, nothing else.\n\n")
	sb.WriteString("The object must contain exactly these fields:\n")
	fmt.Fprintf(&sb, "  \"target_collection\": the collection to query (default %q)\n", collection)
	fmt.Fprintf(&sb, "  \"operation\": one of %s\n", strings.Join(ops, ", "))
	sb.WriteString("  \"payload\": a filter object for find/count/delete, " +
		"a stage array for aggregate, or {\"filter\": ..., \"update\": ...} for update\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Respond with the JSON object only, no prose and no code fences.\n")
	sb.WriteString("2. For counting requests use the count operation, not an aggregation.\n")
	sb.WriteString("3. Use exact field names and values.\n")

	if b.schemaHints != "" {
		sb.WriteString("\nSchema fields:\n")
		sb.WriteString(b.schemaHints)
		sb.WriteString("\n")
	}

	return sb.String()
}
