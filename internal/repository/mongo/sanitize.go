package mongo

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bookkeepingFields are backend-internal fields stripped from result documents.
var bookkeepingFields = map[string]struct{}{
	"_id": {},
	"__v": {},
}

// sanitizeDocument converts a decoded BSON document into a JSON-serializable
// map and drops backend bookkeeping fields at the top level.
func sanitizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, skip := bookkeepingFields[k]; skip {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

// sanitizeValue recursively rewrites BSON types into JSON-compatible ones:
// ObjectID and Binary become strings, DateTime becomes RFC 3339, Decimal128
// becomes its string form, nested documents and arrays are walked.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = sanitizeValue(child)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = sanitizeValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitizeValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitizeValue(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = sanitizeValue(child)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Binary:
		return string(val.Data)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

// approxSize estimates the serialized size of a sanitized document for the
// byte bound. Documents that fail to marshal count as zero.
func approxSize(doc map[string]any) int {
	b, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	return len(b)
}
