package chi

// QueryRequest is the body of POST /api/query. Collection is an optional hint
// for prompt construction; the generated query is still policy-checked.
type QueryRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection,omitempty"`
}

// ResponseEnvelope is the sole externally visible output shape.
type ResponseEnvelope struct {
	Status  string       `json:"status"` // "success" | "error"
	Message string       `json:"message,omitempty"`
	Data    *QueryResult `json:"data"`
	Error   *ErrorBody   `json:"error,omitempty"`
}

// QueryResult carries either a document list or a scalar count.
type QueryResult struct {
	Documents []map[string]any `json:"documents"`
	Count     *int64           `json:"count,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
}

// ErrorBody exposes the stable error kind plus a generic message. Internal
// detail (policy reasons, backend messages) never appears here.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Database string            `json:"database,omitempty"`
	Model    string            `json:"model,omitempty"`
}

// Stable external error kinds.
const (
	KindModelUnavailable       = "model_unavailable"
	KindMalformedOutput        = "malformed_output"
	KindIncompleteQuery        = "incomplete_query"
	KindUnsupportedOperation   = "unsupported_operation"
	KindUnauthorizedCollection = "unauthorized_collection"
	KindUnauthorizedOperation  = "unauthorized_operation"
	KindUnsafePayload          = "unsafe_payload"
	KindBackendUnavailable     = "backend_unavailable"
	KindBackendRejected        = "backend_rejected"
	KindTimeout                = "timeout"
	KindBadRequest             = "bad_request"
	KindUnauthorized           = "unauthorized"
	KindInternalError          = "internal_error"
)
