package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/policy"
	"github.com/louper-cloud/queryline/internal/domain/query"
	"github.com/louper-cloud/queryline/internal/domain/result"
	"github.com/louper-cloud/queryline/internal/usecase/extract"
	healthuc "github.com/louper-cloud/queryline/internal/usecase/health"
	translateuc "github.com/louper-cloud/queryline/internal/usecase/translate"
	validateuc "github.com/louper-cloud/queryline/internal/usecase/validate"
)

// --- Mocks ---

type mockModel struct {
	response string
	err      error
}

func (m *mockModel) Complete(_ context.Context, _, _ string) (string, error) {
	return m.response, m.err
}

type mockExecutor struct {
	result  result.Result
	err     error
	pingErr error
	calls   int
}

func (m *mockExecutor) Execute(_ context.Context, _ query.Query) (result.Result, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockExecutor) Ping(_ context.Context) error { return m.pingErr }

type mockModelChecker struct {
	err error
}

func (m *mockModelChecker) HealthCheck(_ context.Context) error { return m.err }

func newTestServer(t *testing.T, model *mockModel, exec *mockExecutor, modelErr error) http.Handler {
	t.Helper()

	pol, err := policy.New([]string{"users", "trials"}, []string{"find", "count"}, nil, 8)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}

	translateSvc := translateuc.New(
		model,
		extract.New(),
		validateuc.New(pol),
		exec,
		translateuc.NewPromptBuilder(""),
		time.Second,
		"users",
	)
	healthSvc := healthuc.New(exec, &mockModelChecker{err: modelErr})

	server := NewServer(translateSvc, healthSvc, "louperdb", "llama3.2", zap.NewNop())
	r := chirouter.NewRouter()
	server.Routes(r)
	return r
}

func postQuery(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, ResponseEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env ResponseEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rr, env
}

// --- Tests ---

func TestQuery_CountSuccess(t *testing.T) {
	model := &mockModel{
		response: `{"target_collection":"users","operation":"count","payload":{"plan":"pro"}}`,
	}
	exec := &mockExecutor{result: result.Count(7)}
	h := newTestServer(t, model, exec, nil)

	rr, env := postQuery(t, h, `{"question":"count pro users"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env.Status != "success" {
		t.Errorf("expected success status, got %q", env.Status)
	}
	if env.Data == nil || env.Data.Count == nil || *env.Data.Count != 7 {
		t.Errorf("expected count 7, got %+v", env.Data)
	}
	// Scalar results carry an empty document list, never null.
	if env.Data != nil && (env.Data.Documents == nil || len(env.Data.Documents) != 0) {
		t.Errorf("expected empty document list alongside count, got %+v", env.Data.Documents)
	}
	if env.Message != "Count: 7 matches" {
		t.Errorf("unexpected message %q", env.Message)
	}
}

func TestQuery_EmptyResultIsSuccess(t *testing.T) {
	model := &mockModel{
		response: `{"target_collection":"users","operation":"find","payload":{"plan":"enterprise"}}`,
	}
	exec := &mockExecutor{result: result.Documents(nil, false)}
	h := newTestServer(t, model, exec, nil)

	rr, env := postQuery(t, h, `{"question":"enterprise users"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env.Data == nil || env.Data.Documents == nil || len(env.Data.Documents) != 0 {
		t.Errorf("expected empty document list, got %+v", env.Data)
	}
	if env.Message != "No matches found" {
		t.Errorf("unexpected message %q", env.Message)
	}
}

func TestQuery_MissingQuestion(t *testing.T) {
	h := newTestServer(t, &mockModel{}, &mockExecutor{}, nil)

	rr, env := postQuery(t, h, `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if env.Error == nil || env.Error.Kind != KindBadRequest {
		t.Errorf("expected bad_request kind, got %+v", env.Error)
	}
}

func TestQuery_InvalidBody(t *testing.T) {
	h := newTestServer(t, &mockModel{}, &mockExecutor{}, nil)

	rr, _ := postQuery(t, h, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		model      *mockModel
		exec       *mockExecutor
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{
			name:       "model unavailable",
			model:      &mockModel{err: domain.ErrModelUnavailable},
			exec:       &mockExecutor{},
			wantStatus: http.StatusBadGateway,
			wantKind:   KindModelUnavailable,
			wantMsg:    "language model unavailable",
		},
		{
			name:       "free text output",
			model:      &mockModel{response: "no query here"},
			exec:       &mockExecutor{},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindMalformedOutput,
			wantMsg:    "could not interpret the question",
		},
		{
			name:       "extra unknown fields",
			model:      &mockModel{response: `{"target_collection":"users","operation":"find","payload":{},"explanation":"because"}`},
			exec:       &mockExecutor{},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindIncompleteQuery,
			wantMsg:    "could not interpret the question",
		},
		{
			name:       "unsupported operation",
			model:      &mockModel{response: `{"target_collection":"users","operation":"drop","payload":{}}`},
			exec:       &mockExecutor{},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindUnsupportedOperation,
			wantMsg:    "could not interpret the question",
		},
		{
			name:       "unauthorized collection",
			model:      &mockModel{response: `{"target_collection":"admin_secrets","operation":"find","payload":{}}`},
			exec:       &mockExecutor{},
			wantStatus: http.StatusForbidden,
			wantKind:   KindUnauthorizedCollection,
			wantMsg:    "query not permitted",
		},
		{
			name:       "unauthorized operation",
			model:      &mockModel{response: `{"target_collection":"trials","operation":"delete","payload":{}}`},
			exec:       &mockExecutor{},
			wantStatus: http.StatusForbidden,
			wantKind:   KindUnauthorizedOperation,
			wantMsg:    "query not permitted",
		},
		{
			name:       "unsafe payload",
			model:      &mockModel{response: `{"target_collection":"trials","operation":"find","payload":{"$where":"..."}}`},
			exec:       &mockExecutor{},
			wantStatus: http.StatusForbidden,
			wantKind:   KindUnsafePayload,
			wantMsg:    "query not permitted",
		},
		{
			name:       "backend unavailable",
			model:      &mockModel{response: `{"target_collection":"users","operation":"find","payload":{}}`},
			exec:       &mockExecutor{err: domain.ErrBackendUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   KindBackendUnavailable,
			wantMsg:    "database unavailable",
		},
		{
			name:       "backend rejected",
			model:      &mockModel{response: `{"target_collection":"users","operation":"find","payload":{}}`},
			exec:       &mockExecutor{err: domain.ErrBackendRejected},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindBackendRejected,
			wantMsg:    "database rejected the generated query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.model, tt.exec, nil)

			rr, env := postQuery(t, h, `{"question":"anything"}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if env.Status != "error" {
				t.Errorf("expected error status, got %q", env.Status)
			}
			if env.Error == nil || env.Error.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %+v", tt.wantKind, env.Error)
			}
			if env.Error != nil && env.Error.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, env.Error.Message)
			}
			if env.Data != nil {
				t.Errorf("error envelope must carry no data, got %+v", env.Data)
			}
		})
	}
}

// Policy detail never leaks into the error envelope.
func TestQuery_PolicyReasonWithheld(t *testing.T) {
	model := &mockModel{response: `{"target_collection":"admin_secrets","operation":"find","payload":{}}`}
	h := newTestServer(t, model, &mockExecutor{}, nil)

	_, env := postQuery(t, h, `{"question":"show admin secrets"}`)
	if env.Error == nil {
		t.Fatal("expected error body")
	}
	if env.Error.Message != "query not permitted" {
		t.Errorf("policy reason leaked: %q", env.Error.Message)
	}
}

func TestHealth_AllHealthy(t *testing.T) {
	h := newTestServer(t, &mockModel{}, &mockExecutor{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected ok, got %q", resp.Status)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["model"] != "ok" {
		t.Errorf("unexpected checks: %v", resp.Checks)
	}
	if resp.Database != "louperdb" || resp.Model != "llama3.2" {
		t.Errorf("expected configured names in payload, got %q %q", resp.Database, resp.Model)
	}
}

func TestHealth_DegradedModel(t *testing.T) {
	h := newTestServer(t, &mockModel{}, &mockExecutor{}, errors.New("model down"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	if resp.Checks["database"] != "ok" {
		t.Errorf("database check should stay independent, got %v", resp.Checks)
	}
	if resp.Checks["model"] != "error" {
		t.Errorf("expected model error, got %v", resp.Checks)
	}
}
