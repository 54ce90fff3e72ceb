// Package chi is the HTTP transport: two endpoints over the translation
// pipeline, plus Prometheus metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/result"
	healthuc "github.com/louper-cloud/queryline/internal/usecase/health"
	translateuc "github.com/louper-cloud/queryline/internal/usecase/translate"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server routes HTTP requests into the translate and health use cases.
type Server struct {
	translate     *translateuc.Service
	health        *healthuc.Service
	dbName        string
	modelName     string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server. dbName and modelName are reported in
// the health payload.
func NewServer(
	translate *translateuc.Service,
	health *healthuc.Service,
	dbName, modelName string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		translate: translate,
		health:    health,
		dbName:    dbName,
		modelName: modelName,
		logger:    logger,
	}
	// Ordered: first match wins. Message text per kind is deliberately
	// generic; detail is logged upstream.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput,
			http.StatusBadRequest, KindBadRequest, "invalid request"),
		sentinelHandler(domain.ErrTimeout,
			http.StatusGatewayTimeout, KindTimeout, "request timed out"),
		sentinelHandler(domain.ErrModelUnavailable,
			http.StatusBadGateway, KindModelUnavailable, "language model unavailable"),
		sentinelHandler(domain.ErrMalformedOutput,
			http.StatusUnprocessableEntity, KindMalformedOutput, "could not interpret the question"),
		sentinelHandler(domain.ErrIncompleteQuery,
			http.StatusUnprocessableEntity, KindIncompleteQuery, "could not interpret the question"),
		sentinelHandler(domain.ErrUnsupportedOperation,
			http.StatusUnprocessableEntity, KindUnsupportedOperation, "could not interpret the question"),
		sentinelHandler(domain.ErrUnauthorizedCollection,
			http.StatusForbidden, KindUnauthorizedCollection, "query not permitted"),
		sentinelHandler(domain.ErrUnauthorizedOperation,
			http.StatusForbidden, KindUnauthorizedOperation, "query not permitted"),
		sentinelHandler(domain.ErrUnsafePayload,
			http.StatusForbidden, KindUnsafePayload, "query not permitted"),
		sentinelHandler(domain.ErrBackendUnavailable,
			http.StatusServiceUnavailable, KindBackendUnavailable, "database unavailable"),
		sentinelHandler(domain.ErrBackendRejected,
			http.StatusUnprocessableEntity, KindBackendRejected, "database rejected the generated query"),
	}
	return s
}

// Routes registers the API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/query", s.Query)
	r.Get("/api/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Query handles POST /api/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, KindBadRequest, "missing 'question' in request body")
		return
	}

	res, err := s.translate.Handle(r.Context(), req.Question, req.Collection)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ResponseEnvelope{
		Status:  "success",
		Message: res.Message(),
		Data:    resultToEnvelope(res),
	})
}

// HealthCheck handles GET /api/health. Checks are independent per component.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:   string(report.Status),
		Checks:   checks,
		Database: s.dbName,
		Model:    s.modelName,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// resultToEnvelope renders a result with documents always present, so scalar
// outcomes serialize as {"documents":[],"count":N} rather than a null list.
func resultToEnvelope(res result.Result) *QueryResult {
	docs := res.Docs()
	if docs == nil {
		docs = []map[string]any{}
	}
	return &QueryResult{
		Documents: docs,
		Count:     res.Scalar(),
		Truncated: res.Truncated(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ResponseEnvelope{
		Status: "error",
		Data:   nil,
		Error:  &ErrorBody{Kind: kind, Message: message},
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, kind, message string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, kind, message)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, KindInternalError, "internal error")
}
