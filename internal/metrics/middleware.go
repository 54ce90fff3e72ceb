// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the translation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "queryline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			// Query latency is dominated by the model call, so the tail
			// buckets stretch toward the pipeline deadline.
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
}

// Middleware records per-request duration and count. Paths are labeled by
// the chi route pattern to keep label cardinality bounded.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := normalizePath(chi.RouteContext(r.Context()).RoutePattern())
			code := ww.Status()
			if code == 0 {
				// Handler returned without writing anything.
				code = http.StatusOK
			}
			status := strconv.Itoa(code)

			httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// normalizePath guards against unmatched routes producing an empty pattern.
func normalizePath(path string) string {
	if path == "" {
		return "unknown"
	}
	return path
}
