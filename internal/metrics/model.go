package metrics

import "github.com/prometheus/client_golang/prometheus"

// Model (completion service) Prometheus metrics.
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "model_requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"model", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "queryline",
			Name:      "model_request_duration_seconds",
			Help:      "Completion request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "model_tokens_total",
			Help:      "Total completion tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion" / "total"
	)

	ModelErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "model_errors_total",
			Help:      "Total completion errors",
		},
		[]string{"model", "error_type"},
	)
)

var modelMetricsRegistered bool

// RegisterModelMetrics registers completion metrics. Must be called once from main.
func RegisterModelMetrics() {
	if modelMetricsRegistered {
		return
	}
	prometheus.MustRegister(ModelRequestsTotal)
	prometheus.MustRegister(ModelRequestDuration)
	prometheus.MustRegister(ModelTokensTotal)
	prometheus.MustRegister(ModelErrorsTotal)
	modelMetricsRegistered = true
}
