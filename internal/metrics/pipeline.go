package metrics

import "github.com/prometheus/client_golang/prometheus"

// Translation pipeline Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "queries_total",
			Help:      "Total number of translated queries by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: "success" / "error"
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by stage and error kind",
		},
		[]string{"stage", "kind"}, // stage: "model" / "extract" / "validate" / "execute"
	)

	ResultsTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "queryline",
			Name:      "results_truncated_total",
			Help:      "Result sets cut at the configured bound",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(StageFailuresTotal)
	prometheus.MustRegister(ResultsTruncatedTotal)
	pipelineMetricsRegistered = true
}
