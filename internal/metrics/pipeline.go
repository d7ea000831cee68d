package metrics

import "github.com/prometheus/client_golang/prometheus"

// Classification pipeline Prometheus metrics.
var (
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hscodex",
			Name:      "classifications_total",
			Help:      "Total classification attempts",
		},
		[]string{"outcome"}, // classified, no_candidates, questions
	)

	ClassificationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hscodex",
			Name:      "classification_confidence",
			Help:      "Confidence of the top classification result",
			Buckets:   []float64{10, 25, 50, 65, 75, 85, 90, 95, 100},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hscodex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // analyze, retrieve, rules, aggregate, catchall, questions
	)

	RetrievalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hscodex",
			Name:      "retrieval_failures_total",
			Help:      "Retrieval strategies that failed and were degraded around",
		},
		[]string{"strategy"}, // keyword, vector, hierarchy
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(ClassificationConfidence)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RetrievalFailuresTotal)
	pipelineMetricsRegistered = true
}
