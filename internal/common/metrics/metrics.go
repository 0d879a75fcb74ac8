// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeus_queries_handled_total",
			Help: "Total number of queries handled, by response source",
		},
		[]string{"source"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "zeus_stage_duration_seconds",
			Help: "Duration of pipeline stages in seconds",
		},
		[]string{"stage"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeus_cache_lookups_total",
			Help: "Total number of response cache lookups, by outcome",
		},
		[]string{"outcome"},
	)

	ClassifierResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeus_classifier_results_total",
			Help: "Total number of classifications, by stage that produced them",
		},
		[]string{"source"},
	)

	GenerationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zeus_generation_retries_total",
			Help: "Total number of generation call retries",
		},
	)

	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeus_pipeline_errors_total",
			Help: "Total number of stage failures, by error category",
		},
		[]string{"category"},
	)
)
