package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricsOnce sync.Once

var (
	workflowDuration *prometheus.HistogramVec
	stepOutcomes     *prometheus.CounterVec
)

// registerMetrics registers the engine's Prometheus metrics on the default
// registry exactly once, following pkg/http/middleware's RequestMetrics
// once.Do pattern.
func registerMetrics() {
	metricsOnce.Do(func() {
		workflowDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hwprovisiond_workflow_duration_seconds",
				Help:    "Duration of a workflow run from start to terminal status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		)
		stepOutcomes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hwprovisiond_step_outcomes_total",
				Help: "Count of step executions by step name and outcome status.",
			},
			[]string{"step", "status"},
		)
	})
}
