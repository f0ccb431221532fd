// Package metrics provides Prometheus collectors for the clip store, the
// timeline sequencer and the flag workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clipreel"

var (
	// storeOperationsTotal counts store operations by outcome.
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"op", "outcome"}, // outcome: ok, not_found, validation, storage, error
	)

	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Histogram of store operation duration in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	sequencerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequencer_transitions_total",
			Help:      "Total number of timeline sequencer transitions by target phase",
		},
		[]string{"phase"},
	)

	flagOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_workflow_outcomes_total",
			Help:      "Total number of finished recordings by flag workflow outcome",
		},
		[]string{"outcome"},
	)
)

var allMetrics = []prometheus.Collector{
	storeOperationsTotal,
	storeOperationDuration,
	sequencerTransitionsTotal,
	flagOutcomesTotal,
}

// ObserveStoreOp records one completed store operation.
func ObserveStoreOp(op, outcome string, elapsed time.Duration) {
	storeOperationsTotal.WithLabelValues(op, outcome).Inc()
	storeOperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func RecordTransition(phase string) {
	sequencerTransitionsTotal.WithLabelValues(phase).Inc()
}

func RecordFlagOutcome(outcome string) {
	flagOutcomesTotal.WithLabelValues(outcome).Inc()
}

// NewRegistry returns a registry holding the clipreel collectors plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
