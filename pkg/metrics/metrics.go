// Package metrics exposes Prometheus instrumentation for the ALNS engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the container for every engine-run counter/gauge/histogram.
type Metrics struct {
	IterationsTotal   *prometheus.CounterVec
	AcceptedTotal     *prometheus.CounterVec
	ReheatsTotal      *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	CurrentCost       *prometheus.GaugeVec
	BestCost          *prometheus.GaugeVec
	Temperature       *prometheus.GaugeVec
	OperatorWeight    *prometheus.GaugeVec
	RolloverCostTotal *prometheus.CounterVec
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the engine's metric set.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		IterationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "iterations_total",
				Help:      "Total number of ALNS iterations executed",
			},
			[]string{"run_id"},
		),
		AcceptedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "accepted_total",
				Help:      "Total number of accepted candidate solutions",
			},
			[]string{"run_id"},
		),
		ReheatsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reheats_total",
				Help:      "Total number of reheating events",
			},
			[]string{"run_id"},
		),
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total number of engine runs started",
			},
			[]string{"variant"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of an engine run",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"variant"},
		),
		CurrentCost: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "current_cost",
				Help:      "Cost of the current accepted solution",
			},
			[]string{"run_id"},
		),
		BestCost: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "best_cost",
				Help:      "Cost of the best solution found so far",
			},
			[]string{"run_id"},
		),
		Temperature: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "temperature",
				Help:      "Current simulated-annealing temperature",
			},
			[]string{"run_id"},
		),
		OperatorWeight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operator_weight",
				Help:      "Current adaptive weight of a destroy/repair operator",
			},
			[]string{"run_id", "kind", "operator"},
		),
		RolloverCostTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rollover_cost_total",
				Help:      "Accumulated day-0 cost across rolling-horizon rollovers",
			},
			[]string{"driver_id"},
		),
	}
	defaultMetrics = m
	return m
}

// Default returns the package-level metrics set, initializing it with the
// "alns" namespace and "engine" subsystem if InitMetrics has not been
// called yet.
func Default() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("alns", "engine")
	}
	return defaultMetrics
}
