// Package metrics provides Prometheus metrics export for the taskgraph
// engine and its Scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports engine metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// TaskEngine metrics
	statusTransitions *prometheus.CounterVec
	taskOperations    *prometheus.CounterVec

	// ActionEvaluator metrics
	actionsDispatched *prometheus.CounterVec
	actionLatency     *prometheus.HistogramVec

	// Scheduler metrics
	schedulerTickDuration prometheus.Histogram
	schedulerBacklog      prometheus.Gauge
	scheduledOutcomes     *prometheus.CounterVec
}

// Config configures the Exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}
}

// New creates a new metrics Exporter and registers its collectors.
func New(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgraph",
			Subsystem: "engine",
			Name:      "status_transitions_total",
			Help:      "Total number of task status transitions.",
		},
		[]string{"from_status", "to_status"},
	)

	e.taskOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgraph",
			Subsystem: "engine",
			Name:      "task_operations_total",
			Help:      "Total number of TaskEngine operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	e.actionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgraph",
			Subsystem: "actions",
			Name:      "dispatched_total",
			Help:      "Total number of DependencyActions dispatched by type and status.",
		},
		[]string{"action_type", "status"},
	)

	e.actionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Subsystem: "actions",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency of a single action dispatch, including Notifier round trips.",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"action_type"},
	)

	e.schedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single Scheduler worker tick.",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.schedulerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskgraph",
			Subsystem: "scheduler",
			Name:      "backlog",
			Help:      "Number of due ScheduledActions claimed at the start of the last tick (at most the batch size).",
		},
	)

	e.scheduledOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgraph",
			Subsystem: "scheduler",
			Name:      "outcomes_total",
			Help:      "Total number of ScheduledAction outcomes by terminal status.",
		},
		[]string{"action_type", "status"},
	)

	registry.MustRegister(
		e.statusTransitions,
		e.taskOperations,
		e.actionsDispatched,
		e.actionLatency,
		e.schedulerTickDuration,
		e.schedulerBacklog,
		e.scheduledOutcomes,
	)

	return e
}

// RecordStatusTransition records a task moving from one status to another.
func (e *Exporter) RecordStatusTransition(fromStatus, toStatus string) {
	e.statusTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordTaskOperation records the outcome of a TaskEngine operation.
func (e *Exporter) RecordTaskOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.taskOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordActionDispatch records one ActionEvaluator dispatch outcome and its
// latency.
func (e *Exporter) RecordActionDispatch(actionType, status string, latency time.Duration) {
	e.actionsDispatched.WithLabelValues(actionType, status).Inc()
	e.actionLatency.WithLabelValues(actionType).Observe(latency.Seconds())
}

// RecordSchedulerTick records a worker tick's duration and, as the backlog
// gauge, the number of rows the tick claimed at its start; due rows beyond
// the batch size are not counted.
func (e *Exporter) RecordSchedulerTick(duration time.Duration, backlog int) {
	e.schedulerTickDuration.Observe(duration.Seconds())
	e.schedulerBacklog.Set(float64(backlog))
}

// RecordScheduledOutcome records a ScheduledAction reaching a terminal
// status.
func (e *Exporter) RecordScheduledOutcome(actionType, status string) {
	e.scheduledOutcomes.WithLabelValues(actionType, status).Inc()
}

// Handler returns the HTTP handler serving this Exporter's registry in the
// Prometheus text exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
