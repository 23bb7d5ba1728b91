// Package metrics exposes Prometheus collectors for the planning pipeline.
//
// A [Recorder] is created against a caller-owned registry; there is no
// package-level default. All Recorder methods are safe on a nil receiver so
// components can record unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every fanout collector.
type Recorder struct {
	// Service operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Planning metrics
	Analyses     *prometheus.CounterVec
	GraphCycles  prometheus.Counter
	PlanBatches  *prometheus.HistogramVec
	ImplicitDeps prometheus.Counter

	// Execution metrics
	Batches      *prometheus.CounterVec
	TaskResults  *prometheus.CounterVec
	TaskDuration prometheus.Histogram
	TaskRetries  prometheus.Counter
	RunSpeedup   prometheus.Histogram

	// Reconciliation metrics
	Conflicts    *prometheus.CounterVec
	Aggregations *prometheus.CounterVec
	Bottlenecks  *prometheus.CounterVec
}

// NewRecorder registers the collectors with registry.
func NewRecorder(registry prometheus.Registerer) *Recorder {
	factory := promauto.With(registry)

	return &Recorder{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_operations_total",
				Help: "Total number of service operations",
			},
			[]string{"operation", "success"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fanout_operation_duration_seconds",
				Help:    "Service operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		Analyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_analyses_total",
				Help: "Total number of parallelizability analyses by verdict",
			},
			[]string{"parallelizable"},
		),
		GraphCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fanout_graph_cycles_total",
				Help: "Total number of dependency graphs found to contain a cycle",
			},
		),
		PlanBatches: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fanout_plan_batches",
				Help:    "Number of batches per optimized plan",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"goal"},
		),
		ImplicitDeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fanout_implicit_dependencies_total",
				Help: "Total number of inferred implicit dependencies",
			},
		),

		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_batches_total",
				Help: "Total number of batches by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		TaskResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_task_results_total",
				Help: "Total number of task results by outcome",
			},
			[]string{"outcome"},
		),
		TaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fanout_task_duration_seconds",
				Help:    "Measured task execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 900, 3600},
			},
		),
		TaskRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fanout_task_retries_total",
				Help: "Total number of task retries",
			},
		),
		RunSpeedup: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fanout_run_speedup",
				Help:    "Measured speedup per coordination run",
				Buckets: []float64{0.5, 1, 1.5, 2, 3, 4, 6, 8},
			},
		),

		Conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_conflicts_total",
				Help: "Total number of detected conflicts by type",
			},
			[]string{"type"},
		),
		Aggregations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_progress_aggregations_total",
				Help: "Total number of progress aggregations by strategy",
			},
			[]string{"strategy"},
		),
		Bottlenecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_bottlenecks_total",
				Help: "Total number of flagged bottlenecks by impact",
			},
			[]string{"impact"},
		),
	}
}

// NewRegistry creates a registry with a Recorder registered against it.
func NewRegistry() (*prometheus.Registry, *Recorder) {
	reg := prometheus.NewRegistry()
	return reg, NewRecorder(reg)
}

// Handler returns an HTTP handler serving reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Operation records one service operation.
func (r *Recorder) Operation(name string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	r.Operations.WithLabelValues(name, strconv.FormatBool(success)).Inc()
	r.OperationDuration.WithLabelValues(name).Observe(d.Seconds())
}

// Analysis records an analysis verdict.
func (r *Recorder) Analysis(parallelizable bool) {
	if r == nil {
		return
	}
	r.Analyses.WithLabelValues(strconv.FormatBool(parallelizable)).Inc()
}

// Graph records a built graph.
func (r *Recorder) Graph(hasCycles bool, implicit int) {
	if r == nil {
		return
	}
	if hasCycles {
		r.GraphCycles.Inc()
	}
	r.ImplicitDeps.Add(float64(implicit))
}

// Plan records an optimized plan.
func (r *Recorder) Plan(goal string, batches int) {
	if r == nil {
		return
	}
	r.PlanBatches.WithLabelValues(goal).Observe(float64(batches))
}

// Batch records a finished or skipped batch. Outcome is one of succeeded,
// failed or skipped.
func (r *Recorder) Batch(strategy, outcome string) {
	if r == nil {
		return
	}
	r.Batches.WithLabelValues(strategy, outcome).Inc()
}

// Task records one task result.
func (r *Recorder) Task(success bool, d time.Duration, retries int) {
	if r == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	r.TaskResults.WithLabelValues(outcome).Inc()
	r.TaskDuration.Observe(d.Seconds())
	if retries > 0 {
		r.TaskRetries.Add(float64(retries))
	}
}

// Run records the measured speedup of a coordination run.
func (r *Recorder) Run(speedup float64) {
	if r == nil {
		return
	}
	r.RunSpeedup.Observe(speedup)
}

// Conflict records one detected conflict.
func (r *Recorder) Conflict(conflictType string) {
	if r == nil {
		return
	}
	r.Conflicts.WithLabelValues(conflictType).Inc()
}

// Aggregation records a progress aggregation and its bottlenecks by impact.
func (r *Recorder) Aggregation(strategy string, impacts []string) {
	if r == nil {
		return
	}
	r.Aggregations.WithLabelValues(strategy).Inc()
	for _, impact := range impacts {
		r.Bottlenecks.WithLabelValues(impact).Inc()
	}
}
