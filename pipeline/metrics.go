package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics for pipeline
// execution monitoring.
//
// Metrics exposed (all namespaced "strata"):
//
//  1. phases_completed_total (counter): completed phases. Labels: handler.
//  2. phases_failed_total (counter): failed phases. Labels: handler.
//  3. phase_duration_ms (histogram): phase execution duration in
//     milliseconds. Labels: phase, status. Buckets 1ms..10m, sized for
//     model-backed phases that run seconds to minutes.
//  4. checkpoint_writes_total (counter): checkpoint files written.
//     Labels: kind (completed|partial).
//  5. checkpoint_write_failures_total (counter): failed checkpoint writes.
//  6. artifacts_recorded_total (counter): artifact references recorded
//     on run contexts. Labels: category.
//  7. resume_drift_items_total (counter): drift items reported by the
//     resume analyzer.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := pipeline.NewPrometheusMetrics(registry)
//	exec := pipeline.NewExecutor(handlers, manager, pipeline.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: prometheus collectors handle their own synchronization.
type PrometheusMetrics struct {
	phasesCompleted    *prometheus.CounterVec
	phasesFailed       *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	checkpointWrites   *prometheus.CounterVec
	checkpointFailures prometheus.Counter
	artifactsRecorded  *prometheus.CounterVec
	driftItems         prometheus.Counter
}

// NewPrometheusMetrics creates and registers all pipeline metrics with
// the provided registry. A nil registry uses the global default.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &PrometheusMetrics{
		phasesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "phases_completed_total",
			Help:      "Total number of phases that completed successfully.",
		}, []string{"handler"}),

		phasesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "phases_failed_total",
			Help:      "Total number of phases that failed and aborted their run.",
		}, []string{"handler"}),

		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strata",
			Name:      "phase_duration_ms",
			Help:      "Phase execution duration in milliseconds.",
			Buckets:   []float64{1, 10, 100, 1000, 5000, 15000, 60000, 300000, 600000},
		}, []string{"phase", "status"}),

		checkpointWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "checkpoint_writes_total",
			Help:      "Total checkpoint files written, by kind.",
		}, []string{"kind"}),

		checkpointFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "checkpoint_write_failures_total",
			Help:      "Total checkpoint writes that failed.",
		}),

		artifactsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "artifacts_recorded_total",
			Help:      "Total artifact references recorded on run contexts.",
		}, []string{"category"}),

		driftItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "resume_drift_items_total",
			Help:      "Total workflow drift items reported by the resume analyzer.",
		}),
	}
}

// RecordPhaseCompleted records a successful phase and its duration.
func (p *PrometheusMetrics) RecordPhaseCompleted(phase, handler string, duration time.Duration) {
	if p == nil {
		return
	}
	p.phasesCompleted.WithLabelValues(handler).Inc()
	p.phaseDuration.WithLabelValues(phase, "completed").Observe(float64(duration.Milliseconds()))
}

// RecordPhaseFailed records a failed phase and its duration.
func (p *PrometheusMetrics) RecordPhaseFailed(phase, handler string, duration time.Duration) {
	if p == nil {
		return
	}
	p.phasesFailed.WithLabelValues(handler).Inc()
	p.phaseDuration.WithLabelValues(phase, "failed").Observe(float64(duration.Milliseconds()))
}

// RecordCheckpointWrite records one checkpoint file written.
func (p *PrometheusMetrics) RecordCheckpointWrite(status CheckpointStatus) {
	if p == nil {
		return
	}
	p.checkpointWrites.WithLabelValues(string(status)).Inc()
}

// RecordCheckpointFailure records a failed checkpoint write.
func (p *PrometheusMetrics) RecordCheckpointFailure() {
	if p == nil {
		return
	}
	p.checkpointFailures.Inc()
}

// RecordArtifact records one artifact reference added to a run context.
func (p *PrometheusMetrics) RecordArtifact(category string) {
	if p == nil {
		return
	}
	p.artifactsRecorded.WithLabelValues(category).Inc()
}

// RecordDriftItems records drift items found during resume analysis.
func (p *PrometheusMetrics) RecordDriftItems(count int) {
	if p == nil {
		return
	}
	p.driftItems.Add(float64(count))
}
