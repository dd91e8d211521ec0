package pipeline

import "github.com/strataworks/strata/pipeline/emit"

// DriftPolicy controls how the resume analyzer treats workflow drift.
type DriftPolicy int

const (
	// DriftWarn reports drift items as warnings and allows resumption.
	// The caller should require explicit acknowledgment before
	// continuing a drifted run.
	DriftWarn DriftPolicy = iota

	// DriftFail refuses resumption when any drift item is detected.
	DriftFail
)

// Options configures Executor behavior. Zero values are valid; the
// executor uses sensible defaults (null emitter, no metrics, partials
// enabled).
type Options struct {
	// Emitter receives observability events. Nil means no emission.
	Emitter emit.Emitter

	// Metrics records Prometheus metrics. Nil disables recording.
	Metrics *PrometheusMetrics

	// DisablePartials turns off the phase-start partial checkpoint.
	// Mid-phase ReportProgress writes are also dropped. With partials
	// disabled, a crash loses at most one whole phase instead of less
	// than one.
	DisablePartials bool

	// Drift is the resume analyzer's workflow-drift policy.
	Drift DriftPolicy
}

// Option is a functional option configuring an Executor.
//
// Example:
//
//	exec := pipeline.NewExecutor(registry, manager,
//	    pipeline.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	    pipeline.WithMetrics(metrics),
//	)
type Option func(*Options)

// WithEmitter sets the observability emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithMetrics sets the Prometheus metrics collector.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithoutPartials disables partial checkpointing.
func WithoutPartials() Option {
	return func(o *Options) { o.DisablePartials = true }
}

// WithDriftPolicy sets how the resume analyzer treats workflow drift.
func WithDriftPolicy(p DriftPolicy) Option {
	return func(o *Options) { o.Drift = p }
}
