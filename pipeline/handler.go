package pipeline

import "context"

// PhaseConfig is the per-phase configuration passed to a handler,
// declared in the workflow definition. Flat string keys keep configs
// diffable for drift detection.
type PhaseConfig map[string]string

// ArtifactRef names one artifact a handler produced: the category it
// belongs to and its content hash in the artifact store.
type ArtifactRef struct {
	Category string `json:"category"`
	Hash     string `json:"hash"`
}

// Result is the outcome of one handler invocation.
//
// This is the entire boundary between the engine and domain logic:
// a handler performs its work (usually prompt templates executed by an
// external model), then reports success or failure plus the context
// updates and artifacts it produced.
type Result struct {
	// Success reports whether the phase's work completed.
	Success bool

	// Update contains field updates merged into the RunContext on success.
	Update Update

	// Artifacts lists produced artifacts, recorded on the context under
	// their categories on success.
	Artifacts []ArtifactRef

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string
}

// Handler performs the domain work of one phase.
//
// Handlers receive the live RunContext (for reading earlier phases'
// results and artifact references) and the phase's declared config.
// The engine blocks until Handle returns; a handler may parallelize
// internally but reports one aggregated Result.
//
// Every handler implements this one signature. Dependencies (model
// clients, artifact stores) are closed over at construction, not
// discovered by the engine.
type Handler interface {
	Handle(ctx context.Context, rc *RunContext, config PhaseConfig) Result
}

// HandlerFunc is a function adapter that implements Handler.
//
// Example:
//
//	ingest := pipeline.HandlerFunc(func(ctx context.Context, rc *pipeline.RunContext, cfg pipeline.PhaseConfig) pipeline.Result {
//	    return pipeline.Result{Success: true}
//	})
type HandlerFunc func(ctx context.Context, rc *RunContext, config PhaseConfig) Result

// Handle implements the Handler interface for HandlerFunc.
func (f HandlerFunc) Handle(ctx context.Context, rc *RunContext, config PhaseConfig) Result {
	return f(ctx, rc, config)
}

// Failure builds a failed Result with the given message.
func Failure(message string) Result {
	return Result{Success: false, ErrorMessage: message}
}

// progressKey is the context key under which the executor injects its
// mid-phase progress callback.
type progressKey struct{}

// ProgressFunc receives a partial update from inside a running handler
// and persists it as the phase's partial checkpoint.
type ProgressFunc func(update Update) error

func withProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress lets a long-running handler bound its lost work to less
// than one phase: the update is merged into a copy of the run context
// and written as the current phase's partial checkpoint, overwriting the
// previous partial.
//
// Outside an executor-managed phase this is a no-op returning nil, so
// handlers can call it unconditionally.
func ReportProgress(ctx context.Context, update Update) error {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	if !ok || fn == nil {
		return nil
	}
	return fn(update)
}
