package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/strataworks/strata/pipeline/emit"
)

// PhaseState is the lifecycle state of one phase within a run.
//
// Transitions: pending → running → {completed | failed}. There is no
// skipped state: a caller wanting to omit a phase's work supplies a
// trivial handler that performs only the bookkeeping later phases need
// and returns success.
type PhaseState string

const (
	PhasePending   PhaseState = "pending"
	PhaseRunning   PhaseState = "running"
	PhaseCompleted PhaseState = "completed"
	PhaseFailed    PhaseState = "failed"
)

// RunResult is the structured outcome of a run (or run segment).
//
// On failure it names the failing phase and carries the handler's error
// message; completed phases up to that point are listed either way.
type RunResult struct {
	// RunID identifies the run.
	RunID string

	// CompletedPhases lists the names of phases completed by this call,
	// in order.
	CompletedPhases []string

	// FailedPhase is the name of the phase that aborted the run, empty
	// on success.
	FailedPhase string

	// FailedIndex is the 1-indexed position of the failed phase, zero
	// on success.
	FailedIndex int

	// ErrorMessage is the handler's failure message, empty on success.
	ErrorMessage string

	// Checkpoints lists the paths of completed checkpoints written by
	// this call, in order.
	Checkpoints []string

	// PhaseStates maps each requested phase name to its final state.
	PhaseStates map[string]PhaseState
}

// Succeeded reports whether every requested phase completed.
func (r *RunResult) Succeeded() bool { return r.FailedPhase == "" }

// Executor drives the phases of a workflow strictly sequentially
// against a RunContext.
//
// The executor:
//   - Resolves each phase's handler from the static registry
//   - Blocks on each handler invocation until it returns
//   - Merges handler output into the RunContext on success
//   - Writes a completed checkpoint after every successful phase
//   - Aborts the entire run on the first handler failure, with no
//     automatic retry (retry policy belongs inside handlers)
//
// One Executor instance owns one run at a time; the engine performs no
// implicit parallelism. Handlers may fan out internally, but the
// executor observes one aggregated Result per phase.
type Executor struct {
	registry *Registry
	manager  *Manager
	opts     Options
}

// NewExecutor creates an Executor over a handler registry and a
// checkpoint manager.
func NewExecutor(registry *Registry, manager *Manager, opts ...Option) *Executor {
	e := &Executor{registry: registry, manager: manager}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// Run executes every phase of the workflow, 1 through len(wf.Phases).
func (e *Executor) Run(ctx context.Context, wf Workflow, rc *RunContext) (*RunResult, error) {
	return e.RunRange(ctx, wf, rc, 1, wf.Len())
}

// RunRange executes phases [start, end] (1-indexed, inclusive) of the
// workflow. Used together with the resume analyzer:
//
//	decision, _ := analyzer.Analyze(wf)
//	result, err := exec.RunRange(ctx, wf, decision.Context(), decision.ResumePhase, wf.Len())
//
// Returns a RunResult in all cases a phase was attempted; the error is
// non-nil whenever the run did not complete.
func (e *Executor) RunRange(ctx context.Context, wf Workflow, rc *RunContext, start, end int) (*RunResult, error) {
	if rc == nil {
		return nil, &PipelineError{Message: "run context is required", Code: CodeInvalidWorkflow}
	}
	if err := e.registry.Validate(wf); err != nil {
		return nil, err
	}
	if start < 1 || end > wf.Len() || start > end {
		return nil, &PipelineError{
			Message: fmt.Sprintf("phase range [%d, %d] outside workflow of %d phases", start, end, wf.Len()),
			Code:    CodeInvalidRange,
		}
	}

	result := &RunResult{
		RunID:           rc.RunID,
		CompletedPhases: []string{},
		Checkpoints:     []string{},
		PhaseStates:     make(map[string]PhaseState),
	}
	for i := start; i <= end; i++ {
		result.PhaseStates[wf.Phases[i-1].Name] = PhasePending
	}

	e.emit(emit.Event{RunID: rc.RunID, Msg: emit.MsgRunStarted, Meta: map[string]interface{}{
		"start_phase": start,
		"end_phase":   end,
	}})

	for i := start; i <= end; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		spec := wf.Phases[i-1]
		if err := e.runPhase(ctx, wf, rc, spec, i, result); err != nil {
			e.emit(emit.Event{RunID: rc.RunID, Phase: i, PhaseName: spec.Name, Msg: emit.MsgRunFailed,
				Meta: map[string]interface{}{"error": result.ErrorMessage}})
			return result, err
		}
	}

	e.emit(emit.Event{RunID: rc.RunID, Msg: emit.MsgRunCompleted, Meta: map[string]interface{}{
		"phases_completed": len(result.CompletedPhases),
	}})
	return result, nil
}

// runPhase executes one phase end to end: partial checkpoint, handler
// invocation, merge, completed checkpoint.
func (e *Executor) runPhase(ctx context.Context, wf Workflow, rc *RunContext, spec PhaseSpec, index int, result *RunResult) error {
	handler, ok := e.registry.Resolve(spec.Handler)
	if !ok {
		// Validate catches this up front; kept as a guard against a
		// registry mutated between validation and execution.
		result.PhaseStates[spec.Name] = PhaseFailed
		return &PipelineError{Message: "no handler registered", Code: CodeUnknownPhase, Phase: spec.Name}
	}

	result.PhaseStates[spec.Name] = PhaseRunning
	if rc.CurrentPhase != spec.Name {
		rc.UpdatePhase(spec.Name)
	}

	e.emit(emit.Event{RunID: rc.RunID, Phase: index, PhaseName: spec.Name, Msg: emit.MsgPhaseStarted,
		Meta: map[string]interface{}{"handler": spec.Handler}})

	phaseCtx := ctx
	if !e.opts.DisablePartials {
		// The phase-start partial records that phase N is in flight, so
		// a crash before completion resumes at N, not N+1. Mid-phase
		// ReportProgress calls overwrite it with accumulated updates.
		pending, err := rc.Clone()
		if err == nil {
			if path, werr := e.manager.WritePartial(Checkpoint{
				Manifest: Manifest{PhaseIndex: index, Handler: spec.Handler},
				Context:  pending,
				Workflow: wf,
			}); werr == nil {
				e.opts.Metrics.RecordCheckpointWrite(StatusPartial)
				e.emit(emit.Event{RunID: rc.RunID, Phase: index, PhaseName: spec.Name,
					Msg: emit.MsgPartialWritten, Meta: map[string]interface{}{"checkpoint": path}})
			}

			phaseCtx = withProgress(ctx, func(update Update) error {
				pending.Merge(update)
				if _, err := e.manager.WritePartial(Checkpoint{
					Manifest: Manifest{PhaseIndex: index, Handler: spec.Handler},
					Context:  pending,
					Workflow: wf,
				}); err != nil {
					return err
				}
				e.opts.Metrics.RecordCheckpointWrite(StatusPartial)
				return nil
			})
		}
	}

	started := time.Now()
	res := invoke(phaseCtx, handler, rc, spec.Config)
	duration := time.Since(started)

	if !res.Success {
		result.PhaseStates[spec.Name] = PhaseFailed
		result.FailedPhase = spec.Name
		result.FailedIndex = index
		result.ErrorMessage = res.ErrorMessage
		e.opts.Metrics.RecordPhaseFailed(spec.Name, spec.Handler, duration)
		e.emit(emit.Event{RunID: rc.RunID, Phase: index, PhaseName: spec.Name, Msg: emit.MsgPhaseFailed,
			Meta: map[string]interface{}{
				"handler":     spec.Handler,
				"error":       res.ErrorMessage,
				"duration_ms": duration.Milliseconds(),
			}})
		return &PipelineError{
			Message: res.ErrorMessage,
			Code:    CodeHandlerFailed,
			Phase:   spec.Name,
		}
	}

	rc.Merge(res.Update)
	for _, ref := range res.Artifacts {
		rc.AddArtifact(ref.Category, ref.Hash)
		e.opts.Metrics.RecordArtifact(ref.Category)
	}
	rc.CompletePhase()

	snapshot, err := rc.Clone()
	if err != nil {
		return &PipelineError{Message: "failed to snapshot run context: " + err.Error(),
			Code: CodeCheckpointFailed, Phase: spec.Name, Cause: err}
	}
	path, err := e.manager.WriteCompleted(Checkpoint{
		Manifest: Manifest{PhaseIndex: index, Handler: spec.Handler},
		Context:  snapshot,
		Workflow: wf,
	})
	if err != nil {
		// A run whose checkpoint could not be durably written must not
		// be reported successful.
		e.opts.Metrics.RecordCheckpointFailure()
		result.PhaseStates[spec.Name] = PhaseFailed
		result.FailedPhase = spec.Name
		result.FailedIndex = index
		result.ErrorMessage = "checkpoint write failed: " + err.Error()
		return &PipelineError{Message: result.ErrorMessage, Code: CodeCheckpointFailed,
			Phase: spec.Name, Cause: err}
	}

	result.PhaseStates[spec.Name] = PhaseCompleted
	result.CompletedPhases = append(result.CompletedPhases, spec.Name)
	result.Checkpoints = append(result.Checkpoints, path)
	e.opts.Metrics.RecordPhaseCompleted(spec.Name, spec.Handler, duration)
	e.opts.Metrics.RecordCheckpointWrite(StatusCompleted)
	e.emit(emit.Event{RunID: rc.RunID, Phase: index, PhaseName: spec.Name, Msg: emit.MsgPhaseCompleted,
		Meta: map[string]interface{}{
			"handler":     spec.Handler,
			"checkpoint":  path,
			"duration_ms": duration.Milliseconds(),
		}})
	e.emit(emit.Event{RunID: rc.RunID, Phase: index, PhaseName: spec.Name, Msg: emit.MsgCheckpointWritten,
		Meta: map[string]interface{}{"checkpoint": path}})
	return nil
}

// invoke calls the handler, converting a panic into a failed Result so
// a raised fault aborts the run the same way an explicit failure does.
func invoke(ctx context.Context, handler Handler, rc *RunContext, config PhaseConfig) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler.Handle(ctx, rc, config)
}

func (e *Executor) emit(event emit.Event) {
	if e.opts.Emitter != nil {
		e.opts.Emitter.Emit(event)
	}
}
