package emit

// Standard event messages emitted by the pipeline executor.
//
// Consumers can match on these to filter execution history or drive
// dashboards without parsing free-form text.
const (
	MsgRunStarted        = "run_started"
	MsgRunCompleted      = "run_completed"
	MsgRunFailed         = "run_failed"
	MsgPhaseStarted      = "phase_started"
	MsgPhaseCompleted    = "phase_completed"
	MsgPhaseFailed       = "phase_failed"
	MsgCheckpointWritten = "checkpoint_written"
	MsgPartialWritten    = "partial_checkpoint_written"
	MsgResumeAnalyzed    = "resume_analyzed"
)

// Event represents an observability event emitted during pipeline execution.
//
// Events provide insight into run behavior:
//   - Phase start/complete/failure
//   - Checkpoint writes (completed and partial)
//   - Resume analysis outcomes
//
// Events are emitted to an Emitter which can log to a writer, create
// OpenTelemetry spans, buffer for later inspection, or discard them.
type Event struct {
	// RunID identifies the pipeline run that emitted this event.
	RunID string

	// Phase is the 1-indexed phase number in the workflow.
	// Zero for run-level events (run_started, run_completed, run_failed).
	Phase int

	// PhaseName is the name of the phase that emitted this event.
	// Empty string for run-level events.
	PhaseName string

	// Msg is the event message, usually one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": phase execution duration in milliseconds
	//   - "error": error details for phase_failed / run_failed
	//   - "checkpoint": checkpoint filename
	//   - "handler": handler name backing the phase
	//   - "strategy": resume strategy for resume_analyzed
	Meta map[string]interface{}
}
