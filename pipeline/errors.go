// Package pipeline provides the phase-execution engine for Strata:
// ordered phases driven against a typed RunContext, crash-consistent
// checkpointing, and resume analysis after interruption.
package pipeline

import "errors"

// ErrNoCheckpoint indicates that resume discovery found no checkpoint
// file under any recognized storage-root layout. The run must start
// from the beginning.
var ErrNoCheckpoint = errors.New("no resumable state found")

// ErrCheckpointUnparsable indicates that a discovered checkpoint file
// exists but its payload could not be decoded. The file may be from an
// incompatible version or damaged outside the atomic-write path.
var ErrCheckpointUnparsable = errors.New("checkpoint payload unparsable")

// ErrDriftRejected is returned when the resume analyzer detects workflow
// drift and the configured policy is DriftFail. The drift items are
// carried on the Decision; this error only signals the policy outcome.
var ErrDriftRejected = errors.New("workflow drift rejected by policy")

// Error codes attached to PipelineError.
const (
	CodeUnknownPhase     = "UNKNOWN_PHASE"
	CodeHandlerFailed    = "HANDLER_FAILED"
	CodeCheckpointFailed = "CHECKPOINT_FAILED"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeInvalidWorkflow  = "INVALID_WORKFLOW"
)

// PipelineError represents a structured error from engine operations.
//
// Code is machine-readable for programmatic handling; Message is the
// human-readable description surfaced to the run boundary.
type PipelineError struct {
	Message string
	Code    string
	Phase   string
	Cause   error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Phase != "" {
		msg = "phase " + e.Phase + ": " + msg
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}
