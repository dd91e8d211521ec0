package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunContext is the typed record threaded through every phase of a run.
//
// One instance exists per execution run. It is created at run start,
// mutated only through UpdatePhase, AddArtifact and Merge, serialized
// wholesale into every checkpoint, and never partially persisted.
//
// Artifact hashes held here are weak references: the bytes live in the
// content-addressable store, the context only records which hashes each
// category produced.
type RunContext struct {
	// RunID uniquely identifies the execution run.
	RunID string `json:"run_id"`

	// PhaseResults maps phase name to the result payload the phase
	// produced. Payloads must be JSON-serializable.
	PhaseResults map[string]interface{} `json:"phase_results"`

	// Artifacts maps a category (e.g. "analysis", "evidence") to the
	// ordered list of content hashes produced under it.
	Artifacts map[string][]string `json:"artifacts"`

	// Metadata is a free-form string map for run-level bookkeeping.
	Metadata map[string]string `json:"metadata"`

	// CurrentPhase is the name of the phase currently executing,
	// or the last phase that ran.
	CurrentPhase string `json:"current_phase"`

	// CompletedPhases lists phase names in completion order.
	CompletedPhases []string `json:"completed_phases"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is bumped on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is a partial RunContext update returned by a handler.
//
// All fields are optional; zero-valued fields leave the context
// untouched. This replaces the free-form dictionary the context would
// otherwise become: every handler write flows through Merge.
type Update struct {
	// PhaseResults entries are set (overwriting same-named entries).
	PhaseResults map[string]interface{} `json:"phase_results,omitempty"`

	// Artifacts entries are appended per category.
	Artifacts map[string][]string `json:"artifacts,omitempty"`

	// Metadata entries are set (overwriting same-named keys).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRunContext creates a RunContext for a new run.
func NewRunContext(runID string) *RunContext {
	now := time.Now().UTC()
	return &RunContext{
		RunID:           runID,
		PhaseResults:    make(map[string]interface{}),
		Artifacts:       make(map[string][]string),
		Metadata:        make(map[string]string),
		CompletedPhases: []string{},
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

// UpdatePhase moves the current phase into the completed list and sets
// a new current phase.
func (rc *RunContext) UpdatePhase(name string) {
	if rc.CurrentPhase != "" {
		rc.CompletedPhases = append(rc.CompletedPhases, rc.CurrentPhase)
	}
	rc.CurrentPhase = name
	rc.touch()
}

// CompletePhase records the current phase as completed without starting
// a new one. Used for the final phase of a run.
func (rc *RunContext) CompletePhase() {
	if rc.CurrentPhase != "" {
		rc.CompletedPhases = append(rc.CompletedPhases, rc.CurrentPhase)
		rc.CurrentPhase = ""
		rc.touch()
	}
}

// AddArtifact appends a content hash under a category.
func (rc *RunContext) AddArtifact(category, hash string) {
	if rc.Artifacts == nil {
		rc.Artifacts = make(map[string][]string)
	}
	rc.Artifacts[category] = append(rc.Artifacts[category], hash)
	rc.touch()
}

// Merge applies a handler's partial update to the context.
func (rc *RunContext) Merge(update Update) {
	for name, payload := range update.PhaseResults {
		if rc.PhaseResults == nil {
			rc.PhaseResults = make(map[string]interface{})
		}
		rc.PhaseResults[name] = payload
	}
	for category, hashes := range update.Artifacts {
		for _, hash := range hashes {
			rc.AddArtifact(category, hash)
		}
	}
	for key, value := range update.Metadata {
		if rc.Metadata == nil {
			rc.Metadata = make(map[string]string)
		}
		rc.Metadata[key] = value
	}
	rc.touch()
}

// Snapshot serializes the full context for checkpointing.
//
// Snapshot and RestoreSnapshot round-trip losslessly for any context
// whose phase result payloads are JSON-serializable.
func (rc *RunContext) Snapshot() ([]byte, error) {
	data, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run context: %w", err)
	}
	return data, nil
}

// RestoreSnapshot reconstructs a RunContext from Snapshot output.
func RestoreSnapshot(data []byte) (*RunContext, error) {
	var rc RunContext
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
	}
	if rc.PhaseResults == nil {
		rc.PhaseResults = make(map[string]interface{})
	}
	if rc.Artifacts == nil {
		rc.Artifacts = make(map[string][]string)
	}
	if rc.Metadata == nil {
		rc.Metadata = make(map[string]string)
	}
	if rc.CompletedPhases == nil {
		rc.CompletedPhases = []string{}
	}
	return &rc, nil
}

// Clone deep-copies the context via a JSON round trip.
func (rc *RunContext) Clone() (*RunContext, error) {
	data, err := rc.Snapshot()
	if err != nil {
		return nil, err
	}
	return RestoreSnapshot(data)
}

func (rc *RunContext) touch() {
	rc.UpdatedAt = time.Now().UTC()
}
