package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// CheckpointStatus marks whether a checkpoint reflects a fully completed
// phase or in-flight progress inside one.
type CheckpointStatus string

const (
	// StatusCompleted marks a checkpoint written after a phase finished.
	StatusCompleted CheckpointStatus = "completed"

	// StatusPartial marks an in-flight checkpoint, overwritten in place
	// while its phase runs and superseded by the completed checkpoint.
	StatusPartial CheckpointStatus = "partial"
)

// Manifest is the authoritative phase bookkeeping inside a checkpoint
// payload. The filename encodes the same information as a discovery
// hint, but the manifest wins whenever the payload is readable.
type Manifest struct {
	// PhaseIndex is the 1-indexed phase this checkpoint belongs to.
	PhaseIndex int `json:"phase_index"`

	// Handler is the name of the handler backing the phase.
	Handler string `json:"handler"`

	// Status is completed or partial.
	Status CheckpointStatus `json:"status"`
}

// Checkpoint is a durable snapshot of a run: the full RunContext, phase
// bookkeeping, and the workflow definition for later drift comparison.
type Checkpoint struct {
	Manifest Manifest    `json:"manifest"`
	Context  *RunContext `json:"context"`
	Workflow Workflow    `json:"workflow"`
	SavedAt  time.Time   `json:"saved_at"`
}

// Manager persists checkpoints crash-consistently in one directory.
//
// Every write serializes the snapshot to a temporary file in the same
// directory as the final target, flushes it fully, then renames it onto
// the final filename. Rename is atomic at the filesystem level, so an
// observer only ever sees either the previous complete checkpoint or
// the new complete one.
//
// Two cadences, two filename lineages:
//
//	state_after_step_<N>_<handler>.json   completed, retained permanently
//	state_step_<N>_partial.json           partial, latest-wins
//
// One Manager instance owns one run's checkpoint sequence; concurrent
// writers to the same directory are unsupported.
type Manager struct {
	dir string
}

// NewManager creates a checkpoint manager writing into dir, creating
// the directory if needed.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the directory this manager writes into.
func (m *Manager) Dir() string { return m.dir }

// WriteCompleted persists a completed-phase checkpoint and removes the
// phase's partial checkpoint, which it supersedes. Returns the path of
// the written file.
func (m *Manager) WriteCompleted(cp Checkpoint) (string, error) {
	cp.Manifest.Status = StatusCompleted
	path := filepath.Join(m.dir, CompletedFilename(cp.Manifest.PhaseIndex, cp.Manifest.Handler))
	if err := m.write(path, cp); err != nil {
		return "", err
	}

	// Best-effort: the partial for this phase is now stale. Its removal
	// is not required for correctness (completed beats partial on
	// resume), only for hygiene.
	_ = os.Remove(filepath.Join(m.dir, PartialFilename(cp.Manifest.PhaseIndex)))
	return path, nil
}

// WritePartial persists an in-flight checkpoint for the current phase,
// overwriting any previous partial for that phase. Returns the path of
// the written file.
func (m *Manager) WritePartial(cp Checkpoint) (string, error) {
	cp.Manifest.Status = StatusPartial
	path := filepath.Join(m.dir, PartialFilename(cp.Manifest.PhaseIndex))
	if err := m.write(path, cp); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) write(path string, cp Checkpoint) error {
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, ".tmp-checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads and decodes a checkpoint file.
//
// Returns ErrCheckpointUnparsable (wrapped) when the payload cannot be
// decoded or carries no manifest.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrCheckpointUnparsable)
	}
	if cp.Manifest.PhaseIndex == 0 || cp.Manifest.Status == "" {
		return nil, fmt.Errorf("%s: missing manifest: %w", path, ErrCheckpointUnparsable)
	}
	return &cp, nil
}

var handlerNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// CompletedFilename builds the retained filename for a completed-phase
// checkpoint, e.g. "state_after_step_3_score.json". Phase index and
// handler name are recoverable from the name without reading the file.
func CompletedFilename(phaseIndex int, handler string) string {
	safe := handlerNameSanitizer.ReplaceAllString(handler, "_")
	return fmt.Sprintf("state_after_step_%d_%s.json", phaseIndex, safe)
}

// PartialFilename builds the latest-wins filename for a phase's
// in-flight checkpoint, e.g. "state_step_3_partial.json".
func PartialFilename(phaseIndex int) string {
	return fmt.Sprintf("state_step_%d_partial.json", phaseIndex)
}

var (
	completedNamePattern = regexp.MustCompile(`^state_after_step_(\d+)_(.+)\.json$`)
	partialNamePattern   = regexp.MustCompile(`^state_step_(\d+)_partial\.json$`)
)

// ParseCheckpointName recovers a Manifest from a checkpoint filename.
//
// This is the non-authoritative discovery hint: resume prefers the
// manifest inside the payload and falls back to the filename only when
// the payload is unreadable.
func ParseCheckpointName(name string) (Manifest, bool) {
	if m := completedNamePattern.FindStringSubmatch(name); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			return Manifest{}, false
		}
		return Manifest{PhaseIndex: index, Handler: m[2], Status: StatusCompleted}, true
	}
	if m := partialNamePattern.FindStringSubmatch(name); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			return Manifest{}, false
		}
		return Manifest{PhaseIndex: index, Status: StatusPartial}, true
	}
	return Manifest{}, false
}
