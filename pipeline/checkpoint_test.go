package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testCheckpoint(phase int, handler string) Checkpoint {
	rc := NewRunContext("run-cp")
	rc.Metadata["phase"] = handler
	return Checkpoint{
		Manifest: Manifest{PhaseIndex: phase, Handler: handler},
		Context:  rc,
		Workflow: Workflow{Phases: []PhaseSpec{{Name: "only", Handler: handler}}},
	}
}

func TestCheckpointFilenames(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Manifest
		ok       bool
	}{
		{"completed", "state_after_step_3_score.json", Manifest{PhaseIndex: 3, Handler: "score", Status: StatusCompleted}, true},
		{"completed multi-digit", "state_after_step_12_report.json", Manifest{PhaseIndex: 12, Handler: "report", Status: StatusCompleted}, true},
		{"partial", "state_step_2_partial.json", Manifest{PhaseIndex: 2, Status: StatusPartial}, true},
		{"not a checkpoint", "notes.txt", Manifest{}, false},
		{"temp file", ".tmp-checkpoint-12345", Manifest{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCheckpointName(tt.filename)
			if ok != tt.ok {
				t.Fatalf("ParseCheckpointName(%q) ok = %v, want %v", tt.filename, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseCheckpointName(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestFilenamesRoundTrip(t *testing.T) {
	name := CompletedFilename(7, "curate")
	m, ok := ParseCheckpointName(name)
	if !ok || m.PhaseIndex != 7 || m.Handler != "curate" || m.Status != StatusCompleted {
		t.Errorf("completed filename %q parsed to %+v", name, m)
	}

	name = PartialFilename(4)
	m, ok = ParseCheckpointName(name)
	if !ok || m.PhaseIndex != 4 || m.Status != StatusPartial {
		t.Errorf("partial filename %q parsed to %+v", name, m)
	}
}

func TestCompletedFilenameSanitizesHandler(t *testing.T) {
	name := CompletedFilename(1, "fetch/remote data")
	if strings.ContainsAny(name, "/ ") {
		t.Errorf("expected sanitized filename, got %q", name)
	}
}

func TestWriteAndLoadCheckpoint(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	path, err := m.WriteCompleted(testCheckpoint(2, "score"))
	if err != nil {
		t.Fatalf("WriteCompleted() error: %v", err)
	}
	if filepath.Base(path) != "state_after_step_2_score.json" {
		t.Errorf("unexpected checkpoint filename %q", filepath.Base(path))
	}

	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error: %v", err)
	}
	if cp.Manifest.PhaseIndex != 2 || cp.Manifest.Handler != "score" || cp.Manifest.Status != StatusCompleted {
		t.Errorf("manifest mismatch: %+v", cp.Manifest)
	}
	if cp.Context == nil || cp.Context.RunID != "run-cp" {
		t.Errorf("context not round-tripped: %+v", cp.Context)
	}
	if cp.Workflow.Len() != 1 {
		t.Errorf("workflow not round-tripped: %+v", cp.Workflow)
	}
	if cp.SavedAt.IsZero() {
		t.Error("expected SavedAt stamped on write")
	}
}

func TestCompletedSupersedesPartial(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	partialPath, err := m.WritePartial(testCheckpoint(3, "curate"))
	if err != nil {
		t.Fatalf("WritePartial() error: %v", err)
	}
	if _, err := os.Stat(partialPath); err != nil {
		t.Fatalf("expected partial on disk: %v", err)
	}

	if _, err := m.WriteCompleted(testCheckpoint(3, "curate")); err != nil {
		t.Fatalf("WriteCompleted() error: %v", err)
	}
	if _, err := os.Stat(partialPath); !os.IsNotExist(err) {
		t.Errorf("expected partial removed after completed write, stat err = %v", err)
	}
}

func TestPartialIsLatestWins(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	first := testCheckpoint(1, "ingest")
	first.Context.Metadata["round"] = "1"
	if _, err := m.WritePartial(first); err != nil {
		t.Fatalf("first WritePartial() error: %v", err)
	}

	second := testCheckpoint(1, "ingest")
	second.Context.Metadata["round"] = "2"
	path, err := m.WritePartial(second)
	if err != nil {
		t.Fatalf("second WritePartial() error: %v", err)
	}

	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error: %v", err)
	}
	if cp.Context.Metadata["round"] != "2" {
		t.Errorf("expected latest partial content, got round=%q", cp.Context.Metadata["round"])
	}

	entries, err := filepath.Glob(filepath.Join(dir, "state_step_*_partial.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one partial file, got %v", entries)
	}
}

func TestInterruptedWriteLeavesCommittedCheckpointIntact(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	path, err := m.WriteCompleted(testCheckpoint(1, "ingest"))
	if err != nil {
		t.Fatalf("WriteCompleted() error: %v", err)
	}

	// A crash mid-write leaves a truncated temp file next to the
	// committed checkpoint. It must never shadow or corrupt it.
	torn := filepath.Join(dir, ".tmp-checkpoint-crashed")
	if err := os.WriteFile(torn, []byte(`{"manifest":{"phase_ind`), 0o644); err != nil {
		t.Fatal(err)
	}

	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() after simulated crash error: %v", err)
	}
	if cp.Manifest.PhaseIndex != 1 {
		t.Errorf("committed checkpoint damaged: %+v", cp.Manifest)
	}

	if _, ok := ParseCheckpointName(filepath.Base(torn)); ok {
		t.Error("temp file must not be recognized as a checkpoint")
	}
}

func TestLoadCheckpointUnparsable(t *testing.T) {
	dir := t.TempDir()

	t.Run("garbage payload", func(t *testing.T) {
		path := filepath.Join(dir, "state_after_step_1_ingest.json")
		if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadCheckpoint(path)
		if !errors.Is(err, ErrCheckpointUnparsable) {
			t.Errorf("expected ErrCheckpointUnparsable, got %v", err)
		}
	})

	t.Run("missing manifest", func(t *testing.T) {
		path := filepath.Join(dir, "state_after_step_2_score.json")
		if err := os.WriteFile(path, []byte(`{"context":{"run_id":"x"}}`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadCheckpoint(path)
		if !errors.Is(err, ErrCheckpointUnparsable) {
			t.Errorf("expected ErrCheckpointUnparsable, got %v", err)
		}
	})
}

func TestManagerRejectsEmptyDir(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Error("expected error for empty checkpoint directory")
	}
}
