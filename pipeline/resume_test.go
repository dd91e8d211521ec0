package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func resumeWorkflow() Workflow {
	return Workflow{Phases: []PhaseSpec{
		{Name: "ingest", Handler: "ingest"},
		{Name: "score", Handler: "score"},
		{Name: "curate", Handler: "curate"},
		{Name: "report", Handler: "report"},
	}}
}

// writeSessionCheckpoint writes a checkpoint into a results/<session>
// directory under root and returns the written path.
func writeSessionCheckpoint(t *testing.T, root, session string, cp Checkpoint, partial bool) string {
	t.Helper()
	m, err := NewManager(filepath.Join(root, "results", session))
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	var path string
	if partial {
		path, err = m.WritePartial(cp)
	} else {
		path, err = m.WriteCompleted(cp)
	}
	if err != nil {
		t.Fatalf("checkpoint write error: %v", err)
	}
	return path
}

func resumeCheckpoint(phase int, handler string, wf Workflow) Checkpoint {
	rc := NewRunContext("run-resume")
	for i := 0; i < phase; i++ {
		rc.UpdatePhase(wf.Phases[i].Name)
	}
	return Checkpoint{
		Manifest: Manifest{PhaseIndex: phase, Handler: handler},
		Context:  rc,
		Workflow: wf,
	}
}

func TestResumeArithmetic(t *testing.T) {
	wf := resumeWorkflow()

	t.Run("completed phase 3 resumes at 4", func(t *testing.T) {
		root := t.TempDir()
		writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(3, "curate", wf), false)

		a, err := NewAnalyzer(root)
		if err != nil {
			t.Fatal(err)
		}
		d, err := a.Analyze(wf)
		if err != nil {
			t.Fatalf("Analyze() error: %v", err)
		}
		if !d.Resumable || d.ResumePhase != 4 {
			t.Errorf("expected resumable at 4, got %+v", d)
		}
		if d.Strategy != StrategyContinue {
			t.Errorf("expected continue, got %s", d.Strategy)
		}
		if d.Context() == nil || d.Context().RunID != "run-resume" {
			t.Error("expected saved run context on decision")
		}
	})

	t.Run("partial phase 2 resumes at 2", func(t *testing.T) {
		root := t.TempDir()
		writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(2, "score", wf), true)

		a, err := NewAnalyzer(root)
		if err != nil {
			t.Fatal(err)
		}
		d, err := a.Analyze(wf)
		if err != nil {
			t.Fatalf("Analyze() error: %v", err)
		}
		if !d.Resumable || d.ResumePhase != 2 {
			t.Errorf("expected resumable at 2, got %+v", d)
		}
	})

	t.Run("no checkpoints is unresumable", func(t *testing.T) {
		root := t.TempDir()
		a, err := NewAnalyzer(root)
		if err != nil {
			t.Fatal(err)
		}
		d, err := a.Analyze(wf)
		if err != nil {
			t.Fatalf("Analyze() error: %v", err)
		}
		if d.Resumable || d.Strategy != StrategyUnresumable {
			t.Errorf("expected unresumable, got %+v", d)
		}
		if d.Guidance == "" {
			t.Error("expected remediation guidance")
		}
	})

	t.Run("resume phase past workflow end is unresumable", func(t *testing.T) {
		root := t.TempDir()
		writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(4, "report", wf), false)

		a, err := NewAnalyzer(root)
		if err != nil {
			t.Fatal(err)
		}
		d, err := a.Analyze(wf)
		if err != nil {
			t.Fatalf("Analyze() error: %v", err)
		}
		if d.Resumable || d.Strategy != StrategyUnresumable {
			t.Errorf("expected unresumable past workflow end, got %+v", d)
		}
	})
}

func TestDiscoveryMergesLayoutsByModTime(t *testing.T) {
	wf := resumeWorkflow()
	root := t.TempDir()

	older := writeSessionCheckpoint(t, root, "s-old", resumeCheckpoint(1, "ingest", wf), false)

	// Second layout: experiments/<name>/sessions/<id>/.
	expDir := filepath.Join(root, "experiments", "lit-review", "sessions", "s-new")
	m, err := NewManager(expDir)
	if err != nil {
		t.Fatal(err)
	}
	newer, err := m.WriteCompleted(resumeCheckpoint(2, "score", wf))
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, base, base); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(wf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if d.Source != newer {
		t.Errorf("expected newest checkpoint %s chosen, got %s", newer, d.Source)
	}
	if d.ResumePhase != 3 {
		t.Errorf("expected resume at 3, got %d", d.ResumePhase)
	}
}

func TestManifestBeatsFilename(t *testing.T) {
	wf := resumeWorkflow()
	root := t.TempDir()
	path := writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(2, "score", wf), false)

	// Rename the file so its encoded index lies about the payload.
	misleading := filepath.Join(filepath.Dir(path), "state_after_step_9_zed.json")
	if err := os.Rename(path, misleading); err != nil {
		t.Fatal(err)
	}

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(wf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if d.ResumePhase != 3 {
		t.Errorf("expected manifest-derived resume phase 3, got %d", d.ResumePhase)
	}
}

func TestUnparsableCandidateIsUnresumable(t *testing.T) {
	wf := resumeWorkflow()
	root := t.TempDir()
	dir := filepath.Join(root, "results", "s1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "state_after_step_2_score.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(wf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if d.Resumable || d.Strategy != StrategyUnresumable {
		t.Errorf("expected unresumable, got %+v", d)
	}
	if d.Guidance == "" {
		t.Error("expected guidance naming the damaged file")
	}
}

func TestDriftDetection(t *testing.T) {
	saved := Workflow{Phases: []PhaseSpec{
		{Name: "a", Handler: "ha"},
		{Name: "b", Handler: "hb"},
		{Name: "c", Handler: "hc"},
	}}

	t.Run("single handler swap", func(t *testing.T) {
		current := Workflow{Phases: []PhaseSpec{
			{Name: "a", Handler: "ha"},
			{Name: "x", Handler: "hx"},
			{Name: "c", Handler: "hc"},
		}}
		items := diffWorkflows(saved, current)
		if len(items) != 2 {
			t.Fatalf("expected name and handler drift at phase 2, got %v", items)
		}
		for _, item := range items {
			if item.Phase != 2 {
				t.Errorf("expected drift at phase 2, got %+v", item)
			}
		}
	})

	t.Run("config drift names the key", func(t *testing.T) {
		current := Workflow{Phases: []PhaseSpec{
			{Name: "a", Handler: "ha", Config: PhaseConfig{"model": "opus"}},
			{Name: "b", Handler: "hb"},
			{Name: "c", Handler: "hc"},
		}}
		items := diffWorkflows(saved, current)
		if len(items) != 1 {
			t.Fatalf("expected one drift item, got %v", items)
		}
		if items[0].Field != "config.model" || items[0].Current != "opus" {
			t.Errorf("unexpected drift item %+v", items[0])
		}
	})

	t.Run("phase count drift", func(t *testing.T) {
		current := Workflow{Phases: saved.Phases[:2]}
		items := diffWorkflows(saved, current)
		if len(items) != 1 || items[0].Field != "phase_count" {
			t.Fatalf("expected phase_count drift, got %v", items)
		}
	})

	t.Run("identical workflows have no drift", func(t *testing.T) {
		if items := diffWorkflows(saved, saved); len(items) != 0 {
			t.Errorf("expected no drift, got %v", items)
		}
	})
}

func TestDriftedRunIsResumableWithWarning(t *testing.T) {
	saved := resumeWorkflow()
	current := resumeWorkflow()
	current.Phases[1] = PhaseSpec{Name: "rescore", Handler: "rescore"}

	root := t.TempDir()
	writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(1, "ingest", saved), false)

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(current)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if !d.Resumable {
		t.Fatal("drift must not make a run unresumable under the default policy")
	}
	if d.Strategy != StrategyDrifted {
		t.Errorf("expected drifted strategy, got %s", d.Strategy)
	}
	if len(d.Drift) == 0 {
		t.Error("expected drift items reported")
	}
}

func TestDriftFailPolicyRejects(t *testing.T) {
	saved := resumeWorkflow()
	current := resumeWorkflow()
	current.Phases[2].Handler = "recurate"

	root := t.TempDir()
	writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(1, "ingest", saved), false)

	a, err := NewAnalyzer(root, WithDriftPolicy(DriftFail))
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(current)
	if !errors.Is(err, ErrDriftRejected) {
		t.Fatalf("expected ErrDriftRejected, got %v", err)
	}
	if d == nil || len(d.Drift) == 0 {
		t.Error("expected decision with drift items alongside the rejection")
	}
}

func TestResourceWarnings(t *testing.T) {
	wf := Workflow{Phases: []PhaseSpec{
		{Name: "ingest", Handler: "ingest"},
		{Name: "report", Handler: "report", Config: PhaseConfig{
			"template_path": filepath.Join(t.TempDir(), "missing.tmpl"),
			"api_key_env":   "STRATA_TEST_UNSET_KEY",
		}},
	}}

	root := t.TempDir()
	writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(1, "ingest", wf), false)

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(wf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if !d.Resumable {
		t.Fatal("resource warnings must not block resumption")
	}
	if d.Strategy != StrategyResourceWarning {
		t.Errorf("expected resource-warning strategy, got %s", d.Strategy)
	}
	if len(d.ResourceWarnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", d.ResourceWarnings)
	}
}

func TestResourceChecksSkipCompletedPhases(t *testing.T) {
	wf := Workflow{Phases: []PhaseSpec{
		{Name: "ingest", Handler: "ingest", Config: PhaseConfig{
			"input_path": "/nonexistent/input.csv",
		}},
		{Name: "report", Handler: "report"},
	}}

	root := t.TempDir()
	writeSessionCheckpoint(t, root, "s1", resumeCheckpoint(1, "ingest", wf), false)

	a, err := NewAnalyzer(root)
	if err != nil {
		t.Fatal(err)
	}
	d, err := a.Analyze(wf)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(d.ResourceWarnings) != 0 {
		t.Errorf("completed phase resources must not be checked, got %v", d.ResourceWarnings)
	}
	if d.Strategy != StrategyContinue {
		t.Errorf("expected continue, got %s", d.Strategy)
	}
}

func TestAnalyzerRequiresRoot(t *testing.T) {
	if _, err := NewAnalyzer(""); err == nil {
		t.Error("expected error for empty storage root")
	}
}
