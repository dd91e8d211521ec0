package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strataworks/strata/pipeline/emit"
)

// Strategy tags a resume decision with the recommended course of
// action.
type Strategy string

const (
	// StrategyContinue means the saved state matches the current
	// workflow and all referenced resources are reachable.
	StrategyContinue Strategy = "continue"

	// StrategyDrifted means the run can resume but the workflow
	// definition has changed since the checkpoint was written. The
	// caller should require explicit acknowledgment before continuing.
	StrategyDrifted Strategy = "drifted"

	// StrategyResourceWarning means the run can resume but one or more
	// resources referenced by the remaining phases are unreachable.
	StrategyResourceWarning Strategy = "resource-warning"

	// StrategyUnresumable means no usable checkpoint exists or the
	// saved state is incompatible with the current workflow.
	StrategyUnresumable Strategy = "unresumable"
)

// DriftItem describes one difference between the workflow recorded in
// a checkpoint and the workflow supplied for the resume attempt.
type DriftItem struct {
	// Phase is the 1-indexed position of the drifted phase; zero for
	// whole-workflow drift such as a phase-count change.
	Phase int `json:"phase"`

	// Field names what differs: "phase_count", "name", "handler", or
	// "config.<key>".
	Field string `json:"field"`

	// Saved is the value recorded in the checkpoint.
	Saved string `json:"saved"`

	// Current is the value in the workflow supplied now.
	Current string `json:"current"`
}

func (d DriftItem) String() string {
	if d.Phase == 0 {
		return fmt.Sprintf("%s: %q -> %q", d.Field, d.Saved, d.Current)
	}
	return fmt.Sprintf("phase %d %s: %q -> %q", d.Phase, d.Field, d.Saved, d.Current)
}

// Decision is the computed outcome of a resume analysis. It is never
// persisted; each resume attempt recomputes it from disk state.
type Decision struct {
	// Resumable reports whether execution can continue.
	Resumable bool

	// ResumePhase is the 1-indexed phase to run next. Zero when not
	// resumable.
	ResumePhase int

	// Strategy is the recommended course of action.
	Strategy Strategy

	// Drift lists detected workflow differences, empty when none.
	Drift []DriftItem

	// ResourceWarnings lists unreachable resources referenced by the
	// remaining phases, empty when none.
	ResourceWarnings []string

	// Guidance is human-readable text summarizing the analysis,
	// including remediation hints when the run is not resumable.
	Guidance string

	// Checkpoint is the candidate checkpoint, nil when none was found
	// or the payload was unreadable.
	Checkpoint *Checkpoint

	// Source is the path of the candidate checkpoint file, empty when
	// none was found.
	Source string
}

// Context returns the run context saved in the candidate checkpoint,
// or nil when the decision is not resumable.
func (d *Decision) Context() *RunContext {
	if d == nil || d.Checkpoint == nil {
		return nil
	}
	return d.Checkpoint.Context
}

// Analyzer reconstructs a resume Decision from on-disk checkpoint
// state.
//
// Discovery scans two historically distinct storage-root layouts and
// merges their results by modification time:
//
//	<root>/results/<session>/
//	<root>/experiments/<experimentName>/sessions/<sessionId>/
//
// The manifest embedded in the checkpoint payload is authoritative for
// phase index, handler, and status; the filename is a discovery hint
// only and is consulted just for guidance when the payload is
// unreadable.
type Analyzer struct {
	root string
	opts Options
}

// NewAnalyzer creates an Analyzer over a storage root.
func NewAnalyzer(root string, opts ...Option) (*Analyzer, error) {
	if root == "" {
		return nil, &PipelineError{Message: "storage root is required", Code: CodeInvalidWorkflow}
	}
	a := &Analyzer{root: root}
	for _, opt := range opts {
		opt(&a.opts)
	}
	return a, nil
}

// checkpointLayouts are the glob patterns, relative to the storage
// root, under which checkpoint files are discovered.
var checkpointLayouts = []string{
	filepath.Join("results", "*", "state_*.json"),
	filepath.Join("experiments", "*", "sessions", "*", "state_*.json"),
}

type candidate struct {
	path    string
	modTime int64
}

// Latest returns the most recently modified checkpoint across all
// recognized storage-root layouts, along with its path.
//
// Returns ErrNoCheckpoint (wrapped) when no checkpoint file exists,
// and ErrCheckpointUnparsable (wrapped) when the newest file cannot be
// decoded.
func (a *Analyzer) Latest() (*Checkpoint, string, error) {
	candidates, err := a.discover()
	if err != nil {
		return nil, "", err
	}
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("%s: %w", a.root, ErrNoCheckpoint)
	}

	path := candidates[0].path
	cp, err := LoadCheckpoint(path)
	if err != nil {
		return nil, path, err
	}
	return cp, path, nil
}

func (a *Analyzer) discover() ([]candidate, error) {
	var candidates []candidate
	for _, layout := range checkpointLayouts {
		matches, err := filepath.Glob(filepath.Join(a.root, layout))
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", layout, err)
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{path: path, modTime: info.ModTime().UnixNano()})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path > candidates[j].path
	})
	return candidates, nil
}

// Analyze computes a resume Decision for the supplied workflow.
//
// An unresumable outcome is reported through the Decision, not as an
// error; the returned error is reserved for analysis failures and for
// the DriftFail policy rejecting a drifted run.
func (a *Analyzer) Analyze(wf Workflow) (*Decision, error) {
	cp, source, err := a.Latest()
	if err != nil {
		decision := a.unresumable(source, err)
		if decision != nil {
			a.finish(decision)
			return decision, nil
		}
		return nil, err
	}

	manifest := cp.Manifest
	resumePhase := manifest.PhaseIndex
	if manifest.Status == StatusCompleted {
		resumePhase++
	}

	decision := &Decision{
		ResumePhase: resumePhase,
		Checkpoint:  cp,
		Source:      source,
	}

	if resumePhase < 1 || resumePhase > wf.Len() {
		decision.Resumable = false
		decision.ResumePhase = 0
		decision.Strategy = StrategyUnresumable
		decision.Guidance = fmt.Sprintf(
			"checkpoint %s points at phase %d but the current workflow has %d phases; "+
				"the saved run does not fit this workflow. Check that the right workflow "+
				"definition was supplied, or start a fresh run.",
			filepath.Base(source), resumePhase, wf.Len())
		a.finish(decision)
		return decision, nil
	}

	decision.Resumable = true
	decision.Drift = diffWorkflows(cp.Workflow, wf)
	decision.ResourceWarnings = checkResources(wf, resumePhase)
	a.opts.Metrics.RecordDriftItems(len(decision.Drift))

	switch {
	case len(decision.Drift) > 0:
		decision.Strategy = StrategyDrifted
	case len(decision.ResourceWarnings) > 0:
		decision.Strategy = StrategyResourceWarning
	default:
		decision.Strategy = StrategyContinue
	}
	decision.Guidance = a.guidance(decision, manifest)
	a.finish(decision)

	if decision.Strategy == StrategyDrifted && a.opts.Drift == DriftFail {
		return decision, fmt.Errorf("%d drift item(s): %w", len(decision.Drift), ErrDriftRejected)
	}
	return decision, nil
}

// unresumable maps a Latest failure to a Decision, or nil when the
// failure is not one of the recognized unresumable conditions.
func (a *Analyzer) unresumable(source string, err error) *Decision {
	switch {
	case errors.Is(err, ErrNoCheckpoint):
		return &Decision{
			Strategy: StrategyUnresumable,
			Guidance: fmt.Sprintf("no resumable state found under %s. Expected checkpoint files "+
				"under results/<session>/ or experiments/<name>/sessions/<id>/. Start a fresh run.", a.root),
		}
	case errors.Is(err, ErrCheckpointUnparsable):
		guidance := fmt.Sprintf("checkpoint %s exists but cannot be decoded; it may be truncated "+
			"or hand-edited. Remove or repair the file, or start a fresh run.", filepath.Base(source))
		if m, ok := ParseCheckpointName(filepath.Base(source)); ok {
			guidance += fmt.Sprintf(" The filename suggests phase %d (%s).", m.PhaseIndex, m.Status)
		}
		return &Decision{Strategy: StrategyUnresumable, Source: source, Guidance: guidance}
	default:
		return nil
	}
}

func (a *Analyzer) guidance(d *Decision, m Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "last checkpoint: phase %d (%s, %s); resume at phase %d.",
		m.PhaseIndex, m.Handler, m.Status, d.ResumePhase)
	if len(d.Drift) > 0 {
		fmt.Fprintf(&b, " Workflow drifted in %d place(s):", len(d.Drift))
		for _, item := range d.Drift {
			fmt.Fprintf(&b, " %s;", item.String())
		}
		b.WriteString(" acknowledge the changes before continuing.")
	}
	if len(d.ResourceWarnings) > 0 {
		fmt.Fprintf(&b, " %d resource warning(s):", len(d.ResourceWarnings))
		for _, w := range d.ResourceWarnings {
			fmt.Fprintf(&b, " %s;", w)
		}
	}
	return b.String()
}

func (a *Analyzer) finish(d *Decision) {
	if a.opts.Emitter == nil {
		return
	}
	runID := ""
	if rc := d.Context(); rc != nil {
		runID = rc.RunID
	}
	a.opts.Emitter.Emit(emit.Event{
		RunID: runID,
		Phase: d.ResumePhase,
		Msg:   emit.MsgResumeAnalyzed,
		Meta: map[string]interface{}{
			"strategy":          string(d.Strategy),
			"drift_items":       len(d.Drift),
			"resource_warnings": len(d.ResourceWarnings),
			"source":            d.Source,
		},
	})
}

// diffWorkflows compares the workflow recorded in a checkpoint against
// the one supplied now, phase by phase.
func diffWorkflows(saved, current Workflow) []DriftItem {
	var items []DriftItem
	if saved.Len() != current.Len() {
		items = append(items, DriftItem{
			Field:   "phase_count",
			Saved:   fmt.Sprintf("%d", saved.Len()),
			Current: fmt.Sprintf("%d", current.Len()),
		})
	}

	n := saved.Len()
	if current.Len() < n {
		n = current.Len()
	}
	for i := 0; i < n; i++ {
		s, c := saved.Phases[i], current.Phases[i]
		if s.Name != c.Name {
			items = append(items, DriftItem{Phase: i + 1, Field: "name", Saved: s.Name, Current: c.Name})
		}
		if s.Handler != c.Handler {
			items = append(items, DriftItem{Phase: i + 1, Field: "handler", Saved: s.Handler, Current: c.Handler})
		}
		items = append(items, diffConfigs(i+1, s.Config, c.Config)...)
	}
	return items
}

func diffConfigs(phase int, saved, current PhaseConfig) []DriftItem {
	keys := make(map[string]struct{}, len(saved)+len(current))
	for k := range saved {
		keys[k] = struct{}{}
	}
	for k := range current {
		keys[k] = struct{}{}
	}

	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var items []DriftItem
	for _, k := range ordered {
		sv, sok := saved[k]
		cv, cok := current[k]
		if sok && cok && sv == cv {
			continue
		}
		items = append(items, DriftItem{Phase: phase, Field: "config." + k, Saved: sv, Current: cv})
	}
	return items
}

// checkResources validates resources declared in the config of the
// remaining phases. Keys ending in "_path" must name an existing file
// or directory; keys ending in "_env" must name a set environment
// variable. Unreachable resources are warnings, never failures.
func checkResources(wf Workflow, resumePhase int) []string {
	var warnings []string
	for i := resumePhase - 1; i < wf.Len(); i++ {
		spec := wf.Phases[i]
		keys := make([]string, 0, len(spec.Config))
		for k := range spec.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := spec.Config[k]
			switch {
			case strings.HasSuffix(k, "_path"):
				if _, err := os.Stat(v); err != nil {
					warnings = append(warnings,
						fmt.Sprintf("phase %d (%s): %s %q is not reachable", i+1, spec.Name, k, v))
				}
			case strings.HasSuffix(k, "_env"):
				if os.Getenv(v) == "" {
					warnings = append(warnings,
						fmt.Sprintf("phase %d (%s): environment variable %q named by %s is not set", i+1, spec.Name, v, k))
				}
			}
		}
	}
	return warnings
}
