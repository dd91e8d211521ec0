package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitter_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{
		RunID:     "run-001",
		Phase:     2,
		PhaseName: "score",
		Msg:       MsgPhaseCompleted,
	})

	out := buf.String()
	if !strings.Contains(out, "[phase_completed]") {
		t.Errorf("output missing message prefix: %q", out)
	}
	if !strings.Contains(out, "runID=run-001") {
		t.Errorf("output missing runID: %q", out)
	}
	if !strings.Contains(out, "phase=2") {
		t.Errorf("output missing phase: %q", out)
	}
	if !strings.Contains(out, "name=score") {
		t.Errorf("output missing phase name: %q", out)
	}
}

func TestLogEmitter_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{
		RunID:     "run-002",
		Phase:     1,
		PhaseName: "ingest",
		Msg:       MsgPhaseStarted,
		Meta:      map[string]interface{}{"handler": "ingest"},
	})

	var decoded struct {
		RunID     string                 `json:"runID"`
		Phase     int                    `json:"phase"`
		PhaseName string                 `json:"phaseName"`
		Msg       string                 `json:"msg"`
		Meta      map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.RunID != "run-002" {
		t.Errorf("runID = %q, want %q", decoded.RunID, "run-002")
	}
	if decoded.Phase != 1 {
		t.Errorf("phase = %d, want 1", decoded.Phase)
	}
	if decoded.Msg != MsgPhaseStarted {
		t.Errorf("msg = %q, want %q", decoded.Msg, MsgPhaseStarted)
	}
	if decoded.Meta["handler"] != "ingest" {
		t.Errorf("meta handler = %v, want %q", decoded.Meta["handler"], "ingest")
	}
}

func TestNullEmitter_Discards(t *testing.T) {
	emitter := NewNullEmitter()

	// Must not panic and must accept any event shape.
	emitter.Emit(Event{})
	emitter.Emit(Event{RunID: "run-001", Msg: MsgRunFailed, Meta: map[string]interface{}{"error": "x"}})
}

func TestBufferedEmitter_History(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{RunID: "run-001", Phase: 1, PhaseName: "ingest", Msg: MsgPhaseStarted})
	emitter.Emit(Event{RunID: "run-001", Phase: 1, PhaseName: "ingest", Msg: MsgPhaseCompleted})
	emitter.Emit(Event{RunID: "run-002", Phase: 1, PhaseName: "other", Msg: MsgPhaseStarted})

	history := emitter.History("run-001")
	if len(history) != 2 {
		t.Fatalf("expected 2 events for run-001, got %d", len(history))
	}
	if history[0].Msg != MsgPhaseStarted || history[1].Msg != MsgPhaseCompleted {
		t.Errorf("events out of order: %v", history)
	}

	if got := emitter.History("missing"); len(got) != 0 {
		t.Errorf("expected empty history for unknown run, got %d events", len(got))
	}
	if emitter.History("missing") == nil {
		t.Error("History must return empty slice, not nil")
	}
}

func TestBufferedEmitter_HistoryWithFilter(t *testing.T) {
	emitter := NewBufferedEmitter()
	for phase := 1; phase <= 3; phase++ {
		name := []string{"ingest", "score", "report"}[phase-1]
		emitter.Emit(Event{RunID: "run-001", Phase: phase, PhaseName: name, Msg: MsgPhaseStarted})
		emitter.Emit(Event{RunID: "run-001", Phase: phase, PhaseName: name, Msg: MsgPhaseCompleted})
	}

	t.Run("by phase name", func(t *testing.T) {
		got := emitter.HistoryWithFilter("run-001", HistoryFilter{PhaseName: "score"})
		if len(got) != 2 {
			t.Fatalf("expected 2 events for score, got %d", len(got))
		}
	})

	t.Run("by message", func(t *testing.T) {
		got := emitter.HistoryWithFilter("run-001", HistoryFilter{Msg: MsgPhaseCompleted})
		if len(got) != 3 {
			t.Fatalf("expected 3 completed events, got %d", len(got))
		}
	})

	t.Run("by phase range", func(t *testing.T) {
		min, max := 2, 3
		got := emitter.HistoryWithFilter("run-001", HistoryFilter{MinPhase: &min, MaxPhase: &max})
		if len(got) != 4 {
			t.Fatalf("expected 4 events in phases 2-3, got %d", len(got))
		}
	})

	t.Run("no match returns empty slice", func(t *testing.T) {
		got := emitter.HistoryWithFilter("run-001", HistoryFilter{PhaseName: "nope"})
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty slice, got %v", got)
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RunID: "run-001", Msg: MsgRunStarted})
	emitter.Emit(Event{RunID: "run-002", Msg: MsgRunStarted})

	emitter.Clear("run-001")
	if len(emitter.History("run-001")) != 0 {
		t.Error("run-001 events should be cleared")
	}
	if len(emitter.History("run-002")) != 1 {
		t.Error("run-002 events should survive a scoped clear")
	}

	emitter.Clear("")
	if len(emitter.History("run-002")) != 0 {
		t.Error("all events should be cleared")
	}
}
