package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("test")
	emitter := NewOTelEmitter(tracer)

	emitter.Emit(Event{
		RunID:     "run-001",
		Phase:     2,
		PhaseName: "score",
		Msg:       MsgPhaseCompleted,
		Meta: map[string]interface{}{
			"handler":     "score",
			"duration_ms": int64(120),
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != MsgPhaseCompleted {
		t.Errorf("span name = %q, want %q", span.Name, MsgPhaseCompleted)
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["strata.run_id"]; got != "run-001" {
		t.Errorf("run_id = %v, want %q", got, "run-001")
	}
	if got := attrs["strata.phase"]; got != int64(2) {
		t.Errorf("phase = %v, want 2", got)
	}
	if got := attrs["strata.phase_name"]; got != "score" {
		t.Errorf("phase_name = %v, want %q", got, "score")
	}
	if got := attrs["strata.phase.handler"]; got != "score" {
		t.Errorf("handler attribute = %v, want %q", got, "score")
	}
	if got := attrs["strata.phase.duration_ms"]; got != int64(120) {
		t.Errorf("duration attribute = %v, want 120", got)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:     "run-001",
		Phase:     3,
		PhaseName: "transform",
		Msg:       MsgPhaseFailed,
		Meta:      map[string]interface{}{"error": "handler refused input"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected a recorded error event on the span")
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	events := []Event{
		{RunID: "run-001", Phase: 1, PhaseName: "ingest", Msg: MsgPhaseStarted},
		{RunID: "run-001", Phase: 1, PhaseName: "ingest", Msg: MsgPhaseCompleted},
	}

	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 2 {
		t.Fatalf("expected 2 spans, got %d", got)
	}
}

func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Msg: MsgRunCompleted})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Fatalf("expected 1 span after flush, got %d", got)
	}
}
