package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)
	e.Emit(Event{SessionID: "s1", RunID: "r1", Step: 2, NodeID: "n1", Msg: "node_start"})
	out := buf.String()
	if !strings.Contains(out, "[node_start]") || !strings.Contains(out, "node=n1") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)
	e.Emit(Event{SessionID: "s1", Msg: "node_end", Meta: map[string]interface{}{"k": "v"}})
	if !strings.Contains(buf.String(), `"session_id":"s1"`) {
		t.Fatalf("expected JSON with session_id, got %q", buf.String())
	}
}

func TestNullEmitterDiscards(t *testing.T) {
	e := NewNullEmitter()
	e.Emit(Event{Msg: "whatever"})
	if err := e.EmitBatch(context.Background(), []Event{{Msg: "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBufferedEmitterHistoryAndClear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{SessionID: "s1", Msg: "a"})
	b.Emit(Event{SessionID: "s1", Msg: "b"})
	b.Emit(Event{SessionID: "s2", Msg: "c"})

	hist := b.History("s1")
	if len(hist) != 2 || hist[0].Msg != "a" || hist[1].Msg != "b" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	b.Clear("s1")
	if len(b.History("s1")) != 0 {
		t.Fatalf("expected empty history after clear")
	}
	if len(b.History("s2")) != 1 {
		t.Fatalf("clear should not affect other sessions")
	}
}
