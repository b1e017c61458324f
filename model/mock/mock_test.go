package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/agentloom/agentloom/model"
)

func TestModelReturnsResponsesInOrderThenRepeatsLast(t *testing.T) {
	m := New("test-model", model.Response{Text: "first"}, model.Response{Text: "second"})

	for i, want := range []string{"first", "second", "second"} {
		resp, err := m.Invoke(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if resp.Text != want {
			t.Fatalf("call %d: got %q, want %q", i, resp.Text, want)
		}
	}
	if m.CallCount() != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", m.CallCount())
	}
}

func TestModelErrInjection(t *testing.T) {
	m := New("test-model")
	m.Err = errors.New("boom")
	if _, err := m.Invoke(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestModelRespectsContextCancellation(t *testing.T) {
	m := New("test-model", model.Response{Text: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Invoke(ctx, nil); err == nil {
		t.Fatalf("expected context error")
	}
}
