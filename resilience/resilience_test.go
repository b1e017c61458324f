package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentloom/agentloom/orcherr"
)

func TestEstimateBudgetStatusBands(t *testing.T) {
	cases := []struct {
		chars  int
		limit  string
		status BudgetStatus
	}{
		{chars: 100, limit: "claude-opus-4", status: BudgetOK},
	}
	for _, c := range cases {
		msgs := []BudgetMessage{{Content: string(make([]byte, c.chars))}}
		b := EstimateBudget(c.limit, msgs, 0)
		if b.Status != c.status {
			t.Fatalf("chars=%d: got status %s, want %s", c.chars, b.Status, c.status)
		}
	}

	// Drive past each threshold using claude-opus-4's 200k limit.
	limit := ContextLimitFor("claude-opus-4")
	mk := func(ratio float64) []BudgetMessage {
		chars := int(float64(limit)*ratio) * 4
		return []BudgetMessage{{Content: string(make([]byte, chars))}}
	}
	if got := EstimateBudget("claude-opus-4", mk(0.5), 0).Status; got != BudgetOK {
		t.Fatalf("0.5 ratio: got %s", got)
	}
	if got := EstimateBudget("claude-opus-4", mk(0.8), 0).Status; got != BudgetWarning {
		t.Fatalf("0.8 ratio: got %s", got)
	}
	if got := EstimateBudget("claude-opus-4", mk(0.95), 0).Status; got != BudgetBlock {
		t.Fatalf("0.95 ratio: got %s", got)
	}
	if got := EstimateBudget("claude-opus-4", mk(1.1), 0).Status; got != BudgetOverflow {
		t.Fatalf("1.1 ratio: got %s", got)
	}
}

func TestContextLimitFallsBackForUnknownModel(t *testing.T) {
	if got := ContextLimitFor("some-unknown-model"); got != defaultContextLimit {
		t.Fatalf("got %d, want default %d", got, defaultContextLimit)
	}
}

func TestParseCompletionSignal(t *testing.T) {
	cases := []struct {
		text   string
		signal Signal
		detail string
	}{
		{"all done [TASK_COMPLETE]", SignalComplete, ""},
		{"stuck [blocked: need API key]", SignalBlocked, "need API key"},
		{"oops [ERROR: bad input]", SignalError, "bad input"},
		{"keep going [CONTINUE: check logs]", SignalContinue, "check logs"},
		{"nothing special here", SignalNone, ""},
		// Earliest marker by string position wins, not a fixed kind priority:
		// [CONTINUE] appears before [TASK_COMPLETE] here, so continue wins.
		{"[CONTINUE: x] still working ... [TASK_COMPLETE]", SignalContinue, "x"},
		{"[TASK_COMPLETE] ... [CONTINUE: x]", SignalComplete, ""},
	}
	for _, c := range cases {
		signal, detail := ParseCompletionSignal(c.text)
		if signal != c.signal || detail != c.detail {
			t.Fatalf("text=%q: got (%s, %q), want (%s, %q)", c.text, signal, detail, c.signal, c.detail)
		}
	}
}

func TestClassifyMapsOrcherrKinds(t *testing.T) {
	err := orcherr.New(orcherr.RateLimited, "too many requests")
	if got := Classify(err); got != ReasonRateLimited {
		t.Fatalf("got %s", got)
	}
	if !ReasonRateLimited.Recoverable() {
		t.Fatalf("expected rate_limited to be recoverable")
	}
	if ReasonAuth.Recoverable() {
		t.Fatalf("expected auth to be non-recoverable")
	}
	if got := Classify(errors.New("plain error")); got != ReasonUnknown {
		t.Fatalf("got %s, want unknown", got)
	}
}

func TestRetrySucceedsAfterRecoverableFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return orcherr.New(orcherr.Overloaded, "busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryStopsImmediatelyOnNonRecoverable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return orcherr.New(orcherr.Auth, "bad credentials")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for non-recoverable error, got %d", attempts)
	}
}

func TestEvaluateFreshnessChecksInOrder(t *testing.T) {
	now := time.Now()
	in := FreshnessInput{CreatedAt: now.Add(-2 * time.Hour), LastActivity: now, Now: now}
	cfg := FreshnessConfig{MaxAge: time.Hour}
	reset, reason := EvaluateFreshness(in, cfg)
	if !reset || reason == "" {
		t.Fatalf("expected age-based reset")
	}
}

func TestEvaluateFreshnessOKWithinThresholds(t *testing.T) {
	now := time.Now()
	in := FreshnessInput{CreatedAt: now.Add(-time.Minute), LastActivity: now, Now: now, Iterations: 1, MessageCount: 1}
	cfg := FreshnessConfig{MaxAge: time.Hour, MaxIdle: time.Hour, MaxIterationsPerRun: 10, MaxMessages: 10}
	reset, _ := EvaluateFreshness(in, cfg)
	if reset {
		t.Fatalf("expected no reset within thresholds")
	}
}
