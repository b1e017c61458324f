// Package session owns one logical agent identity at a time: its model
// adapter, its optional compiled graph, and the mutual-exclusion discipline
// that keeps at most one graph run in flight per session. It is grounded in
// the upstream engine's single-run rule (one Engine, one Run in flight),
// generalized here to one Session, at most one Run.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentloom/agentloom/compiler"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/runtime"
	"github.com/agentloom/agentloom/telemetry"
)

// Status mirrors the spec's Session record status enum.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Role distinguishes a top-level session from one spawned to do work on a
// manager's behalf.
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// Record is the external snapshot returned by Session.Info and listed by
// Registry — the full Session record field set from spec.md §3.
type Record struct {
	SessionID         string
	SessionName       string
	CreatedAt         time.Time
	LastActivity      time.Time
	Status            Status
	ErrorMessage      string
	ModelName         string
	MaxTurns          int
	Timeout           time.Duration
	Autonomous        bool
	MaxIterations     int
	Role              Role
	ManagerID         string
	WorkflowID        string
	StoragePath       string
	ProcessIdentifier string
}

// ExecuteResult is the legacy single-shot passthrough result (spec.md §4.B
// `execute`), bypassing the graph entirely.
type ExecuteResult struct {
	Output    string
	Duration  time.Duration
	ToolCalls []model.ToolCall
}

// Session owns one model adapter plus, optionally, one compiled graph.
// Sessions created without a workflow (raw-model sessions) support Execute
// only; Upgrade attaches a graph in place once a workflow is chosen.
type Session struct {
	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc // cancels the in-flight run's derived context; nil when idle
	runDone  chan struct{}      // closed when the in-flight run returns

	record Record
	model  model.Model
	memory node.MemoryManager

	compiled *compiler.Compiled
	rt       *runtime.Runtime

	freshness resilience.FreshnessConfig
	emitter   telemetry.Emitter

	iterations   int
	messageCount int

	lastState node.State
	history   []runtime.StepEvent
}

// newSession wires up the fields shared by create and upgrade.
func newSession(rec Record, m model.Model, memory node.MemoryManager, freshness resilience.FreshnessConfig, emitter telemetry.Emitter) *Session {
	if emitter == nil {
		emitter = telemetry.NewNullEmitter()
	}
	return &Session{record: rec, model: m, memory: memory, freshness: freshness, emitter: emitter}
}

// Info returns a snapshot of the session's current record.
func (s *Session) Info() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// attachGraph wires a compiled graph and runtime onto the session, used by
// both create(with a workflow) and Upgrade.
func (s *Session) attachGraph(compiled *compiler.Compiled, nodeTimeout time.Duration, metrics runtime.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiled = compiled
	s.rt = runtime.New(compiled, nodeTimeout, metrics)
}

// checkFreshness evaluates the reset condition at invoke/stream entry
// (spec.md §4.B, §4.F). When it trips, the session is marked error and a
// Stale error is returned.
func (s *Session) checkFreshness() error {
	now := time.Now()
	in := resilience.FreshnessInput{
		CreatedAt:    s.record.CreatedAt,
		LastActivity: s.record.LastActivity,
		Now:          now,
		Iterations:   s.iterations,
		MessageCount: s.messageCount,
	}
	if reset, reason := resilience.EvaluateFreshness(in, s.freshness); reset {
		s.record.Status = StatusError
		s.record.ErrorMessage = "freshness reset: " + reason
		s.emitter.Emit(telemetry.Event{
			SessionID: s.record.SessionID,
			Msg:       "freshness reset: " + reason,
		})
		return orcherr.New(orcherr.Stale, "session "+s.record.SessionID+" is stale: "+reason)
	}
	return nil
}

// beginRun enforces busy-fail mutual exclusion: a second concurrent
// invoke/stream on the same Session fails immediately rather than queuing.
// It derives a cancelable context from ctx and records the cancel func so a
// concurrent Registry.Delete can make the in-flight run observe cancellation
// at its next check (spec §5 "delete wins").
func (s *Session) beginRun(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return nil, orcherr.New(orcherr.Busy, "session "+s.record.SessionID+" already has a run in flight")
	}
	if err := s.checkFreshness(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancel = cancel
	s.runDone = make(chan struct{})
	s.record.Status = StatusRunning
	return runCtx, nil
}

// endRun records the outcome of a completed run. Per spec §7, an ordinary
// graph run — whether it succeeded or surfaced a node-execution error into
// state — leaves the session running so the caller can retry; status only
// moves to error for freshness and model-init failures, which fail before
// a run (or this session) exists and so never reach this path.
func (s *Session) endRun(final node.State, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.iterations++
	s.record.LastActivity = time.Now()
	if final != nil {
		s.lastState = final
	}
	if s.record.Status != StatusStopped {
		s.record.Status = StatusRunning
	}
	s.cancel = nil
	if s.runDone != nil {
		close(s.runDone)
		s.runDone = nil
	}
	_ = runErr // true runtime aborts (step cap, cancellation, bad graph) carry no session-status change either
}

// recordStep appends a step to the session's run history, consumed by
// GetHistory.
func (s *Session) recordStep(ev runtime.StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ev)
}

// Invoke runs the graph to completion and returns the final textual answer:
// "Error: "+message if the run captured a node error into state (spec §7),
// else final_answer if the graph set it, else last_output. Blocks the
// caller until the graph terminates or ctx is canceled.
func (s *Session) Invoke(ctx context.Context, input string, maxIterations int) (string, error) {
	if s.compiled == nil {
		return "", orcherr.New(orcherr.Validation, "session "+s.record.SessionID+" has no compiled graph; call Upgrade first")
	}
	runCtx, err := s.beginRun(ctx)
	if err != nil {
		return "", err
	}

	state := node.State{"input": input}
	if maxIterations > 0 {
		state["max_iterations"] = maxIterations
	}
	ectx := &node.ExecContext{Ctx: runCtx, SessionID: s.record.SessionID, Model: s.model, Memory: s.memory}

	final, runErr := s.rt.Stream(state, ectx, s.recordStep)
	s.endRun(final, runErr)
	if runErr != nil {
		return "", runErr
	}
	if msg := final.GetString("error"); msg != "" {
		return "Error: " + msg, nil
	}
	if answer := final.GetString("final_answer"); answer != "" {
		return answer, nil
	}
	return final.GetString("last_output"), nil
}

// Stream runs the graph like Invoke, calling onStep after each node
// completes with that node's id and state delta.
func (s *Session) Stream(ctx context.Context, input string, maxIterations int, onStep func(runtime.StepEvent)) error {
	if s.compiled == nil {
		return orcherr.New(orcherr.Validation, "session "+s.record.SessionID+" has no compiled graph; call Upgrade first")
	}
	runCtx, err := s.beginRun(ctx)
	if err != nil {
		return err
	}

	state := node.State{"input": input}
	if maxIterations > 0 {
		state["max_iterations"] = maxIterations
	}
	ectx := &node.ExecContext{Ctx: runCtx, SessionID: s.record.SessionID, Model: s.model, Memory: s.memory}

	final, runErr := s.rt.Stream(state, ectx, func(ev runtime.StepEvent) {
		s.recordStep(ev)
		onStep(ev)
	})
	s.endRun(final, runErr)
	return runErr
}

// CancelAndWait cancels the session's in-flight run, if any, and blocks up
// to timeout for it to return (spec §5 "delete wins": the run is signaled
// and the caller waits for it rather than tearing the model adapter out
// from under it). Returns true if the session was idle or the run finished
// within timeout, false if the wait timed out.
func (s *Session) CancelAndWait(timeout time.Duration) bool {
	s.mu.Lock()
	if !s.inFlight {
		s.mu.Unlock()
		return true
	}
	cancel := s.cancel
	done := s.runDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsAlive reports whether the session can still accept runs: it hasn't been
// stopped, and — for adapters that track it — the underlying model
// connection reports itself alive.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	stopped := s.record.Status == StatusStopped
	m := s.model
	s.mu.Unlock()
	if stopped {
		return false
	}
	if a, ok := m.(interface{ Alive() bool }); ok {
		return a.Alive()
	}
	return true
}

// GetState returns the state produced by the session's last completed run.
// thread_id is accepted for spec §6 API parity; this module keeps a single
// state stream per session rather than per-thread checkpoints, so it is
// currently unused (see DESIGN.md).
func (s *Session) GetState(threadID string) node.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastState.Clone()
}

// GetHistory returns the step deltas recorded across the session's runs so
// far, in order. thread_id is accepted for spec §6 API parity; see GetState.
func (s *Session) GetHistory(threadID string) []runtime.StepEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runtime.StepEvent, len(s.history))
	copy(out, s.history)
	return out
}

// Visualize renders the session's compiled graph as Graphviz DOT source for
// the editor collaborator. Returns "" if no graph is attached.
func (s *Session) Visualize() string {
	s.mu.Lock()
	compiled := s.compiled
	s.mu.Unlock()
	if compiled == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("digraph session {\n")
	b.WriteString("  rankdir=LR;\n")
	for id, cn := range compiled.Nodes {
		b.WriteString(fmt.Sprintf("  %q [label=%q];\n", id, id+"\n"+cn.Type.NodeType))
		if cn.Conditional {
			for port, target := range cn.PortTargets {
				label := target
				if target == compiler.Terminal {
					label = "end"
				}
				b.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", id, label, port))
			}
		} else if cn.Target != compiler.Terminal {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", id, cn.Target))
		} else {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", id, "end"))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Execute is the legacy single-shot passthrough to the model adapter,
// bypassing the graph entirely. It does not participate in the busy-fail
// discipline that guards Invoke/Stream, matching its "raw model access" role.
func (s *Session) Execute(ctx context.Context, prompt string, timeout time.Duration) (ExecuteResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := s.model.Invoke(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}})
	if err != nil {
		return ExecuteResult{}, err
	}
	s.mu.Lock()
	s.messageCount++
	s.record.LastActivity = time.Now()
	s.mu.Unlock()
	return ExecuteResult{Output: resp.Text, Duration: time.Since(start), ToolCalls: resp.ToolCalls}, nil
}

// closer lets Stop/Cleanup release model adapters that hold an OS resource
// (the CLI subprocess adapter, in particular) without widening model.Model's
// surface with a method most adapters don't need.
type closer interface {
	Close() error
}

// Stop tears down the model adapter and marks the session stopped. Safe to
// call more than once; the second call is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record.Status == StatusStopped {
		return nil
	}
	var err error
	if c, ok := s.model.(closer); ok {
		err = c.Close()
	}
	s.record.Status = StatusStopped
	return err
}

// Cleanup flushes memory (if any) and stops the session. Safe to call more
// than once.
func (s *Session) Cleanup(ctx context.Context) error {
	if s.memory != nil {
		if f, ok := s.memory.(interface{ Flush(context.Context, string) error }); ok {
			_ = f.Flush(ctx, s.record.SessionID)
		}
	}
	return s.Stop()
}
