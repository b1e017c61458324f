// Package runtime drives a compiler.Compiled state machine to termination:
// single-threaded, cooperative, one node invocation at a time, enforcing a
// global step cap, per-node timeout, and cancellation between nodes.
package runtime

import (
	"context"
	"time"

	"github.com/agentloom/agentloom/compiler"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/orcherr"
)

// stepCapMultiplier is the heuristic safety factor applied to
// state.max_iterations to bound runs against malformed graphs, independent
// of any iteration-gate node inside the graph itself.
const stepCapMultiplier = 4

// StepEvent is yielded by Stream after each node completes.
type StepEvent struct {
	NodeID string
	Delta  node.State
}

// Runtime walks a compiled graph for one run.
type Runtime struct {
	Compiled       *compiler.Compiled
	NodeTimeout    time.Duration // per-node invocation timeout; zero disables it
	Metrics        Metrics
}

// Metrics receives per-step observations; NoopMetrics discards them.
type Metrics interface {
	ObserveStep(nodeID string, duration time.Duration)
	ObserveRetry(nodeID string)
}

// NoopMetrics implements Metrics with no-ops.
type NoopMetrics struct{}

func (NoopMetrics) ObserveStep(string, time.Duration) {}
func (NoopMetrics) ObserveRetry(string)                {}

// New builds a Runtime over a compiled machine. A nil metrics defaults to
// NoopMetrics.
func New(compiled *compiler.Compiled, nodeTimeout time.Duration, metrics Metrics) *Runtime {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Runtime{Compiled: compiled, NodeTimeout: nodeTimeout, Metrics: metrics}
}

// Run drives the graph from initialState to completion, returning the
// final state. ectx.Ctx supplies cancellation; it is checked between node
// invocations (not preemptively inside an in-flight model call).
func (rt *Runtime) Run(initialState node.State, ectx *node.ExecContext) (node.State, error) {
	var final node.State
	err := rt.walk(initialState, ectx, func(StepEvent) {}, func(s node.State) { final = s })
	return final, err
}

// Stream drives the graph like Run but invokes onStep after every node
// completes, carrying that node's id and state delta.
func (rt *Runtime) Stream(initialState node.State, ectx *node.ExecContext, onStep func(StepEvent)) (node.State, error) {
	var final node.State
	err := rt.walk(initialState, ectx, onStep, func(s node.State) { final = s })
	return final, err
}

func (rt *Runtime) walk(initialState node.State, ectx *node.ExecContext, onStep func(StepEvent), onFinal func(node.State)) error {
	state := initialState.Clone()
	maxIterations := state.GetInt("max_iterations")
	if maxIterations <= 0 {
		maxIterations = 25 // conservative default when the caller omits it
	}
	stepCap := maxIterations * stepCapMultiplier

	current := rt.Compiled.EntryID
	steps := 0

	for current != compiler.Terminal {
		steps++
		if steps > stepCap {
			onFinal(state)
			return orcherr.New(orcherr.Runaway, "exceeded global step cap")
		}

		select {
		case <-ectx.Ctx.Done():
			onFinal(state)
			return orcherr.Wrap(orcherr.Canceled, "run canceled", ectx.Ctx.Err())
		default:
		}

		cn, ok := rt.Compiled.Nodes[current]
		if !ok {
			onFinal(state)
			return orcherr.New(orcherr.Internal, "no compiled node for id "+current)
		}

		delta, err := rt.invoke(cn, state, ectx)
		if err != nil {
			// Spec §7: an ordinary node-execution failure does not abort the
			// run. It is captured into state and the run terminates normally
			// so the caller (Session.Invoke/Stream) can surface "Error: ..."
			// and the session stays running, able to retry.
			state = state.Clone()
			state["error"] = err.Error()
			state["is_complete"] = true
			onStep(StepEvent{NodeID: cn.ID, Delta: node.State{"error": err.Error(), "is_complete": true}})
			onFinal(state)
			return nil
		}
		state = Merge(state, delta)
		onStep(StepEvent{NodeID: cn.ID, Delta: delta})

		next := cn.Target
		if cn.Conditional {
			port := cn.Routing(state, cn.Config)
			target, known := cn.PortTargets[port]
			if !known {
				onFinal(state)
				return orcherr.New(orcherr.Internal, "routing produced unknown port "+port)
			}
			next = target
		}
		current = next
	}

	onFinal(state)
	return nil
}

func (rt *Runtime) invoke(cn compiler.CompiledNode, state node.State, ectx *node.ExecContext) (node.State, error) {
	start := time.Now()
	defer func() { rt.Metrics.ObserveStep(cn.ID, time.Since(start)) }()

	callCtx := ectx.Ctx
	var cancel context.CancelFunc
	if rt.NodeTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ectx.Ctx, rt.NodeTimeout)
		defer cancel()
	}

	nodeCtx := &node.ExecContext{
		Ctx:       callCtx,
		SessionID: ectx.SessionID,
		RunID:     ectx.RunID,
		Model:     ectx.Model,
		Memory:    ectx.Memory,
	}

	delta, err := cn.Type.Execute(state, nodeCtx, cn.Config)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, orcherr.Wrap(orcherr.Timeout, "node "+cn.ID+" timed out", err)
		}
		return nil, err
	}
	return delta, nil
}
