package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/model/mock"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/store"
	"github.com/agentloom/agentloom/workflow"
)

func echoType() node.Type {
	return node.Type{
		NodeType:    "echo",
		OutputPorts: workflow.DefaultPorts(),
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			return node.State{"final_answer": "echo: " + state.GetString("input"), "is_complete": true}, nil
		},
	}
}

func erroringType() node.Type {
	return node.Type{
		NodeType:    "erroring",
		OutputPorts: workflow.DefaultPorts(),
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			return nil, orcherr.New(orcherr.Internal, "boom")
		},
	}
}

func linearWorkflowOf(nodeType string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "wf-" + nodeType,
		Name: nodeType,
		Nodes: []workflow.NodeInstance{
			{ID: "start", NodeType: workflow.NodeTypeStart},
			{ID: "n1", NodeType: nodeType},
			{ID: "end", NodeType: workflow.NodeTypeEnd},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "start", Target: "n1"},
			{ID: "e2", Source: "n1", Target: "end"},
		},
	}
}

func testRegistry(t *testing.T) *node.Registry {
	t.Helper()
	reg := node.NewRegistry(nil)
	reg.Register(echoType())
	return reg
}

func linearEchoWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "wf-echo",
		Name: "echo",
		Nodes: []workflow.NodeInstance{
			{ID: "start", NodeType: workflow.NodeTypeStart},
			{ID: "n1", NodeType: "echo"},
			{ID: "end", NodeType: workflow.NodeTypeEnd},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "start", Target: "n1"},
			{ID: "e2", Source: "n1", Target: "end"},
		},
	}
}

func newTestFactory(m model.Model) ModelFactory {
	return func(modelName, storagePath string) (model.Model, error) { return m, nil }
}

func TestRegistryCreateGetAndList(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	sess, err := reg.Create(context.Background(), CreateRequest{
		SessionName: "agent-1",
		ModelName:   "m",
		Role:        RoleManager,
		Workflow:    linearEchoWorkflow(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok := reg.Get(sess.Info().SessionID)
	if !ok || got != sess {
		t.Fatalf("expected Get to return the same session")
	}
	if list := reg.List(); len(list) != 1 {
		t.Fatalf("expected 1 listed session, got %d", len(list))
	}
}

func TestRegistryCreateIsIdempotentForSameID(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	req := CreateRequest{SessionID: "fixed-id", ModelName: "m", Workflow: linearEchoWorkflow()}
	first, err := reg.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := reg.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first != second {
		t.Fatalf("expected idempotent create to return the same session instance")
	}
}

func TestSessionInvokeReturnsFinalAnswer(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	sess, err := reg.Create(context.Background(), CreateRequest{ModelName: "m", Workflow: linearEchoWorkflow()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := sess.Invoke(context.Background(), "hello", 0)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "echo: hello" {
		t.Fatalf("got %q", out)
	}
	if got := sess.Info().Status; got != StatusRunning {
		t.Fatalf("expected session to remain running after a successful invoke, got %v", got)
	}
}

func TestSessionInvokeSurfacesNodeErrorAsTextAndStaysRunning(t *testing.T) {
	reg := node.NewRegistry(nil)
	reg.Register(erroringType())

	registry := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), reg,
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)
	sess, err := registry.Create(context.Background(), CreateRequest{ModelName: "m", Workflow: linearWorkflowOf("erroring")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := sess.Invoke(context.Background(), "hi", 0)
	if err != nil {
		t.Fatalf("invoke should not return a Go error for an ordinary node failure, got %v", err)
	}
	if !strings.HasPrefix(out, "Error: ") || !strings.Contains(out, "boom") {
		t.Fatalf("got %q, want an \"Error: ...boom...\" string", out)
	}
	if got := sess.Info().Status; got != StatusRunning {
		t.Fatalf("expected session to remain running after an ordinary graph error, got %v", got)
	}

	state := sess.GetState("")
	if !state.GetBool("is_complete") {
		t.Fatalf("expected final state to be marked complete")
	}
	history := sess.GetHistory("")
	if len(history) != 1 || history[0].NodeID != "n1" {
		t.Fatalf("expected one recorded step for n1, got %v", history)
	}
}

func TestSessionIsAliveAndVisualize(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)
	sess, err := reg.Create(context.Background(), CreateRequest{ModelName: "m", Workflow: linearEchoWorkflow()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sess.IsAlive() {
		t.Fatalf("expected freshly created session to be alive")
	}
	dot := sess.Visualize()
	if !strings.Contains(dot, "digraph") || !strings.Contains(dot, "n1") {
		t.Fatalf("expected DOT output to mention the graph and its node, got %q", dot)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sess.IsAlive() {
		t.Fatalf("expected stopped session to report not alive")
	}
}

func TestSessionInvokeIsMutuallyExclusive(t *testing.T) {
	gate := make(chan struct{})
	reg := node.NewRegistry(nil)
	reg.Register(node.Type{
		NodeType:    "blocking",
		OutputPorts: workflow.DefaultPorts(),
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			<-gate
			return node.State{"final_answer": "done"}, nil
		},
	})
	wf := &workflow.Workflow{
		ID: "wf-block",
		Nodes: []workflow.NodeInstance{
			{ID: "start", NodeType: workflow.NodeTypeStart},
			{ID: "n1", NodeType: "blocking"},
			{ID: "end", NodeType: workflow.NodeTypeEnd},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "start", Target: "n1"},
			{ID: "e2", Source: "n1", Target: "end"},
		},
	}

	registry := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), reg,
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)
	sess, err := registry.Create(context.Background(), CreateRequest{ModelName: "m", Workflow: wf})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = sess.Invoke(context.Background(), "first", 0)
	}()
	time.Sleep(20 * time.Millisecond) // let the first Invoke reach beginRun and block in the node

	_, err = sess.Invoke(context.Background(), "second", 0)
	if !orcherr.Is(err, orcherr.Busy) {
		t.Fatalf("expected Busy while a run is in flight, got %v", err)
	}

	close(gate)
	wg.Wait()
}

func TestRegistrySoftDeleteAndRestoreReuseSameID(t *testing.T) {
	wfStore := store.NewMemWorkflowStore()
	wf := linearEchoWorkflow()
	_ = wfStore.Save(context.Background(), wf)

	reg := NewRegistry(store.NewMemPersistenceStore(), wfStore, testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	sess, err := reg.Create(context.Background(), CreateRequest{
		SessionID: "sess-1", ModelName: "m", WorkflowID: wf.ID, Workflow: wf,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	originalID := sess.Info().SessionID

	if err := reg.Delete(context.Background(), originalID, false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := reg.Get(originalID); ok {
		t.Fatalf("expected session removed from live map after soft delete")
	}

	restored, err := reg.Restore(context.Background(), originalID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Info().SessionID != originalID {
		t.Fatalf("expected restore to reuse the same id, got %q", restored.Info().SessionID)
	}
}

func TestRegistryWorkersOfFiltersByManager(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "mgr-1", ModelName: "m", Role: RoleManager, Workflow: linearEchoWorkflow()})
	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "wk-1", ModelName: "m", Role: RoleWorker, ManagerID: "mgr-1", Workflow: linearEchoWorkflow()})
	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "wk-2", ModelName: "m", Role: RoleWorker, ManagerID: "other-mgr", Workflow: linearEchoWorkflow()})

	workers := reg.WorkersOf("mgr-1")
	if len(workers) != 1 || workers[0].SessionID != "wk-1" {
		t.Fatalf("got %v", workers)
	}
}

func TestRegistryDelegateStampsWorkerRoleAndManager(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "mgr-1", ModelName: "m", Role: RoleManager, Workflow: linearEchoWorkflow()})

	worker, err := reg.Delegate(context.Background(), "mgr-1", CreateRequest{
		SessionID: "wk-1", ModelName: "m", Role: RoleManager, Workflow: linearEchoWorkflow(),
	})
	if err != nil {
		t.Fatalf("delegate: %v", err)
	}
	info := worker.Info()
	if info.Role != RoleWorker || info.ManagerID != "mgr-1" {
		t.Fatalf("expected delegate to stamp role=worker, manager_id=mgr-1, got role=%v manager_id=%q", info.Role, info.ManagerID)
	}
}

func TestRegistryDeletingManagerDoesNotCascadeToWorkers(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)

	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "mgr-1", ModelName: "m", Role: RoleManager, Workflow: linearEchoWorkflow()})
	_, _ = reg.Create(context.Background(), CreateRequest{SessionID: "wk-1", ModelName: "m", Role: RoleWorker, ManagerID: "mgr-1", Workflow: linearEchoWorkflow()})

	if err := reg.Delete(context.Background(), "mgr-1", false); err != nil {
		t.Fatalf("delete manager: %v", err)
	}
	if _, ok := reg.Get("wk-1"); !ok {
		t.Fatalf("expected worker to survive manager deletion")
	}
}

func TestRegistryDeleteCancelsInFlightRunAndWaits(t *testing.T) {
	reg := node.NewRegistry(nil)
	reg.Register(node.Type{
		NodeType:    "wait_cancel",
		OutputPorts: workflow.DefaultPorts(),
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			<-ectx.Ctx.Done()
			return nil, ectx.Ctx.Err()
		},
	})

	registry := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), reg,
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)
	sess, err := registry.Create(context.Background(), CreateRequest{SessionID: "del-1", ModelName: "m", Workflow: linearWorkflowOf("wait_cancel")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.Invoke(context.Background(), "hi", 0)
	}()
	time.Sleep(20 * time.Millisecond) // let Invoke reach beginRun and block inside the node

	if err := registry.Delete(context.Background(), "del-1", false); err != nil {
		t.Fatalf("delete: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected delete's cancellation to unblock the in-flight invoke")
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	reg := NewRegistry(store.NewMemPersistenceStore(), store.NewMemWorkflowStore(), testRegistry(t),
		newTestFactory(mock.New("m")), resilience.FreshnessConfig{}, time.Second, nil, nil)
	sess, err := reg.Create(context.Background(), CreateRequest{ModelName: "m", Workflow: linearEchoWorkflow()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}
