package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentloom/agentloom/compiler"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/runtime"
	"github.com/agentloom/agentloom/store"
	"github.com/agentloom/agentloom/telemetry"
	"github.com/agentloom/agentloom/workflow"
)

// ModelFactory builds a fresh model.Model for a given model name and
// per-session storage path (the CLI adapter needs a working directory; the
// direct-API adapters ignore it).
type ModelFactory func(modelName, storagePath string) (model.Model, error)

// CreateRequest is the input to Registry.Create.
type CreateRequest struct {
	SessionID     string // optional; assigned if empty
	SessionName   string
	ModelName     string
	MaxTurns      int
	Timeout       time.Duration
	Autonomous    bool
	MaxIterations int
	Role          Role
	ManagerID     string
	WorkflowID    string
	StoragePath   string
	Memory        node.MemoryManager

	// Workflow, when set, is compiled immediately so the session supports
	// Invoke/Stream. Sessions created without it are raw-model sessions
	// that support Execute only, until Upgrade attaches a graph.
	Workflow *workflow.Workflow
}

// snapshot converts a CreateRequest into the opaque creation-parameter bag
// the persistence collaborator stores for later Restore.
func (r CreateRequest) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"session_name":   r.SessionName,
		"model_name":     r.ModelName,
		"max_turns":      r.MaxTurns,
		"timeout_ms":     r.Timeout.Milliseconds(),
		"autonomous":     r.Autonomous,
		"max_iterations": r.MaxIterations,
		"role":           string(r.Role),
		"manager_id":     r.ManagerID,
		"workflow_id":    r.WorkflowID,
		"storage_path":   r.StoragePath,
	}
}

// requestFromParams rebuilds a CreateRequest from a stored creation-params
// snapshot, used by Restore.
func requestFromParams(id string, params map[string]interface{}) CreateRequest {
	getStr := func(k string) string { s, _ := params[k].(string); return s }
	getInt := func(k string) int {
		switch v := params[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return 0
	}
	getBool := func(k string) bool { b, _ := params[k].(bool); return b }
	return CreateRequest{
		SessionID:     id,
		SessionName:   getStr("session_name"),
		ModelName:     getStr("model_name"),
		MaxTurns:      getInt("max_turns"),
		Timeout:       time.Duration(getInt("timeout_ms")) * time.Millisecond,
		Autonomous:    getBool("autonomous"),
		MaxIterations: getInt("max_iterations"),
		Role:          Role(getStr("role")),
		ManagerID:     getStr("manager_id"),
		WorkflowID:    getStr("workflow_id"),
		StoragePath:   getStr("storage_path"),
	}
}

// Registry owns every live Session, keyed by id. It never holds its mutex
// across a blocking call into a Session — the same discipline the upstream
// engine applies to its nodes/edges maps around node execution.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	persistence store.PersistenceStore
	workflows   store.WorkflowStore
	nodeTypes   *node.Registry
	models      ModelFactory

	freshness   resilience.FreshnessConfig
	nodeTimeout time.Duration
	metrics     runtime.Metrics
	emitter     telemetry.Emitter
}

// NewRegistry builds an empty Registry. metrics/emitter default to no-ops
// when nil.
func NewRegistry(
	persistence store.PersistenceStore,
	workflows store.WorkflowStore,
	nodeTypes *node.Registry,
	models ModelFactory,
	freshness resilience.FreshnessConfig,
	nodeTimeout time.Duration,
	metrics runtime.Metrics,
	emitter telemetry.Emitter,
) *Registry {
	if metrics == nil {
		metrics = runtime.NoopMetrics{}
	}
	if emitter == nil {
		emitter = telemetry.NewNullEmitter()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		persistence: persistence,
		workflows:   workflows,
		nodeTypes:   nodeTypes,
		models:      models,
		freshness:   freshness,
		nodeTimeout: nodeTimeout,
		metrics:     metrics,
		emitter:     emitter,
	}
}

// Create spawns a new Session: builds its model adapter, compiles its graph
// if a workflow was supplied, and registers a metadata snapshot with the
// persistence collaborator. Create is idempotent across retries: calling it
// again with the same SessionID on an already-live session returns the
// existing Session rather than rebuilding it.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	r.mu.RLock()
	if existing, ok := r.sessions[req.SessionID]; ok {
		r.mu.RUnlock()
		return existing, nil
	}
	r.mu.RUnlock()

	m, err := r.models(req.ModelName, req.StoragePath)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.Internal, "create session: spawn model", err)
	}

	now := time.Now()
	rec := Record{
		SessionID:         req.SessionID,
		SessionName:       req.SessionName,
		CreatedAt:         now,
		LastActivity:       now,
		Status:            StatusStarting,
		ModelName:         req.ModelName,
		MaxTurns:          req.MaxTurns,
		Timeout:           req.Timeout,
		Autonomous:        req.Autonomous,
		MaxIterations:     req.MaxIterations,
		Role:              req.Role,
		ManagerID:         req.ManagerID,
		WorkflowID:        req.WorkflowID,
		StoragePath:       req.StoragePath,
		ProcessIdentifier: req.SessionID,
	}

	sess := newSession(rec, m, req.Memory, r.freshness, r.emitter)

	if req.Workflow != nil {
		compiled, err := compiler.Compile(req.Workflow, r.nodeTypes)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Validation, "create session: compile workflow", err)
		}
		sess.attachGraph(compiled, r.nodeTimeout, r.metrics)
	}
	sess.record.Status = StatusRunning

	if r.persistence != nil {
		snap := toSnapshot(sess.record)
		snap.CreationParams = req.snapshot()
		if err := r.persistence.Register(ctx, snap); err != nil {
			return nil, orcherr.Wrap(orcherr.Internal, "create session: register metadata", err)
		}
	}

	r.mu.Lock()
	r.sessions[req.SessionID] = sess
	r.mu.Unlock()

	r.emitter.Emit(telemetry.Event{SessionID: req.SessionID, Msg: "session created"})
	return sess, nil
}

// Get returns the live Session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns every live session's record.
func (r *Registry) List() []Record {
	return r.filter(func(Record) bool { return true })
}

// ListManagers returns every live session with role=manager.
func (r *Registry) ListManagers() []Record {
	return r.filter(func(rec Record) bool { return rec.Role == RoleManager })
}

// WorkersOf returns every live session with role=worker and manager_id ==
// managerID. Workers reference their manager by id only; this is a lookup,
// never a lifetime dependence.
func (r *Registry) WorkersOf(managerID string) []Record {
	return r.filter(func(rec Record) bool { return rec.Role == RoleWorker && rec.ManagerID == managerID })
}

// Delegate creates a worker session on behalf of managerID, stamping
// Role=RoleWorker and ManagerID=managerID onto workerReq regardless of what
// the caller set there. A convenience over Create, mirroring the upstream
// manager/worker session-spawning flow.
func (r *Registry) Delegate(ctx context.Context, managerID string, workerReq CreateRequest) (*Session, error) {
	workerReq.Role = RoleWorker
	workerReq.ManagerID = managerID
	return r.Create(ctx, workerReq)
}

func (r *Registry) filter(keep func(Record) bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.sessions))
	for _, s := range r.sessions {
		rec := s.Info()
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// deleteWait is how long Delete/PermanentDelete block for an in-flight run
// to observe cancellation and return before the session is torn down
// (spec §5 "delete wins").
const deleteWait = 10 * time.Second

// Delete soft-deletes a session: cancels any in-flight run and waits for it
// to finish (up to deleteWait) before stopping its process, removes it from
// the live map, and asks the persistence collaborator to mark it deleted.
// Metadata is retained; the storage directory is preserved unless
// cleanupStorage is set (storage teardown is the caller's collaborator's
// concern — the registry only records the request via telemetry).
func (r *Registry) Delete(ctx context.Context, id string, cleanupStorage bool) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		if !sess.CancelAndWait(deleteWait) {
			r.emitter.Emit(telemetry.Event{SessionID: id, Msg: "delete: in-flight run did not finish within wait; stopping anyway"})
		}
		_ = sess.Stop()
	}
	if r.persistence != nil {
		if err := r.persistence.SoftDelete(ctx, id); err != nil {
			return err
		}
	}
	if cleanupStorage {
		r.emitter.Emit(telemetry.Event{SessionID: id, Msg: "storage cleanup requested"})
	}
	return nil
}

// PermanentDelete cancels any in-flight run, waits for it (up to
// deleteWait), stops the session if live, removes its storage directory
// (taken from the live record, else from the persisted snapshot), then
// erases its metadata.
func (r *Registry) PermanentDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	storagePath := ""
	if ok {
		sess.CancelAndWait(deleteWait)
		_ = sess.Stop()
		storagePath = sess.Info().StoragePath
	} else if r.persistence != nil {
		if snap, err := r.persistence.Get(ctx, id); err == nil {
			storagePath = snap.StoragePath
		}
	}
	if storagePath != "" {
		if err := os.RemoveAll(storagePath); err != nil {
			return orcherr.Wrap(orcherr.Internal, "permanent delete: remove storage", err)
		}
	}
	if r.persistence == nil {
		return nil
	}
	return r.persistence.PermanentDelete(ctx, id)
}

// Restore recreates a soft-deleted session from its stored creation
// parameters, reusing the same id (and therefore the same storage
// directory). The persistence collaborator marks the record undeleted as
// part of Create's Register call.
func (r *Registry) Restore(ctx context.Context, id string) (*Session, error) {
	if r.persistence == nil {
		return nil, orcherr.New(orcherr.Internal, "restore: no persistence collaborator configured")
	}
	params, err := r.persistence.GetCreationParams(ctx, id)
	if err != nil {
		return nil, err
	}
	req := requestFromParams(id, params)

	if req.WorkflowID != "" && r.workflows != nil {
		wf, err := r.workflows.Load(ctx, req.WorkflowID)
		if err == nil {
			req.Workflow = wf
		}
	}
	return r.Create(ctx, req)
}

// CleanupDead removes live sessions whose status has gone to error and
// whose model adapter no longer reports itself alive, soft-deleting their
// metadata so Restore remains possible.
func (r *Registry) CleanupDead(ctx context.Context) error {
	r.mu.RLock()
	var dead []string
	for id, s := range r.sessions {
		rec := s.Info()
		if rec.Status != StatusError {
			continue
		}
		if a, ok := s.model.(interface{ Alive() bool }); ok && a.Alive() {
			continue
		}
		dead = append(dead, id)
	}
	r.mu.RUnlock()

	for _, id := range dead {
		if err := r.Delete(ctx, id, false); err != nil {
			return err
		}
	}
	return nil
}

// Upgrade compiles wf against the node registry and attaches it to an
// existing raw-model session, converting it in place from Execute-only to
// Invoke/Stream-capable.
func (r *Registry) Upgrade(ctx context.Context, id string, wf *workflow.Workflow) error {
	sess, ok := r.Get(id)
	if !ok {
		return orcherr.New(orcherr.NotFound, "session not found: "+id)
	}
	compiled, err := compiler.Compile(wf, r.nodeTypes)
	if err != nil {
		return orcherr.Wrap(orcherr.Validation, "upgrade session: compile workflow", err)
	}
	sess.attachGraph(compiled, r.nodeTimeout, r.metrics)
	sess.mu.Lock()
	sess.record.WorkflowID = wf.ID
	sess.mu.Unlock()
	return nil
}

func toSnapshot(rec Record) store.SessionSnapshot {
	return store.SessionSnapshot{
		SessionID:         rec.SessionID,
		SessionName:       rec.SessionName,
		CreatedAt:         rec.CreatedAt,
		LastActivity:      rec.LastActivity,
		Status:            string(rec.Status),
		ErrorMessage:      rec.ErrorMessage,
		ModelName:         rec.ModelName,
		MaxTurns:          rec.MaxTurns,
		Timeout:           rec.Timeout,
		Autonomous:        rec.Autonomous,
		MaxIterations:     rec.MaxIterations,
		Role:              string(rec.Role),
		ManagerID:         rec.ManagerID,
		WorkflowID:        rec.WorkflowID,
		StoragePath:       rec.StoragePath,
		ProcessIdentifier: rec.ProcessIdentifier,
	}
}
