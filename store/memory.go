package store

import (
	"context"
	"sync"

	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/workflow"
)

// MemWorkflowStore is a map-backed WorkflowStore, mutex-protected. Useful
// for tests and single-process deployments without a durable backend.
type MemWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
}

// NewMemWorkflowStore builds an empty MemWorkflowStore.
func NewMemWorkflowStore() *MemWorkflowStore {
	return &MemWorkflowStore{workflows: make(map[string]*workflow.Workflow)}
}

func (s *MemWorkflowStore) Save(ctx context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.workflows[wf.ID]; ok && existing.IsTemplate {
		return orcherr.New(orcherr.Forbidden, "cannot modify template workflow "+wf.ID)
	}
	clone := *wf
	s.workflows[wf.ID] = &clone
	return nil
}

func (s *MemWorkflowStore) Load(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, orcherr.New(orcherr.NotFound, "workflow not found: "+id)
	}
	clone := *wf
	return &clone, nil
}

func (s *MemWorkflowStore) ListAll(ctx context.Context) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		clone := *wf
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemWorkflowStore) ListTemplates(ctx context.Context) ([]*workflow.Workflow, error) {
	all, _ := s.ListAll(ctx)
	out := all[:0]
	for _, wf := range all {
		if wf.IsTemplate {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *MemWorkflowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf, ok := s.workflows[id]; ok && wf.IsTemplate {
		return orcherr.New(orcherr.Forbidden, "cannot delete template workflow "+id)
	}
	delete(s.workflows, id)
	return nil
}

// MemPersistenceStore is a map-backed PersistenceStore, mutex-protected.
type MemPersistenceStore struct {
	mu   sync.RWMutex
	data map[string]SessionSnapshot
}

// NewMemPersistenceStore builds an empty MemPersistenceStore.
func NewMemPersistenceStore() *MemPersistenceStore {
	return &MemPersistenceStore{data: make(map[string]SessionSnapshot)}
}

func (s *MemPersistenceStore) Register(ctx context.Context, snapshot SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.IsDeleted = false
	s.data[snapshot.SessionID] = snapshot
	return nil
}

func (s *MemPersistenceStore) Get(ctx context.Context, id string) (SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[id]
	if !ok {
		return SessionSnapshot{}, orcherr.New(orcherr.NotFound, "session not found: "+id)
	}
	return snap, nil
}

func (s *MemPersistenceStore) ListActive(ctx context.Context) ([]SessionSnapshot, error) {
	return s.filter(func(snap SessionSnapshot) bool { return !snap.IsDeleted }), nil
}

func (s *MemPersistenceStore) ListDeleted(ctx context.Context) ([]SessionSnapshot, error) {
	return s.filter(func(snap SessionSnapshot) bool { return snap.IsDeleted }), nil
}

func (s *MemPersistenceStore) ListAll(ctx context.Context) ([]SessionSnapshot, error) {
	return s.filter(func(SessionSnapshot) bool { return true }), nil
}

func (s *MemPersistenceStore) filter(keep func(SessionSnapshot) bool) []SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionSnapshot, 0, len(s.data))
	for _, snap := range s.data {
		if keep(snap) {
			out = append(out, snap)
		}
	}
	return out
}

func (s *MemPersistenceStore) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[id]
	if !ok {
		return orcherr.New(orcherr.NotFound, "session not found: "+id)
	}
	snap.IsDeleted = true
	s.data[id] = snap
	return nil
}

func (s *MemPersistenceStore) PermanentDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *MemPersistenceStore) GetCreationParams(ctx context.Context, id string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[id]
	if !ok {
		return nil, orcherr.New(orcherr.NotFound, "session not found: "+id)
	}
	return snap.CreationParams, nil
}
