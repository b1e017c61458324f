package store

import (
	"context"
	"testing"
	"time"

	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/workflow"
)

func TestMemWorkflowStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewMemWorkflowStore()
	ctx := context.Background()
	wf := &workflow.Workflow{ID: "wf-1", Name: "greet"}

	if err := s.Save(ctx, wf); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.Load(ctx, "wf-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "greet" {
		t.Fatalf("got %q", loaded.Name)
	}
}

func TestMemWorkflowStoreLoadMissingIsNotFound(t *testing.T) {
	s := NewMemWorkflowStore()
	_, err := s.Load(context.Background(), "missing")
	if !orcherr.Is(err, orcherr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemWorkflowStoreProtectsTemplatesFromSaveAndDelete(t *testing.T) {
	s := NewMemWorkflowStore()
	ctx := context.Background()
	tmpl := &workflow.Workflow{ID: "tmpl-1", Name: "starter", IsTemplate: true}
	s.workflows[tmpl.ID] = tmpl

	if err := s.Save(ctx, &workflow.Workflow{ID: "tmpl-1", Name: "overwritten"}); !isForbidden(err) {
		t.Fatalf("expected Forbidden on template save, got %v", err)
	}
	if err := s.Delete(ctx, "tmpl-1"); !isForbidden(err) {
		t.Fatalf("expected Forbidden on template delete, got %v", err)
	}
}

func TestMemWorkflowStoreListTemplatesFiltersNonTemplates(t *testing.T) {
	s := NewMemWorkflowStore()
	ctx := context.Background()
	_ = s.Save(ctx, &workflow.Workflow{ID: "wf-1", Name: "plain"})
	s.workflows["tmpl-1"] = &workflow.Workflow{ID: "tmpl-1", Name: "starter", IsTemplate: true}

	templates, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != "tmpl-1" {
		t.Fatalf("got %v", templates)
	}
}

func isForbidden(err error) bool {
	return orcherr.Is(err, orcherr.Forbidden)
}

func TestMemPersistenceStoreRegisterAndGet(t *testing.T) {
	s := NewMemPersistenceStore()
	ctx := context.Background()
	snap := SessionSnapshot{SessionID: "sess-1", SessionName: "agent", Status: "active", CreatedAt: time.Now()}

	if err := s.Register(ctx, snap); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionName != "agent" || got.IsDeleted {
		t.Fatalf("got %+v", got)
	}
}

func TestMemPersistenceStoreSoftDeleteMovesBetweenActiveAndDeleted(t *testing.T) {
	s := NewMemPersistenceStore()
	ctx := context.Background()
	_ = s.Register(ctx, SessionSnapshot{SessionID: "sess-1"})
	_ = s.Register(ctx, SessionSnapshot{SessionID: "sess-2"})

	if err := s.SoftDelete(ctx, "sess-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	active, _ := s.ListActive(ctx)
	if len(active) != 1 || active[0].SessionID != "sess-2" {
		t.Fatalf("got active %v", active)
	}
	deleted, _ := s.ListDeleted(ctx)
	if len(deleted) != 1 || deleted[0].SessionID != "sess-1" {
		t.Fatalf("got deleted %v", deleted)
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("got all %v", all)
	}
}

func TestMemPersistenceStoreRestoreViaCreationParams(t *testing.T) {
	s := NewMemPersistenceStore()
	ctx := context.Background()
	params := map[string]interface{}{"model_name": "claude-opus-4", "max_turns": 10}
	_ = s.Register(ctx, SessionSnapshot{SessionID: "sess-1", CreationParams: params})
	_ = s.SoftDelete(ctx, "sess-1")

	got, err := s.GetCreationParams(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get creation params: %v", err)
	}
	if got["model_name"] != "claude-opus-4" {
		t.Fatalf("got %v", got)
	}

	// Restore re-registers with the same ID, clearing IsDeleted.
	if err := s.Register(ctx, SessionSnapshot{SessionID: "sess-1", CreationParams: params}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	restored, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if restored.IsDeleted {
		t.Fatalf("expected restored session to be active")
	}
}

func TestMemPersistenceStorePermanentDeleteRemovesEntirely(t *testing.T) {
	s := NewMemPersistenceStore()
	ctx := context.Background()
	_ = s.Register(ctx, SessionSnapshot{SessionID: "sess-1"})
	if err := s.PermanentDelete(ctx, "sess-1"); err != nil {
		t.Fatalf("permanent delete: %v", err)
	}
	if _, err := s.Get(ctx, "sess-1"); !isNotFound(err) {
		t.Fatalf("expected NotFound after permanent delete, got %v", err)
	}
}

func isNotFound(err error) bool {
	return orcherr.Is(err, orcherr.NotFound)
}
