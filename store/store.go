// Package store defines the persistence collaborators the core depends on
// as interfaces — workflow definitions and session metadata — plus
// in-memory, SQLite, and MySQL implementations adapted from the teacher's
// generic state store.
package store

import (
	"context"
	"time"

	"github.com/agentloom/agentloom/workflow"
)

// WorkflowStore persists workflow.Workflow definitions. Templates
// (IsTemplate=true) are write-protected: Save and Delete must fail with
// *orcherr.Error{Kind: orcherr.Forbidden} for them.
type WorkflowStore interface {
	Save(ctx context.Context, wf *workflow.Workflow) error
	Load(ctx context.Context, id string) (*workflow.Workflow, error)
	ListAll(ctx context.Context) ([]*workflow.Workflow, error)
	ListTemplates(ctx context.Context) ([]*workflow.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// SessionSnapshot is the persisted record PersistenceStore tracks: the
// spec.md §3 Session record fields plus IsDeleted and enough of the
// original creation request to support Restore.
type SessionSnapshot struct {
	SessionID        string
	SessionName      string
	CreatedAt        time.Time
	LastActivity     time.Time
	Status           string
	ErrorMessage     string
	ModelName        string
	MaxTurns         int
	Timeout          time.Duration
	Autonomous       bool
	MaxIterations    int
	Role             string
	ManagerID        string
	WorkflowID       string
	StoragePath      string
	ProcessIdentifier string
	IsDeleted        bool

	// CreationParams is the opaque snapshot of the original create request,
	// reused verbatim by Restore to re-invoke the same construction path.
	CreationParams map[string]interface{}
}

// PersistenceStore is the session-metadata collaborator (spec.md §6).
// Implementations must be at-least-once durable.
type PersistenceStore interface {
	Register(ctx context.Context, snapshot SessionSnapshot) error
	Get(ctx context.Context, id string) (SessionSnapshot, error)
	ListActive(ctx context.Context) ([]SessionSnapshot, error)
	ListDeleted(ctx context.Context) ([]SessionSnapshot, error)
	ListAll(ctx context.Context) ([]SessionSnapshot, error)
	SoftDelete(ctx context.Context, id string) error
	PermanentDelete(ctx context.Context, id string) error
	GetCreationParams(ctx context.Context, id string) (map[string]interface{}, error)
}
