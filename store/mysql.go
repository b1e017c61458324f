package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore bundles the workflow and session repositories backed by a
// shared MySQL connection pool, for multi-writer deployments that outgrow
// SQLiteStore's single-writer constraint.
type MySQLStore struct {
	Workflows *MySQLWorkflowStore
	Sessions  *MySQLSessionStore
	db        *sql.DB
}

// MySQLWorkflowStore is the WorkflowStore view over a MySQL *sql.DB.
type MySQLWorkflowStore struct{ *sqlStore }

// MySQLSessionStore is the PersistenceStore view over a MySQL *sql.DB.
type MySQLSessionStore struct{ *sqlStore }

// ListAll shadows the promoted workflow-shaped method from *sqlStore so
// MySQLSessionStore satisfies PersistenceStore's ListAll signature.
func (s *MySQLSessionStore) ListAll(ctx context.Context) ([]SessionSnapshot, error) {
	return s.sqlStore.ListAllSessions(ctx)
}

// NewMySQLStore opens a connection pool against dsn and prepares both the
// workflow and session tables. Unlike SQLite, MySQL tolerates concurrent
// writers, so the pool is sized for normal multi-connection use.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping mysql: %w", err)
	}

	core := &sqlStore{db: db}
	if err := core.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &MySQLStore{
		Workflows: &MySQLWorkflowStore{core},
		Sessions:  &MySQLSessionStore{core},
		db:        db,
	}, nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
