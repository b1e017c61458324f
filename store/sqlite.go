package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore bundles the workflow and session repositories backed by a
// single SQLite file, mirroring the teacher's single-writer SQLite store.
type SQLiteStore struct {
	Workflows *SQLiteWorkflowStore
	Sessions  *SQLiteSessionStore
	db        *sql.DB
}

// SQLiteWorkflowStore is the WorkflowStore view over a SQLite *sql.DB.
type SQLiteWorkflowStore struct{ *sqlStore }

// SQLiteSessionStore is the PersistenceStore view over a SQLite *sql.DB.
type SQLiteSessionStore struct{ *sqlStore }

// ListAll shadows the promoted workflow-shaped method from *sqlStore so
// SQLiteSessionStore satisfies PersistenceStore's ListAll signature.
func (s *SQLiteSessionStore) ListAll(ctx context.Context) ([]SessionSnapshot, error) {
	return s.sqlStore.ListAllSessions(ctx)
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// prepares both the workflow and session tables. SQLite allows only one
// writer at a time, so the connection pool is capped at a single
// connection and WAL mode is enabled for concurrent readers.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	core := &sqlStore{db: db}
	if err := core.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{
		Workflows: &SQLiteWorkflowStore{core},
		Sessions:  &SQLiteSessionStore{core},
		db:        db,
	}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
