package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentloom/agentloom/orcherr"
	"github.com/agentloom/agentloom/workflow"
)

// sqlStore is the shared implementation behind SQLiteStore and MySQLStore:
// both WorkflowStore and PersistenceStore backed by the same *sql.DB,
// differing only in driver name, DSN, and placeholder syntax handled by
// database/sql itself.
type sqlStore struct {
	db *sql.DB
}

func (s *sqlStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			definition TEXT NOT NULL,
			is_template INTEGER NOT NULL DEFAULT 0,
			template_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			session_name TEXT,
			created_at TIMESTAMP,
			last_activity TIMESTAMP,
			status TEXT,
			error_message TEXT,
			model_name TEXT,
			max_turns INTEGER,
			timeout_ms INTEGER,
			autonomous INTEGER,
			max_iterations INTEGER,
			role TEXT,
			manager_id TEXT,
			workflow_id TEXT,
			storage_path TEXT,
			process_identifier TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			creation_params TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: create tables: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Save(ctx context.Context, wf *workflow.Workflow) error {
	var isTemplate int
	row := s.db.QueryRowContext(ctx, `SELECT is_template FROM workflows WHERE id = ?`, wf.ID)
	if err := row.Scan(&isTemplate); err == nil && isTemplate != 0 {
		return orcherr.New(orcherr.Forbidden, "cannot modify template workflow "+wf.ID)
	}

	body, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("store: marshal workflow: %w", err)
	}
	templateFlag := 0
	if wf.IsTemplate {
		templateFlag = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, definition, is_template, template_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description,
			definition=excluded.definition, is_template=excluded.is_template, template_name=excluded.template_name
	`, wf.ID, wf.Name, wf.Description, string(body), templateFlag, wf.TemplateName)
	if err != nil {
		return fmt.Errorf("store: save workflow: %w", err)
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context, id string) (*workflow.Workflow, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, orcherr.New(orcherr.NotFound, "workflow not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load workflow: %w", err)
	}
	var wf workflow.Workflow
	if err := json.Unmarshal([]byte(body), &wf); err != nil {
		return nil, fmt.Errorf("store: unmarshal workflow: %w", err)
	}
	return &wf, nil
}

func (s *sqlStore) ListAll(ctx context.Context) ([]*workflow.Workflow, error) {
	return s.queryWorkflows(ctx, `SELECT definition FROM workflows`)
}

func (s *sqlStore) ListTemplates(ctx context.Context) ([]*workflow.Workflow, error) {
	return s.queryWorkflows(ctx, `SELECT definition FROM workflows WHERE is_template = 1`)
}

func (s *sqlStore) queryWorkflows(ctx context.Context, query string) ([]*workflow.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query workflows: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: scan workflow: %w", err)
		}
		var wf workflow.Workflow
		if err := json.Unmarshal([]byte(body), &wf); err != nil {
			return nil, fmt.Errorf("store: unmarshal workflow: %w", err)
		}
		out = append(out, &wf)
	}
	return out, rows.Err()
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	var isTemplate int
	row := s.db.QueryRowContext(ctx, `SELECT is_template FROM workflows WHERE id = ?`, id)
	if err := row.Scan(&isTemplate); err == nil && isTemplate != 0 {
		return orcherr.New(orcherr.Forbidden, "cannot delete template workflow "+id)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete workflow: %w", err)
	}
	return nil
}

func (s *sqlStore) Register(ctx context.Context, snap SessionSnapshot) error {
	params, err := json.Marshal(snap.CreationParams)
	if err != nil {
		return fmt.Errorf("store: marshal creation params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, session_name, created_at, last_activity, status, error_message,
			model_name, max_turns, timeout_ms, autonomous, max_iterations, role, manager_id, workflow_id,
			storage_path, process_identifier, is_deleted, creation_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(session_id) DO UPDATE SET session_name=excluded.session_name, status=excluded.status,
			last_activity=excluded.last_activity, is_deleted=0
	`, snap.SessionID, snap.SessionName, snap.CreatedAt, snap.LastActivity, snap.Status, snap.ErrorMessage,
		snap.ModelName, snap.MaxTurns, snap.Timeout.Milliseconds(), boolToInt(snap.Autonomous), snap.MaxIterations,
		snap.Role, snap.ManagerID, snap.WorkflowID, snap.StoragePath, snap.ProcessIdentifier, string(params))
	if err != nil {
		return fmt.Errorf("store: register session: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *sqlStore) Get(ctx context.Context, id string) (SessionSnapshot, error) {
	snap, err := s.scanOne(ctx, `SELECT session_id, session_name, created_at, last_activity, status, error_message,
		model_name, max_turns, timeout_ms, autonomous, max_iterations, role, manager_id, workflow_id,
		storage_path, process_identifier, is_deleted, creation_params FROM sessions WHERE session_id = ?`, id)
	if err == sql.ErrNoRows {
		return SessionSnapshot{}, orcherr.New(orcherr.NotFound, "session not found: "+id)
	}
	return snap, err
}

func (s *sqlStore) scanOne(ctx context.Context, query string, args ...interface{}) (SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanSnapshot(row)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scannable) (SessionSnapshot, error) {
	var snap SessionSnapshot
	var timeoutMs int64
	var autonomous, isDeleted int
	var params string
	err := row.Scan(&snap.SessionID, &snap.SessionName, &snap.CreatedAt, &snap.LastActivity, &snap.Status,
		&snap.ErrorMessage, &snap.ModelName, &snap.MaxTurns, &timeoutMs, &autonomous, &snap.MaxIterations,
		&snap.Role, &snap.ManagerID, &snap.WorkflowID, &snap.StoragePath, &snap.ProcessIdentifier, &isDeleted, &params)
	if err != nil {
		return SessionSnapshot{}, err
	}
	snap.Timeout = time.Duration(timeoutMs) * time.Millisecond
	snap.Autonomous = autonomous != 0
	snap.IsDeleted = isDeleted != 0
	if params != "" {
		_ = json.Unmarshal([]byte(params), &snap.CreationParams)
	}
	return snap, nil
}

func (s *sqlStore) listSnapshots(ctx context.Context, where string) ([]SessionSnapshot, error) {
	query := `SELECT session_id, session_name, created_at, last_activity, status, error_message,
		model_name, max_turns, timeout_ms, autonomous, max_iterations, role, manager_id, workflow_id,
		storage_path, process_identifier, is_deleted, creation_params FROM sessions` + where
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListActive(ctx context.Context) ([]SessionSnapshot, error) {
	return s.listSnapshots(ctx, ` WHERE is_deleted = 0`)
}

func (s *sqlStore) ListDeleted(ctx context.Context) ([]SessionSnapshot, error) {
	return s.listSnapshots(ctx, ` WHERE is_deleted = 1`)
}

func (s *sqlStore) ListAllSessions(ctx context.Context) ([]SessionSnapshot, error) {
	return s.listSnapshots(ctx, ``)
}

func (s *sqlStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_deleted = 1 WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: soft delete session: %w", err)
	}
	return nil
}

func (s *sqlStore) PermanentDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: permanent delete session: %w", err)
	}
	return nil
}

func (s *sqlStore) GetCreationParams(ctx context.Context, id string) (map[string]interface{}, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.CreationParams, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
