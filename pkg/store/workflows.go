package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveWorkflow stores a workflow document under name, replacing any
// previous version.
func (s *Store) SaveWorkflow(ctx context.Context, name string, document []byte) error {
	if name == "" {
		return fmt.Errorf("workflow name is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (name, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		name, string(document), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", name, err)
	}
	return nil
}

// LoadWorkflow returns the stored document.
func (s *Store) LoadWorkflow(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM workflows WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", name, err)
	}
	return []byte(doc), nil
}

// ListWorkflows returns the saved workflows ordered by name.
func (s *Store) ListWorkflows(ctx context.Context) ([]WorkflowInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, updated_at, length(document) FROM workflows ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()
	var out []WorkflowInfo
	for rows.Next() {
		var w WorkflowInfo
		if err := rows.Scan(&w.Name, &w.UpdatedAt, &w.Size); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a saved workflow.
func (s *Store) DeleteWorkflow(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return nil
}
