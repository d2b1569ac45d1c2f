package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oko-labs/agentloop/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL workflow store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new workflow.
func (s *PgStore) Create(ctx context.Context, w model.Workflow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflows (
			id, user_id, project_id, namespace_id,
			goal, image, environment, workflow_definition,
			agent_privileges, pre_approved_agent_privileges,
			allow_agent_to_request_user, status,
			created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''),
			$5, $6, $7, $8,
			$9, $10,
			$11, $12,
			$13, $14
		)`,
		w.ID, w.UserID, w.ProjectID, w.NamespaceID,
		w.Goal, w.Image, w.Environment, w.Definition,
		w.AgentPrivileges, w.PreApprovedPrivileges,
		w.AllowAgentToRequestUser, w.Status,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.Workflow, error) {
	row := s.pool.QueryRow(ctx, selectWorkflow+` WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	if err == pgx.ErrNoRows {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("query workflow: %w", err)
	}
	return w, nil
}

// List returns workflows owned by userID, newest first.
func (s *PgStore) List(ctx context.Context, userID string, filters Filters) ([]model.Workflow, error) {
	query := selectWorkflow + ` WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, filters.ProjectID)
		argIdx++
	}
	if filters.Definition != "" {
		query += fmt.Sprintf(" AND workflow_definition = $%d", argIdx)
		args = append(args, filters.Definition)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	return s.queryWorkflows(ctx, query, args...)
}

// UpdateStatus moves a workflow between statuses. The WHERE clause carries
// the expected source status; zero rows affected means a concurrent
// transition won and the caller gets CONFLICT.
func (s *PgStore) UpdateStatus(ctx context.Context, id, from, to string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a status race.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("workflow %q is no longer in status %q", id, from),
		)
	}
	return nil
}

// Touch advances the workflow's updated_at heartbeat.
func (s *PgStore) Touch(ctx context.Context, id string, t time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows SET updated_at = $1
		WHERE id = $2 AND updated_at < $1`,
		t, id,
	)
	if err != nil {
		return fmt.Errorf("touch workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		// Heartbeat already newer; nothing to do.
	}
	return nil
}

// FindStale returns non-terminal workflows with a heartbeat older than cutoff.
func (s *PgStore) FindStale(ctx context.Context, cutoff time.Time) ([]model.Workflow, error) {
	query := selectWorkflow + `
		WHERE status NOT IN ($1, $2, $3) AND updated_at < $4
		ORDER BY updated_at ASC`
	return s.queryWorkflows(ctx, query,
		model.StatusFinished, model.StatusStopped, model.StatusFailed, cutoff)
}

// Delete removes a workflow.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	return nil
}

const selectWorkflow = `
	SELECT id, user_id, COALESCE(project_id, ''), COALESCE(namespace_id, ''),
	       goal, image, environment, workflow_definition,
	       agent_privileges, pre_approved_agent_privileges,
	       allow_agent_to_request_user, status, created_at, updated_at
	FROM workflows`

// scanWorkflow scans one workflow row.
func scanWorkflow(row pgx.Row) (model.Workflow, error) {
	var w model.Workflow
	err := row.Scan(
		&w.ID, &w.UserID, &w.ProjectID, &w.NamespaceID,
		&w.Goal, &w.Image, &w.Environment, &w.Definition,
		&w.AgentPrivileges, &w.PreApprovedPrivileges,
		&w.AllowAgentToRequestUser, &w.Status, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, err
}

// queryWorkflows executes a query and scans workflow rows.
func (s *PgStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]model.Workflow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var result []model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}
