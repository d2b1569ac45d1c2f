package workload

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oko-labs/agentloop/model"
)

// PgStore persists workload bindings in PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a binding store backed by the given pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Insert persists a new binding.
func (s *PgStore) Insert(ctx context.Context, b model.WorkloadBinding) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workload_bindings (id, workflow_id, workload_id, project_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		b.ID, b.WorkflowID, b.WorkloadID, b.ProjectID, b.CreatedAt,
	)
	return err
}

// ForWorkflow returns the workflow's bindings newest first.
func (s *PgStore) ForWorkflow(ctx context.Context, workflowID string) ([]model.WorkloadBinding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, workload_id, COALESCE(project_id, ''), created_at
		FROM workload_bindings
		WHERE workflow_id = $1
		ORDER BY created_at DESC, id DESC`,
		workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.WorkloadBinding
	for rows.Next() {
		var b model.WorkloadBinding
		if err := rows.Scan(&b.ID, &b.WorkflowID, &b.WorkloadID, &b.ProjectID, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
