package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oko-labs/agentloop/model"
)

// PgStore persists control events in PostgreSQL. The unique index on
// correlation_id is the durable duplicate guard; violations map to
// DUPLICATE_CORRELATION_ID.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates an event store backed by the given pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck reports whether the database is reachable.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const uniqueViolation = "23505"

const selectEvent = `
SELECT id, workflow_id, event_type, event_status, COALESCE(message, ''), correlation_id, created_at
FROM workflow_events`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.WorkflowID, &e.Type, &e.Status, &e.Message,
		&e.CorrelationID, &e.CreatedAt)
	return e, err
}

// Insert persists a new queued event.
func (s *PgStore) Insert(ctx context.Context, e model.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_events (id, workflow_id, event_type, event_status, message, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		e.ID, e.WorkflowID, e.Type, e.Status, e.Message, e.CorrelationID, e.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.NewDuplicateCorrelationIDError(e.CorrelationID)
	}
	return err
}

// ListQueued returns undelivered events for the workflow oldest first.
func (s *PgStore) ListQueued(ctx context.Context, workflowID string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		selectEvent+` WHERE workflow_id = $1 AND event_status = $2 ORDER BY created_at ASC, id ASC`,
		workflowID, model.EventStatusQueued,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// MarkDelivered flips the event to delivered. Idempotent: an event that is
// already delivered still counts as found.
func (s *PgStore) MarkDelivered(ctx context.Context, eventID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_events SET event_status = $1
		WHERE id = $2`,
		model.EventStatusDelivered, eventID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("event %q not found", eventID))
	}
	return nil
}

// FindByCorrelationID returns the event enqueued under the correlation id.
func (s *PgStore) FindByCorrelationID(ctx context.Context, workflowID, correlationID string) (model.Event, error) {
	row := s.pool.QueryRow(ctx,
		selectEvent+` WHERE workflow_id = $1 AND correlation_id = $2`,
		workflowID, correlationID,
	)
	e, err := scanEvent(row)
	if err == pgx.ErrNoRows {
		return model.Event{}, model.NewNotFoundError(
			fmt.Sprintf("no event with correlation id %q", correlationID),
		)
	}
	return e, err
}
