package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oko-labs/agentloop/model"
)

// PgStore persists checkpoints in PostgreSQL. The checkpoints table is a
// range-partitioned parent keyed on created_at with one child table per
// day, created on demand at insert time. Retention sweeps detach and drop
// whole child tables so their cost scales with partition count, not rows.
type PgStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]struct{}
}

// NewPgStore creates a checkpoint store backed by the given pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, ensured: make(map[string]struct{})}
}

// HealthCheck reports whether the database is reachable.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectCheckpoint = `
SELECT id, workflow_id, thread_ts, COALESCE(parent_ts, ''), checkpoint, metadata, created_at
FROM checkpoints`

func scanCheckpoint(row pgx.Row) (model.Checkpoint, error) {
	var c model.Checkpoint
	err := row.Scan(&c.ID, &c.WorkflowID, &c.ThreadTS, &c.ParentTS,
		&c.Checkpoint, &c.Metadata, &c.CreatedAt)
	return c, err
}

func partitionName(day string) string {
	return "checkpoints_p" + strings.ReplaceAll(day, "-", "")
}

// ensurePartition creates the day's child table if it does not exist yet.
// Names are derived from the day key, never from caller input.
func (s *PgStore) ensurePartition(ctx context.Context, day string) error {
	s.mu.Lock()
	if _, ok := s.ensured[day]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	from, err := time.Parse("2006-01-02", day)
	if err != nil {
		return fmt.Errorf("bad partition day %q: %w", day, err)
	}
	to := from.AddDate(0, 0, 1)

	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF checkpoints FOR VALUES FROM ('%s') TO ('%s')`,
		partitionName(day), from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return err
	}

	s.mu.Lock()
	s.ensured[day] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Insert persists a new checkpoint, creating its day partition if needed.
func (s *PgStore) Insert(ctx context.Context, c model.Checkpoint) error {
	if err := s.ensurePartition(ctx, c.PartitionKey()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (id, workflow_id, thread_ts, parent_ts, checkpoint, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
		c.ID, c.WorkflowID, c.ThreadTS, c.ParentTS, c.Checkpoint, c.Metadata, c.CreatedAt,
	)
	return err
}

// Latest returns the checkpoint with the greatest thread_ts for the workflow.
func (s *PgStore) Latest(ctx context.Context, workflowID string) (model.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		selectCheckpoint+` WHERE workflow_id = $1 ORDER BY thread_ts DESC LIMIT 1`,
		workflowID,
	)
	c, err := scanCheckpoint(row)
	if err == pgx.ErrNoRows {
		return model.Checkpoint{}, model.NewNotFoundError(
			fmt.Sprintf("no checkpoints for workflow %q", workflowID),
		)
	}
	if err != nil {
		return model.Checkpoint{}, err
	}
	return c, nil
}

// ListWithWrites returns the workflow's checkpoints thread_ts-descending
// with their write log entries attached in idx order.
func (s *PgStore) ListWithWrites(ctx context.Context, workflowID string) ([]model.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		selectCheckpoint+` WHERE workflow_id = $1 ORDER BY thread_ts DESC`,
		workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		writes, err := s.WritesFor(ctx, workflowID, result[i].ThreadTS)
		if err != nil {
			return nil, err
		}
		result[i].Writes = writes
	}
	return result, nil
}

// Lookup returns a single checkpoint by id.
func (s *PgStore) Lookup(ctx context.Context, id string) (model.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, selectCheckpoint+` WHERE id = $1`, id)
	c, err := scanCheckpoint(row)
	if err == pgx.ErrNoRows {
		return model.Checkpoint{}, model.NewNotFoundError(fmt.Sprintf("checkpoint %q not found", id))
	}
	if err != nil {
		return model.Checkpoint{}, err
	}
	c.Writes, err = s.WritesFor(ctx, c.WorkflowID, c.ThreadTS)
	if err != nil {
		return model.Checkpoint{}, err
	}
	return c, nil
}

// InsertWrites bulk-inserts write log entries in one batch.
func (s *PgStore) InsertWrites(ctx context.Context, writes []model.CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(`
			INSERT INTO checkpoint_writes (id, workflow_id, thread_ts, task, idx, channel, write_type, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			w.ID, w.WorkflowID, w.ThreadTS, w.Task, w.Idx, w.Channel, w.WriteType, w.Data,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range writes {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// WritesFor returns write log entries for (workflow_id, thread_ts) in idx order.
func (s *PgStore) WritesFor(ctx context.Context, workflowID, threadTS string) ([]model.CheckpointWrite, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, thread_ts, task, idx, channel, write_type, data
		FROM checkpoint_writes
		WHERE workflow_id = $1 AND thread_ts = $2
		ORDER BY idx ASC`,
		workflowID, threadTS,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.CheckpointWrite
	for rows.Next() {
		var w model.CheckpointWrite
		if err := rows.Scan(&w.ID, &w.WorkflowID, &w.ThreadTS, &w.Task,
			&w.Idx, &w.Channel, &w.WriteType, &w.Data); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// SweepExpired drops child tables whose day range ends on or before the
// cutoff's day. Write log rows belonging to the dropped checkpoints are
// removed in the same pass. Rows for a thread_ts with no checkpoint yet
// are left alone, a commit for them may still be in flight.
func (s *PgStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffDay := model.DayKey(cutoff)

	rows, err := s.pool.Query(ctx, `
		SELECT c.relname
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = 'checkpoints'`)
	if err != nil {
		return 0, err
	}
	var children []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}
		children = append(children, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	expiredBefore := partitionName(cutoffDay)
	dropped := 0
	for _, name := range children {
		if !strings.HasPrefix(name, "checkpoints_p") || name >= expiredBefore {
			continue
		}
		if _, err := s.pool.Exec(ctx,
			fmt.Sprintf(`ALTER TABLE checkpoints DETACH PARTITION %s`, name)); err != nil {
			return dropped, err
		}
		// The detached table still holds the expired rows, so the write
		// log can be trimmed by exact (workflow_id, thread_ts) match
		// before the table goes away.
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
			DELETE FROM checkpoint_writes w
			USING %s c
			WHERE c.workflow_id = w.workflow_id AND c.thread_ts = w.thread_ts`, name)); err != nil {
			return dropped, err
		}
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, name)); err != nil {
			return dropped, err
		}
		dropped++
	}

	if dropped > 0 {
		s.mu.Lock()
		for day := range s.ensured {
			if day < cutoffDay {
				delete(s.ensured, day)
			}
		}
		s.mu.Unlock()
	}
	return dropped, nil
}
