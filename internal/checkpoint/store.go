// Package checkpoint persists execution snapshots and their write log.
// Checkpoints are append-only and time-partitioned per day; expired
// partitions are dropped wholesale by the retention reaper.
package checkpoint

import (
	"context"
	"time"

	"github.com/oko-labs/agentloop/model"
)

// Store is the persistence contract for checkpoints and write log entries.
type Store interface {
	// Insert persists a new checkpoint.
	Insert(ctx context.Context, c model.Checkpoint) error

	// Latest returns the checkpoint with the greatest thread_ts for the
	// workflow. Returns NOT_FOUND if the workflow has none.
	Latest(ctx context.Context, workflowID string) (model.Checkpoint, error)

	// ListWithWrites returns all checkpoints for the workflow ordered by
	// thread_ts descending, each with its write log entries attached in
	// idx order.
	ListWithWrites(ctx context.Context, workflowID string) ([]model.Checkpoint, error)

	// Lookup returns a single checkpoint by row id, resolving the
	// creation-time partition internally.
	Lookup(ctx context.Context, id string) (model.Checkpoint, error)

	// InsertWrites bulk-inserts write log entries.
	InsertWrites(ctx context.Context, writes []model.CheckpointWrite) error

	// WritesFor returns the write log entries matching (workflow_id,
	// thread_ts), in idx order. The join is by value: entries may exist
	// for a thread_ts whose checkpoint has not committed yet.
	WritesFor(ctx context.Context, workflowID, threadTS string) ([]model.CheckpointWrite, error)

	// SweepExpired drops whole partitions whose day is strictly older than
	// cutoff and returns how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Heartbeat advances a workflow's updated_at when a checkpoint commits.
// Satisfied by the workflow store.
type Heartbeat interface {
	Touch(ctx context.Context, workflowID string, t time.Time) error
}
