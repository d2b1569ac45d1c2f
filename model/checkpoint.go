package model

import "time"

// MaxWriteDataLen bounds the payload of a single checkpoint write.
const MaxWriteDataLen = 10000

// Checkpoint is a durable snapshot of execution state at a logical step.
// ThreadTS is assigned by the runner and orders checkpoints within one
// workflow; it is not necessarily wall-clock. Checkpoints are never updated
// in place and are removed only by the retention sweep.
type Checkpoint struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	ThreadTS   string            `json:"thread_ts"`
	ParentTS   string            `json:"parent_ts,omitempty"`
	Checkpoint []byte            `json:"checkpoint"`
	Metadata   []byte            `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	Writes     []CheckpointWrite `json:"checkpoint_writes,omitempty"`
}

// PartitionKey returns the per-day partition bucket for the checkpoint.
func (c Checkpoint) PartitionKey() string {
	return DayKey(c.CreatedAt)
}

// CheckpointWrite is a fine-grained write record sharing the thread_ts of
// the checkpoint it logically extends. The association is by value, not a
// foreign key: writes may land before, with, or after the checkpoint commit.
type CheckpointWrite struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	ThreadTS   string `json:"thread_ts"`
	Task       string `json:"task"`
	Idx        int    `json:"idx"`
	Channel    string `json:"channel"`
	WriteType  string `json:"write_type"`
	Data       []byte `json:"data"`
}

// DayKey formats t as the per-day partition bucket key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
