package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oko-labs/agentloop/model"
)

// MemoryStore is an in-memory Store for testing and single-process use.
// Checkpoints are bucketed per creation day so the sweep drops whole
// buckets, mirroring the partitioned table layout.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]model.Checkpoint // day key -> id -> checkpoint
	partOf     map[string]string                      // id -> day key
	writes     map[string][]model.CheckpointWrite     // workflowID + "\x00" + threadTS
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string]model.Checkpoint),
		partOf:     make(map[string]string),
		writes:     make(map[string][]model.CheckpointWrite),
	}
}

func writeKey(workflowID, threadTS string) string {
	return workflowID + "\x00" + threadTS
}

// Insert persists a new checkpoint in its day bucket.
func (s *MemoryStore) Insert(_ context.Context, c model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.partOf[c.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("checkpoint %q already exists", c.ID))
	}

	day := c.PartitionKey()
	bucket, ok := s.partitions[day]
	if !ok {
		bucket = make(map[string]model.Checkpoint)
		s.partitions[day] = bucket
	}
	bucket[c.ID] = c
	s.partOf[c.ID] = day
	return nil
}

// Latest returns the checkpoint with the greatest thread_ts for the workflow.
func (s *MemoryStore) Latest(_ context.Context, workflowID string) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.Checkpoint
	found := false
	for _, bucket := range s.partitions {
		for _, c := range bucket {
			if c.WorkflowID != workflowID {
				continue
			}
			if !found || c.ThreadTS > best.ThreadTS {
				best = c
				found = true
			}
		}
	}
	if !found {
		return model.Checkpoint{}, model.NewNotFoundError(
			fmt.Sprintf("no checkpoints for workflow %q", workflowID),
		)
	}
	return best, nil
}

// ListWithWrites returns checkpoints thread_ts-descending, writes attached.
func (s *MemoryStore) ListWithWrites(_ context.Context, workflowID string) ([]model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Checkpoint
	for _, bucket := range s.partitions {
		for _, c := range bucket {
			if c.WorkflowID == workflowID {
				c.Writes = s.writesForLocked(workflowID, c.ThreadTS)
				result = append(result, c)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ThreadTS > result[j].ThreadTS
	})
	return result, nil
}

// Lookup returns a single checkpoint by id.
func (s *MemoryStore) Lookup(_ context.Context, id string) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.partOf[id]
	if !ok {
		return model.Checkpoint{}, model.NewNotFoundError(fmt.Sprintf("checkpoint %q not found", id))
	}
	c := s.partitions[day][id]
	c.Writes = s.writesForLocked(c.WorkflowID, c.ThreadTS)
	return c, nil
}

// InsertWrites bulk-inserts write log entries.
func (s *MemoryStore) InsertWrites(_ context.Context, writes []model.CheckpointWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		key := writeKey(w.WorkflowID, w.ThreadTS)
		s.writes[key] = append(s.writes[key], w)
	}
	return nil
}

// WritesFor returns write log entries for (workflow_id, thread_ts) in idx order.
func (s *MemoryStore) WritesFor(_ context.Context, workflowID, threadTS string) ([]model.CheckpointWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writesForLocked(workflowID, threadTS), nil
}

func (s *MemoryStore) writesForLocked(workflowID, threadTS string) []model.CheckpointWrite {
	entries := s.writes[writeKey(workflowID, threadTS)]
	if len(entries) == 0 {
		return nil
	}
	result := make([]model.CheckpointWrite, len(entries))
	copy(result, entries)
	sort.Slice(result, func(i, j int) bool { return result[i].Idx < result[j].Idx })
	return result
}

// SweepExpired drops day buckets strictly older than cutoff's day and the
// write log entries belonging to their checkpoints.
func (s *MemoryStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoffDay := model.DayKey(cutoff)
	dropped := 0
	for day, bucket := range s.partitions {
		if day >= cutoffDay {
			continue
		}
		for id, c := range bucket {
			delete(s.partOf, id)
			delete(s.writes, writeKey(c.WorkflowID, c.ThreadTS))
		}
		delete(s.partitions, day)
		dropped++
	}
	return dropped, nil
}

// Partitions returns the number of live day buckets. For testing.
func (s *MemoryStore) Partitions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions)
}
