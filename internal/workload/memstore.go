package workload

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oko-labs/agentloop/model"
)

// MemoryStore is an in-memory Store for testing and single-process use.
type MemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]model.WorkloadBinding
}

// NewMemoryStore creates a new in-memory binding store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[string]model.WorkloadBinding)}
}

// Insert persists a new binding.
func (s *MemoryStore) Insert(_ context.Context, b model.WorkloadBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bindings[b.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("binding %q already exists", b.ID))
	}
	s.bindings[b.ID] = b
	return nil
}

// ForWorkflow returns the workflow's bindings newest first.
func (s *MemoryStore) ForWorkflow(_ context.Context, workflowID string) ([]model.WorkloadBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkloadBinding
	for _, b := range s.bindings {
		if b.WorkflowID == workflowID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Len returns the number of bindings. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}
