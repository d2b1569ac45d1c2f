package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oko-labs/agentloop/model"
)

// MemoryStore is an in-memory Store for testing and single-process use.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
}

// NewMemoryStore creates a new in-memory workflow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]model.Workflow)}
}

// Create persists a new workflow.
func (s *MemoryStore) Create(_ context.Context, w model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[w.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow %q already exists", w.ID))
	}
	s.workflows[w.ID] = w
	return nil
}

// Get retrieves a workflow by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.workflows[id]
	if !exists {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	return w, nil
}

// List returns workflows owned by userID, newest first.
func (s *MemoryStore) List(_ context.Context, userID string, filters Filters) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Workflow
	for _, w := range s.workflows {
		if w.UserID != userID {
			continue
		}
		if filters.Status != "" && w.Status != filters.Status {
			continue
		}
		if filters.ProjectID != "" && w.ProjectID != filters.ProjectID {
			continue
		}
		if filters.Definition != "" && w.Definition != filters.Definition {
			continue
		}
		result = append(result, w)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Workflow{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// UpdateStatus moves a workflow between statuses, conditioned on the
// expected source status.
func (s *MemoryStore) UpdateStatus(_ context.Context, id, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.workflows[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	if w.Status != from {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q status is %q, expected %q", id, w.Status, from),
		)
	}
	w.Status = to
	w.UpdatedAt = time.Now().UTC()
	s.workflows[id] = w
	return nil
}

// Touch advances the workflow's updated_at heartbeat.
func (s *MemoryStore) Touch(_ context.Context, id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.workflows[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	if t.After(w.UpdatedAt) {
		w.UpdatedAt = t
		s.workflows[id] = w
	}
	return nil
}

// FindStale returns non-terminal workflows with a heartbeat older than cutoff.
func (s *MemoryStore) FindStale(_ context.Context, cutoff time.Time) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Workflow
	for _, w := range s.workflows {
		if w.Terminal() {
			continue
		}
		if w.UpdatedAt.Before(cutoff) {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// Delete removes a workflow.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	delete(s.workflows, id)
	return nil
}

// Len returns the total number of workflows. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
