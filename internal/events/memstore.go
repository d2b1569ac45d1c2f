package events

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oko-labs/agentloop/model"
)

// MemoryStore is an in-memory Store for testing and single-process use.
type MemoryStore struct {
	mu         sync.RWMutex
	events     map[string]model.Event // id -> event
	byCorrelID map[string]string      // correlation id -> event id
}

// NewMemoryStore creates a new in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     make(map[string]model.Event),
		byCorrelID: make(map[string]string),
	}
}

// Insert persists a new queued event.
func (s *MemoryStore) Insert(_ context.Context, e model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("event %q already exists", e.ID))
	}
	if _, used := s.byCorrelID[e.CorrelationID]; used {
		return model.NewDuplicateCorrelationIDError(e.CorrelationID)
	}
	s.events[e.ID] = e
	s.byCorrelID[e.CorrelationID] = e.ID
	return nil
}

// ListQueued returns undelivered events for the workflow oldest first.
func (s *MemoryStore) ListQueued(_ context.Context, workflowID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.events {
		if e.WorkflowID == workflowID && e.Status == model.EventStatusQueued {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// MarkDelivered flips the event to delivered. Idempotent.
func (s *MemoryStore) MarkDelivered(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.events[eventID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("event %q not found", eventID))
	}
	e.Status = model.EventStatusDelivered
	s.events[eventID] = e
	return nil
}

// FindByCorrelationID returns the event enqueued under the correlation id.
func (s *MemoryStore) FindByCorrelationID(_ context.Context, workflowID, correlationID string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, used := s.byCorrelID[correlationID]
	if used {
		if e := s.events[id]; e.WorkflowID == workflowID {
			return e, nil
		}
	}
	return model.Event{}, model.NewNotFoundError(
		fmt.Sprintf("no event with correlation id %q", correlationID),
	)
}

// Len returns the number of stored events. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
