// Package events implements the control-event queue: callers enqueue
// pause, resume, stop, message, response, and require_input events for a
// workflow, and the runner drains queued events exactly once. Enqueues
// carry a correlation id; reusing one is rejected so retried requests do
// not double-deliver.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/model"
)

// Store is the persistence contract for control events.
type Store interface {
	// Insert persists a new queued event. A correlation id already in
	// use surfaces as DUPLICATE_CORRELATION_ID.
	Insert(ctx context.Context, e model.Event) error
	// ListQueued returns the workflow's undelivered events oldest first.
	ListQueued(ctx context.Context, workflowID string) ([]model.Event, error)
	// MarkDelivered flips the event to delivered. Repeated calls are
	// no-ops; unknown ids surface as NOT_FOUND.
	MarkDelivered(ctx context.Context, eventID string) error
	// FindByCorrelationID returns the event enqueued under the given
	// correlation id, delivered or not.
	FindByCorrelationID(ctx context.Context, workflowID, correlationID string) (model.Event, error)
}

// EnqueueParams are the caller-supplied fields for a new control event.
type EnqueueParams struct {
	WorkflowID    string
	Type          string
	Message       string
	CorrelationID string
}

// Queue validates and enqueues control events and hands them to the
// runner. A reservation cache front-runs the store's unique index so most
// correlation id replays are rejected without a write attempt.
type Queue struct {
	store   Store
	dedup   ReservationCache
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewQueue creates an event queue. ttl bounds how long a correlation id
// reservation is held in the cache; the store's unique index is the
// durable backstop.
func NewQueue(store Store, dedup ReservationCache, ttl time.Duration, metrics *observability.Metrics) *Queue {
	return &Queue{store: store, dedup: dedup, ttl: ttl, metrics: metrics}
}

// Enqueue validates params and persists a queued event. An empty
// correlation id gets a generated one so every event is individually
// addressable.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (model.Event, error) {
	ctx, span := observability.StartSpan(ctx, "events.enqueue",
		observability.AttrWorkflowID.String(p.WorkflowID),
		observability.AttrEventType.String(p.Type),
	)

	if details := validateEnqueue(p); len(details) > 0 {
		err := model.NewValidationError(details...)
		observability.EndSpanWithError(span, err)
		return model.Event{}, err
	}

	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	} else {
		fresh, err := q.dedup.Reserve(ctx, FormatReservationKey(correlationID), q.ttl)
		if err == nil && !fresh {
			q.metrics.DuplicateCorrelationTotal.Inc()
			dup := model.NewDuplicateCorrelationIDError(correlationID)
			observability.EndSpanWithError(span, dup)
			return model.Event{}, dup
		}
		// A cache error is not fatal; the unique index still guards.
	}

	e := model.Event{
		ID:            uuid.New().String(),
		WorkflowID:    p.WorkflowID,
		Type:          p.Type,
		Status:        model.EventStatusQueued,
		Message:       p.Message,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := q.store.Insert(ctx, e); err != nil {
		if model.IsCode(err, model.ErrDuplicateCorrelID) {
			q.metrics.DuplicateCorrelationTotal.Inc()
		} else if p.CorrelationID != "" {
			// Free the reservation so a retry of the failed insert
			// is not mistaken for a replay.
			_ = q.dedup.Release(ctx, FormatReservationKey(correlationID))
		}
		observability.EndSpanWithError(span, err)
		return model.Event{}, err
	}

	q.metrics.EventsEnqueuedTotal.WithLabelValues(p.Type).Inc()
	observability.EndSpanWithError(span, nil)
	return e, nil
}

// PollQueued returns the workflow's undelivered events oldest first.
func (q *Queue) PollQueued(ctx context.Context, workflowID string) ([]model.Event, error) {
	return q.store.ListQueued(ctx, workflowID)
}

// MarkDelivered acknowledges an event. Safe to call more than once.
func (q *Queue) MarkDelivered(ctx context.Context, eventID string) error {
	ctx, span := observability.StartSpan(ctx, "events.mark_delivered",
		observability.AttrEventID.String(eventID),
	)
	err := q.store.MarkDelivered(ctx, eventID)
	if err == nil {
		q.metrics.EventsDeliveredTotal.Inc()
	}
	observability.EndSpanWithError(span, err)
	return err
}

// FindByCorrelationID resolves an enqueue receipt to its event.
func (q *Queue) FindByCorrelationID(ctx context.Context, workflowID, correlationID string) (model.Event, error) {
	return q.store.FindByCorrelationID(ctx, workflowID, correlationID)
}

func validateEnqueue(p EnqueueParams) []model.FieldError {
	var details []model.FieldError
	if p.WorkflowID == "" {
		details = append(details, model.FieldError{
			Field: "workflow_id", Code: "required", Message: "workflow reference is required",
		})
	}
	if !model.ValidEventType(p.Type) {
		details = append(details, model.FieldError{
			Field: "event_type", Code: "invalid",
			Message: fmt.Sprintf("unknown event type %q", p.Type),
		})
	}
	if p.CorrelationID != "" {
		if _, err := uuid.Parse(p.CorrelationID); err != nil {
			details = append(details, model.FieldError{
				Field: "correlation_id", Code: "invalid",
				Message: "correlation_id must be a UUID",
			})
		}
	}
	return details
}
