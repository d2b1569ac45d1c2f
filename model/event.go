package model

import "time"

// Event types: external control signals delivered into a running workflow's
// mailbox.
const (
	EventPause        = "pause"
	EventResume       = "resume"
	EventStop         = "stop"
	EventMessage      = "message"
	EventResponse     = "response"
	EventRequireInput = "require_input"
)

// Event delivery statuses.
const (
	EventStatusQueued    = "queued"
	EventStatusDelivered = "delivered"
)

// Event is one queued control signal. Events are never deleted; delivered
// ones remain as an audit trail.
type Event struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflow_id"`
	Type          string    `json:"event_type"`
	Status        string    `json:"event_status"`
	Message       string    `json:"message,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ValidEventType reports whether t is a known event type.
func ValidEventType(t string) bool {
	switch t {
	case EventPause, EventResume, EventStop, EventMessage, EventResponse, EventRequireInput:
		return true
	}
	return false
}
