package workflow

import (
	"context"
	"time"

	"github.com/oko-labs/agentloop/model"
)

// Store persists workflows. Status writes go through UpdateStatus only; the
// conditional form is the optimistic-concurrency guard for transitions.
type Store interface {
	// Create persists a new workflow.
	Create(ctx context.Context, w model.Workflow) error

	// Get retrieves a workflow by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.Workflow, error)

	// List returns workflows owned by userID, newest first.
	List(ctx context.Context, userID string, filters Filters) ([]model.Workflow, error)

	// UpdateStatus moves a workflow from one status to another. The write is
	// conditioned on the expected source status: if the stored status has
	// changed underneath the caller, it returns CONFLICT and writes nothing.
	UpdateStatus(ctx context.Context, id, from, to string) error

	// Touch advances the workflow's updated_at heartbeat.
	Touch(ctx context.Context, id string, t time.Time) error

	// FindStale returns non-terminal workflows whose updated_at is older
	// than the cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]model.Workflow, error)

	// Delete removes a workflow. Owner-initiated destroy only.
	Delete(ctx context.Context, id string) error
}

// Filters are optional filters for listing workflows.
type Filters struct {
	Status     string
	ProjectID  string
	Definition string
	Limit      int
	Offset     int
}
