// Package workload associates workflows with the compute workloads that
// execute them. Bindings are pointer records; the workload's own lifecycle
// lives with the infrastructure that runs it.
package workload

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oko-labs/agentloop/model"
)

// Store is the persistence contract for workload bindings.
type Store interface {
	Insert(ctx context.Context, b model.WorkloadBinding) error
	ForWorkflow(ctx context.Context, workflowID string) ([]model.WorkloadBinding, error)
}

// Binder validates and records workflow-to-workload bindings.
type Binder struct {
	store Store
}

// NewBinder creates a binder backed by the given store.
func NewBinder(store Store) *Binder {
	return &Binder{store: store}
}

// Bind records that workloadID is executing the workflow.
func (b *Binder) Bind(ctx context.Context, workflowID, workloadID, projectID string) (model.WorkloadBinding, error) {
	var details []model.FieldError
	if workflowID == "" {
		details = append(details, model.FieldError{
			Field: "workflow_id", Code: "required", Message: "workflow reference is required",
		})
	}
	if workloadID == "" {
		details = append(details, model.FieldError{
			Field: "workload_id", Code: "required", Message: "workload reference is required",
		})
	}
	if projectID == "" {
		details = append(details, model.FieldError{
			Field: "project_id", Code: "required", Message: "project reference is required",
		})
	}
	if len(details) > 0 {
		return model.WorkloadBinding{}, model.NewValidationError(details...)
	}

	binding := model.WorkloadBinding{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		WorkloadID: workloadID,
		ProjectID:  projectID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := b.store.Insert(ctx, binding); err != nil {
		return model.WorkloadBinding{}, err
	}
	return binding, nil
}

// ForWorkflow returns the workflow's bindings newest first.
func (b *Binder) ForWorkflow(ctx context.Context, workflowID string) ([]model.WorkloadBinding, error) {
	return b.store.ForWorkflow(ctx, workflowID)
}
