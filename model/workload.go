package model

import "time"

// WorkloadBinding associates a workflow with the externally-scheduled
// compute unit currently executing it. It is a pointer record consulted by
// the scheduler; it has no transition semantics of its own.
type WorkloadBinding struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	WorkloadID string    `json:"workload_id"`
	ProjectID  string    `json:"project_id"`
	CreatedAt  time.Time `json:"created_at"`
}
