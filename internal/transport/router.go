package transport

import (
	"github.com/go-chi/chi/v5"

	"github.com/oko-labs/agentloop/internal/checkpoint"
	"github.com/oko-labs/agentloop/internal/events"
	"github.com/oko-labs/agentloop/internal/workflow"
)

// Dependencies holds the injected collaborators for the HTTP API.
type Dependencies struct {
	Registry    *workflow.Registry
	Queue       *events.Queue
	Checkpoints *checkpoint.Service
}

// Register mounts the workflow control API under /v1 on the given router.
// Operational endpoints (health, readiness, metrics) stay with the caller.
func Register(r chi.Router, deps Dependencies) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflows", handleWorkflowCreate(deps.Registry))
		r.Get("/workflows", handleWorkflowList(deps.Registry))
		r.Get("/workflows/{workflowID}", handleWorkflowGet(deps.Registry))

		r.Post("/workflows/{workflowID}/events", handleEventEnqueue(deps.Queue))
		r.Get("/workflows/{workflowID}/events/{correlationID}", handleEventByCorrelation(deps.Queue))

		r.Get("/workflows/{workflowID}/checkpoints", handleCheckpointList(deps.Checkpoints))
		r.Get("/workflows/{workflowID}/checkpoints/latest", handleCheckpointLatest(deps.Checkpoints))
	})
}
