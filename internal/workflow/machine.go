package workflow

import (
	"fmt"

	"github.com/oko-labs/agentloop/model"
)

// Events accepted by the workflow state machine.
const (
	EventStart                   = "start"
	EventPause                   = "pause"
	EventRequireInput            = "require_input"
	EventRequirePlanApproval     = "require_plan_approval"
	EventRequireToolCallApproval = "require_tool_call_approval"
	EventResume                  = "resume"
	EventRetry                   = "retry"
	EventFinish                  = "finish"
	EventDrop                    = "drop"
	EventStop                    = "stop"
)

// transitions maps (event, source status) to the target status. Any pair
// absent from the table is illegal.
var transitions = map[string]map[string]string{
	EventStart: {
		model.StatusCreated: model.StatusRunning,
	},
	EventPause: {
		model.StatusRunning: model.StatusPaused,
	},
	EventRequireInput: {
		model.StatusRunning: model.StatusInputRequired,
	},
	EventRequirePlanApproval: {
		model.StatusRunning: model.StatusPlanApprovalRequired,
	},
	EventRequireToolCallApproval: {
		model.StatusRunning: model.StatusToolApprovalRequired,
	},
	EventResume: {
		model.StatusPaused:               model.StatusRunning,
		model.StatusInputRequired:        model.StatusRunning,
		model.StatusPlanApprovalRequired: model.StatusRunning,
		model.StatusToolApprovalRequired: model.StatusRunning,
	},
	EventRetry: {
		model.StatusRunning: model.StatusRunning,
		model.StatusStopped: model.StatusRunning,
		model.StatusFailed:  model.StatusRunning,
	},
	EventFinish: {
		model.StatusRunning: model.StatusFinished,
	},
	EventDrop: {
		model.StatusCreated:              model.StatusFailed,
		model.StatusRunning:              model.StatusFailed,
		model.StatusPaused:               model.StatusFailed,
		model.StatusInputRequired:        model.StatusFailed,
		model.StatusPlanApprovalRequired: model.StatusFailed,
		model.StatusToolApprovalRequired: model.StatusFailed,
	},
	EventStop: {
		model.StatusCreated:              model.StatusStopped,
		model.StatusRunning:              model.StatusStopped,
		model.StatusPaused:               model.StatusStopped,
		model.StatusInputRequired:        model.StatusStopped,
		model.StatusPlanApprovalRequired: model.StatusStopped,
		model.StatusToolApprovalRequired: model.StatusStopped,
	},
}

// Next resolves the target status for applying event from the given status.
// It returns an ILLEGAL_TRANSITION error for any pair not in the table and
// never has partial effects.
func Next(status, event string) (string, error) {
	sources, ok := transitions[event]
	if !ok {
		return "", model.NewIllegalTransitionError(
			fmt.Sprintf("unknown workflow event %q", event),
		)
	}
	target, ok := sources[status]
	if !ok {
		return "", model.NewIllegalTransitionError(
			fmt.Sprintf("cannot apply %q to a workflow in status %q", event, status),
		)
	}
	return target, nil
}

// Events returns all events the machine knows about. For introspection and
// tests.
func Events() []string {
	return []string{
		EventStart, EventPause, EventRequireInput, EventRequirePlanApproval,
		EventRequireToolCallApproval, EventResume, EventRetry, EventFinish,
		EventDrop, EventStop,
	}
}

// Statuses returns all statuses reachable by the machine.
func Statuses() []string {
	return []string{
		model.StatusCreated, model.StatusRunning, model.StatusPaused,
		model.StatusInputRequired, model.StatusPlanApprovalRequired,
		model.StatusToolApprovalRequired, model.StatusFinished,
		model.StatusStopped, model.StatusFailed,
	}
}
