package model

import "time"

// Workflow lifecycle statuses.
const (
	StatusCreated              = "created"
	StatusRunning              = "running"
	StatusPaused               = "paused"
	StatusInputRequired        = "input_required"
	StatusPlanApprovalRequired = "plan_approval_required"
	StatusToolApprovalRequired = "tool_call_approval_required"
	StatusFinished             = "finished"
	StatusStopped              = "stopped"
	StatusFailed               = "failed"
)

// Execution environments.
const (
	EnvironmentIDE = "ide"
	EnvironmentWeb = "web"
)

// DefaultDefinition is the workflow definition used when none is supplied.
const DefaultDefinition = "software_development"

// Field size limits.
const (
	MaxGoalLen  = 16384
	MaxImageLen = 2048
)

// Workflow represents one agent execution session. Status is only ever
// mutated through the state machine's guarded transitions.
type Workflow struct {
	ID                      string    `json:"id"`
	UserID                  string    `json:"user_id"`
	ProjectID               string    `json:"project_id,omitempty"`
	NamespaceID             string    `json:"namespace_id,omitempty"`
	Goal                    string    `json:"goal,omitempty"`
	Image                   string    `json:"image,omitempty"`
	Environment             string    `json:"environment"`
	Definition              string    `json:"workflow_definition"`
	AgentPrivileges         []int     `json:"agent_privileges"`
	PreApprovedPrivileges   []int     `json:"pre_approved_agent_privileges,omitempty"`
	AllowAgentToRequestUser bool      `json:"allow_agent_to_request_user"`
	Status                  string    `json:"status"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Archived reports whether the workflow's creation time has aged past the
// given retention window. Kept configurable independently of the checkpoint
// retention window; the two happen to share a default.
func (w Workflow) Archived(now time.Time, retention time.Duration) bool {
	return w.CreatedAt.Add(retention).Before(now)
}

// StaleSince reports whether the workflow's last heartbeat (updated_at,
// touched by every checkpoint commit) is older than the threshold.
func (w Workflow) StaleSince(now time.Time, threshold time.Duration) bool {
	return w.UpdatedAt.Add(threshold).Before(now)
}

// Terminal reports whether the workflow has reached a practically-terminal
// status. Retry can still resurrect stopped and failed workflows.
func (w Workflow) Terminal() bool {
	switch w.Status {
	case StatusFinished, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// ValidEnvironment reports whether env is a known execution environment.
func ValidEnvironment(env string) bool {
	return env == EnvironmentIDE || env == EnvironmentWeb
}
