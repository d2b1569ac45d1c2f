package workflow

import (
	"testing"

	"github.com/oko-labs/agentloop/model"
)

func TestNext_legalTransitions(t *testing.T) {
	cases := []struct {
		event string
		from  string
		to    string
	}{
		{EventStart, model.StatusCreated, model.StatusRunning},
		{EventPause, model.StatusRunning, model.StatusPaused},
		{EventRequireInput, model.StatusRunning, model.StatusInputRequired},
		{EventRequirePlanApproval, model.StatusRunning, model.StatusPlanApprovalRequired},
		{EventRequireToolCallApproval, model.StatusRunning, model.StatusToolApprovalRequired},
		{EventResume, model.StatusPaused, model.StatusRunning},
		{EventResume, model.StatusInputRequired, model.StatusRunning},
		{EventResume, model.StatusPlanApprovalRequired, model.StatusRunning},
		{EventResume, model.StatusToolApprovalRequired, model.StatusRunning},
		{EventRetry, model.StatusRunning, model.StatusRunning},
		{EventRetry, model.StatusStopped, model.StatusRunning},
		{EventRetry, model.StatusFailed, model.StatusRunning},
		{EventFinish, model.StatusRunning, model.StatusFinished},
		{EventDrop, model.StatusCreated, model.StatusFailed},
		{EventDrop, model.StatusRunning, model.StatusFailed},
		{EventDrop, model.StatusPaused, model.StatusFailed},
		{EventDrop, model.StatusInputRequired, model.StatusFailed},
		{EventDrop, model.StatusPlanApprovalRequired, model.StatusFailed},
		{EventDrop, model.StatusToolApprovalRequired, model.StatusFailed},
		{EventStop, model.StatusCreated, model.StatusStopped},
		{EventStop, model.StatusRunning, model.StatusStopped},
		{EventStop, model.StatusPaused, model.StatusStopped},
		{EventStop, model.StatusInputRequired, model.StatusStopped},
		{EventStop, model.StatusPlanApprovalRequired, model.StatusStopped},
		{EventStop, model.StatusToolApprovalRequired, model.StatusStopped},
	}

	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		if err != nil {
			t.Errorf("Next(%s, %s) error: %v", tc.from, tc.event, err)
			continue
		}
		if got != tc.to {
			t.Errorf("Next(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.to)
		}
	}
}

// Every (status, event) pair outside the transition table must fail with
// ILLEGAL_TRANSITION.
func TestNext_totality(t *testing.T) {
	for _, event := range Events() {
		for _, status := range Statuses() {
			_, legal := transitions[event][status]
			got, err := Next(status, event)
			if legal {
				if err != nil {
					t.Errorf("Next(%s, %s) unexpectedly illegal: %v", status, event, err)
				}
				continue
			}
			if err == nil {
				t.Errorf("Next(%s, %s) = %s, want ILLEGAL_TRANSITION", status, event, got)
				continue
			}
			if !model.IsCode(err, model.ErrIllegalTransition) {
				t.Errorf("Next(%s, %s) error code = %s, want %s", status, event, model.CodeOf(err), model.ErrIllegalTransition)
			}
		}
	}
}

func TestNext_unknownEvent(t *testing.T) {
	_, err := Next(model.StatusRunning, "reboot")
	if !model.IsCode(err, model.ErrIllegalTransition) {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", err)
	}
}
