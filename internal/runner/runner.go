// Package runner drives a single workflow: it drains queued control events,
// applies the resulting state transitions, and commits checkpoints on the
// workflow's behalf. One Runner per workflow; the loop polls rather than
// subscribes, so repeated polls with an empty queue have no side effects.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/oko-labs/agentloop/internal/checkpoint"
	"github.com/oko-labs/agentloop/internal/events"
	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/internal/workflow"
	"github.com/oko-labs/agentloop/model"
)

// control event types ranked by precedence. Queued events are a set of
// control intent, not an ordered stream: a stop wins over everything, a
// pause over payload delivery. Payload events (message, response) carry
// data to the agent and never transition the workflow.
var precedence = map[string]int{
	model.EventStop:         0,
	model.EventPause:        1,
	model.EventRequireInput: 2,
	model.EventResume:       3,
	model.EventMessage:      4,
	model.EventResponse:     5,
}

// machineEvents maps queue event types to state machine events. Absent
// entries are payload-only.
var machineEvents = map[string]string{
	model.EventStop:         workflow.EventStop,
	model.EventPause:        workflow.EventPause,
	model.EventResume:       workflow.EventResume,
	model.EventRequireInput: workflow.EventRequireInput,
}

// Drained is the outcome of one poll cycle.
type Drained struct {
	// Workflow is the state after applying any transition this cycle.
	Workflow model.Workflow
	// Messages are the payloads of delivered message/response events,
	// oldest first.
	Messages []model.Event
	// Halted is set once a stop lands; the loop exits after reporting it.
	Halted bool
}

// Runner owns the control loop for one workflow.
type Runner struct {
	workflowID  string
	registry    *workflow.Registry
	queue       *events.Queue
	checkpoints *checkpoint.Service
	logger      *zap.Logger

	interval time.Duration
	seq      atomic.Int64
}

// New creates a runner for the given workflow.
func New(workflowID string, registry *workflow.Registry, queue *events.Queue,
	checkpoints *checkpoint.Service, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		workflowID:  workflowID,
		registry:    registry,
		queue:       queue,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("workflow_id", workflowID)),
		interval:    interval,
	}
}

// Start moves the workflow from created to running.
func (r *Runner) Start(ctx context.Context) (model.Workflow, error) {
	return r.registry.ApplyEvent(ctx, r.workflowID, workflow.EventStart)
}

// Run polls for control events until a stop lands or the context is
// cancelled. Each drain outcome is reported to sink; a nil sink just
// advances the workflow.
func (r *Runner) Run(ctx context.Context, sink func(Drained)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d, err := r.DrainOnce(ctx)
			if err != nil {
				if model.IsCode(err, model.ErrConflict) {
					// Someone else transitioned first; the next poll
					// sees fresh state.
					continue
				}
				return err
			}
			if sink != nil {
				sink(d)
			}
			if d.Halted {
				r.logger.Info("runner halted", zap.String("status", d.Workflow.Status))
				return nil
			}
		}
	}
}

// DrainOnce processes the current queued events as one batch. Events are
// acknowledged only after their effect is durable, so a crash between
// transition and ack redelivers at most one already-applied event, which
// the idempotent ack absorbs.
func (r *Runner) DrainOnce(ctx context.Context) (Drained, error) {
	ctx, span := observability.StartSpan(ctx, "runner.drain",
		observability.AttrWorkflowID.String(r.workflowID),
	)

	queued, err := r.queue.PollQueued(ctx, r.workflowID)
	if err != nil {
		observability.EndSpanWithError(span, err)
		return Drained{}, err
	}

	w, err := r.registry.Get(ctx, r.workflowID)
	if err != nil {
		observability.EndSpanWithError(span, err)
		return Drained{}, err
	}
	d := Drained{Workflow: w}
	if len(queued) == 0 {
		observability.EndSpanWithError(span, nil)
		return d, nil
	}

	winner, losers, payloads := splitBatch(queued)

	// Superseded control events are consumed here, not left queued: once
	// the winner applies, their intent is stale and would only replay on
	// every later poll.
	for _, e := range losers {
		r.logger.Warn("discarding superseded control event",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.Type),
			zap.String("superseded_by", winner.Type),
		)
		if err := r.queue.MarkDelivered(ctx, e.ID); err != nil {
			observability.EndSpanWithError(span, err)
			return Drained{}, err
		}
	}

	if winner != nil {
		w, err = r.registry.ApplyEvent(ctx, r.workflowID, machineEvents[winner.Type])
		if err != nil {
			if model.IsCode(err, model.ErrIllegalTransition) {
				// The control intent no longer applies to the current
				// status. Consume the event so it cannot wedge the queue.
				r.logger.Warn("discarding inapplicable control event",
					zap.String("event_id", winner.ID),
					zap.String("event_type", winner.Type),
					zap.String("status", d.Workflow.Status),
				)
				if ackErr := r.queue.MarkDelivered(ctx, winner.ID); ackErr != nil {
					observability.EndSpanWithError(span, ackErr)
					return Drained{}, ackErr
				}
			} else {
				observability.EndSpanWithError(span, err)
				return Drained{}, err
			}
		} else {
			d.Workflow = w
			if err := r.queue.MarkDelivered(ctx, winner.ID); err != nil {
				observability.EndSpanWithError(span, err)
				return Drained{}, err
			}
			if w.Status == model.StatusStopped || w.Status == model.StatusFailed {
				d.Halted = true
			}
		}
	}

	// Payload events deliver regardless of any transition outcome.
	for _, e := range payloads {
		if err := r.queue.MarkDelivered(ctx, e.ID); err != nil {
			observability.EndSpanWithError(span, err)
			return Drained{}, err
		}
		d.Messages = append(d.Messages, e)
	}

	observability.EndSpanWithError(span, nil)
	return d, nil
}

// splitBatch picks the highest-precedence transition event, the transition
// events it supersedes, and the payload events in queue order.
func splitBatch(queued []model.Event) (*model.Event, []model.Event, []model.Event) {
	var winner *model.Event
	var losers []model.Event
	var payloads []model.Event
	for i := range queued {
		e := queued[i]
		if _, transitions := machineEvents[e.Type]; transitions {
			if winner == nil {
				winner = &queued[i]
			} else if precedence[e.Type] < precedence[winner.Type] {
				losers = append(losers, *winner)
				winner = &queued[i]
			} else {
				losers = append(losers, e)
			}
			continue
		}
		payloads = append(payloads, e)
	}
	return winner, losers, payloads
}

// CommitCheckpoint snapshots the agent's state. The thread_ts is assigned
// here: a zero-padded nanosecond timestamp with a per-runner sequence
// suffix, so lexicographic order matches commit order.
func (r *Runner) CommitCheckpoint(ctx context.Context, parentTS string, snapshot, metadata []byte) (model.Checkpoint, error) {
	return r.checkpoints.Commit(ctx, checkpoint.CommitParams{
		WorkflowID: r.workflowID,
		ThreadTS:   r.nextThreadTS(),
		ParentTS:   parentTS,
		Checkpoint: snapshot,
		Metadata:   metadata,
	})
}

func (r *Runner) nextThreadTS() string {
	return fmt.Sprintf("%020d-%06d", time.Now().UnixNano(), r.seq.Add(1))
}
