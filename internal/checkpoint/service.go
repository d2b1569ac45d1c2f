package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/model"
)

// CommitParams are the runner-supplied fields for a checkpoint commit.
type CommitParams struct {
	WorkflowID string
	ThreadTS   string
	ParentTS   string
	Checkpoint []byte
	Metadata   []byte
}

// Service validates and commits checkpoints and write log entries. Every
// successful commit synchronously touches the owning workflow's updated_at:
// the liveness heartbeat never lags behind the last durable snapshot.
type Service struct {
	store     Store
	heartbeat Heartbeat
	metrics   *observability.Metrics
}

// NewService creates a checkpoint service.
func NewService(store Store, heartbeat Heartbeat, metrics *observability.Metrics) *Service {
	return &Service{store: store, heartbeat: heartbeat, metrics: metrics}
}

// Commit validates params, inserts the checkpoint, and touches the owning
// workflow's heartbeat within the same logical operation.
func (s *Service) Commit(ctx context.Context, p CommitParams) (model.Checkpoint, error) {
	ctx, span := observability.StartSpan(ctx, "checkpoint.commit",
		observability.AttrWorkflowID.String(p.WorkflowID),
		observability.AttrThreadTS.String(p.ThreadTS),
	)
	started := time.Now()

	if details := validateCommit(p); len(details) > 0 {
		err := model.NewValidationError(details...)
		s.commitObserved(span, started, len(p.Checkpoint), err)
		return model.Checkpoint{}, err
	}

	now := time.Now().UTC()
	c := model.Checkpoint{
		ID:         uuid.New().String(),
		WorkflowID: p.WorkflowID,
		ThreadTS:   p.ThreadTS,
		ParentTS:   p.ParentTS,
		Checkpoint: p.Checkpoint,
		Metadata:   p.Metadata,
		CreatedAt:  now,
	}

	if err := s.store.Insert(ctx, c); err != nil {
		s.commitObserved(span, started, len(c.Checkpoint), err)
		return model.Checkpoint{}, err
	}
	if err := s.heartbeat.Touch(ctx, p.WorkflowID, now); err != nil {
		err = fmt.Errorf("touch workflow heartbeat: %w", err)
		s.commitObserved(span, started, len(c.Checkpoint), err)
		return model.Checkpoint{}, err
	}
	s.commitObserved(span, started, len(c.Checkpoint), nil)
	return c, nil
}

func (s *Service) commitObserved(span trace.Span, started time.Time, blobLen int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.CheckpointCommitsTotal.WithLabelValues(status).Inc()
	s.metrics.CheckpointCommitDuration.Observe(time.Since(started).Seconds())
	if err == nil {
		s.metrics.CheckpointBlobSizeBytes.Observe(float64(blobLen))
	}
	observability.EndSpanWithError(span, err)
}

// Latest returns the most recent checkpoint for the workflow.
func (s *Service) Latest(ctx context.Context, workflowID string) (model.Checkpoint, error) {
	return s.store.Latest(ctx, workflowID)
}

// ListWithWrites returns all checkpoints newest-first with writes attached.
func (s *Service) ListWithWrites(ctx context.Context, workflowID string) ([]model.Checkpoint, error) {
	return s.store.ListWithWrites(ctx, workflowID)
}

// Lookup returns a single checkpoint by id.
func (s *Service) Lookup(ctx context.Context, id string) (model.Checkpoint, error) {
	return s.store.Lookup(ctx, id)
}

// AppendWrites validates and bulk-inserts write log entries. Multiple
// writers may append concurrently for the same workflow; idx is
// caller-assigned.
func (s *Service) AppendWrites(ctx context.Context, writes []model.CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}

	var details []model.FieldError
	for i, w := range writes {
		details = append(details, validateWrite(i, w)...)
	}
	if len(details) > 0 {
		return model.NewValidationError(details...)
	}

	stamped := make([]model.CheckpointWrite, len(writes))
	for i, w := range writes {
		if w.ID == "" {
			w.ID = uuid.New().String()
		}
		stamped[i] = w
	}
	if err := s.store.InsertWrites(ctx, stamped); err != nil {
		return err
	}
	s.metrics.WritesAppendedTotal.Add(float64(len(stamped)))
	return nil
}

// WritesForCheckpoint resolves the value join for one checkpoint.
func (s *Service) WritesForCheckpoint(ctx context.Context, c model.Checkpoint) ([]model.CheckpointWrite, error) {
	return s.store.WritesFor(ctx, c.WorkflowID, c.ThreadTS)
}

func validateCommit(p CommitParams) []model.FieldError {
	var details []model.FieldError
	if p.WorkflowID == "" {
		details = append(details, model.FieldError{
			Field: "workflow_id", Code: "required", Message: "workflow reference is required",
		})
	}
	if p.ThreadTS == "" {
		details = append(details, model.FieldError{
			Field: "thread_ts", Code: "required", Message: "thread_ts is required",
		})
	}
	if len(p.Checkpoint) == 0 {
		details = append(details, model.FieldError{
			Field: "checkpoint", Code: "required", Message: "checkpoint blob is required",
		})
	}
	if len(p.Metadata) == 0 {
		details = append(details, model.FieldError{
			Field: "metadata", Code: "required", Message: "metadata blob is required",
		})
	}
	return details
}

func validateWrite(i int, w model.CheckpointWrite) []model.FieldError {
	field := func(name string) string { return fmt.Sprintf("writes[%d].%s", i, name) }

	var details []model.FieldError
	if w.WorkflowID == "" {
		details = append(details, model.FieldError{
			Field: field("workflow_id"), Code: "required", Message: "workflow reference is required",
		})
	}
	if w.ThreadTS == "" {
		details = append(details, model.FieldError{
			Field: field("thread_ts"), Code: "required", Message: "thread_ts is required",
		})
	}
	if w.Task == "" {
		details = append(details, model.FieldError{
			Field: field("task"), Code: "required", Message: "task is required",
		})
	}
	if w.Channel == "" {
		details = append(details, model.FieldError{
			Field: field("channel"), Code: "required", Message: "channel is required",
		})
	}
	if w.WriteType == "" {
		details = append(details, model.FieldError{
			Field: field("write_type"), Code: "required", Message: "write_type is required",
		})
	}
	if w.Idx < 0 {
		details = append(details, model.FieldError{
			Field: field("idx"), Code: "invalid", Message: "idx must not be negative",
		})
	}
	if len(w.Data) > model.MaxWriteDataLen {
		details = append(details, model.FieldError{
			Field: field("data"), Code: "too_long",
			Message: fmt.Sprintf("data exceeds %d bytes", model.MaxWriteDataLen),
		})
	}
	return details
}
