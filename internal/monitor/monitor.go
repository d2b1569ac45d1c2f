// Package monitor watches workflow liveness. It flags workflows whose
// heartbeat has gone quiet and workflows that never produced a first
// checkpoint, but takes no transition itself: an operator or supervisor
// decides what a flagged workflow deserves.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oko-labs/agentloop/internal/checkpoint"
	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/internal/workflow"
	"github.com/oko-labs/agentloop/model"
)

// Monitor periodically scans for stale workflows.
type Monitor struct {
	registry    *workflow.Registry
	checkpoints checkpoint.Store
	threshold   time.Duration
	interval    time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// New creates a liveness monitor.
func New(registry *workflow.Registry, checkpoints checkpoint.Store,
	threshold, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		registry:    registry,
		checkpoints: checkpoints,
		threshold:   threshold,
		interval:    interval,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run scans on every tick until the context is cancelled. Scans are best
// effort: a failed scan logs and waits for the next tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "monitor.scan")

	stale, err := m.registry.FindStale(ctx, m.threshold)
	if err != nil {
		observability.EndSpanWithError(span, err)
		m.logger.Error("stale workflow scan failed", zap.Error(err))
		return
	}

	m.metrics.StaleWorkflows.Set(float64(len(stale)))
	for _, w := range stale {
		m.logger.Warn("workflow heartbeat is stale",
			zap.String("workflow_id", w.ID),
			zap.String("status", w.Status),
			zap.Time("updated_at", w.UpdatedAt),
			zap.Duration("threshold", m.threshold),
		)
	}
	observability.EndSpanWithError(span, nil)
}

// Stalled reports whether the workflow never left created and has no
// checkpoint: it was handed to an executor that never picked it up.
func (m *Monitor) Stalled(ctx context.Context, w model.Workflow) (bool, error) {
	if w.Status != model.StatusCreated {
		return false, nil
	}
	_, err := m.checkpoints.Latest(ctx, w.ID)
	if err == nil {
		return false, nil
	}
	if model.IsCode(err, model.ErrNotFound) {
		return true, nil
	}
	return false, err
}
