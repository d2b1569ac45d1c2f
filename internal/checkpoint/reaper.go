package checkpoint

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/model"
)

// Reaper periodically drops checkpoint partitions older than the
// configured retention window. A failed sweep is logged and retried on
// the next tick; it never stops the loop.
type Reaper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewReaper creates a retention sweeper over the given store.
func NewReaper(store Store, ttl, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Reaper {
	return &Reaper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled. It performs
// one sweep immediately on startup so restarts do not delay retention.
func (r *Reaper) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "checkpoint.Reaper.sweep")

	cutoff := r.now().Add(-r.ttl)
	dropped, err := r.store.SweepExpired(ctx, cutoff)
	r.metrics.SweepRunsTotal.Inc()
	if err != nil {
		r.metrics.SweepErrorsTotal.Inc()
		observability.EndSpanWithError(span, model.NewRetentionSweepError(err))
		r.logger.Error("checkpoint retention sweep failed",
			zap.String("code", model.ErrRetentionSweep),
			zap.Time("cutoff", cutoff),
			zap.Error(err),
		)
		return
	}
	r.metrics.SweptPartitionsTotal.Add(float64(dropped))
	if dropped > 0 {
		r.logger.Info("checkpoint retention sweep completed",
			zap.Time("cutoff", cutoff),
			zap.Int("partitions_dropped", dropped),
		)
	}
	observability.EndSpanWithError(span, nil)
}
