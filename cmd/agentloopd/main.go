// Package main is the entry point for the agentloop daemon. It wires the
// stores, the event queue, and the background loops together and serves
// the workflow control API alongside the operational HTTP endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oko-labs/agentloop/internal/checkpoint"
	"github.com/oko-labs/agentloop/internal/config"
	"github.com/oko-labs/agentloop/internal/events"
	"github.com/oko-labs/agentloop/internal/monitor"
	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/internal/transport"
	"github.com/oko-labs/agentloop/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "agentloopd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Stores. One pool backs workflow, checkpoint, event, and binding
	// persistence; memory stores serve tests and single-node setups.
	stores, closer, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if closer != nil {
		defer closer()
	}

	dedup, dedupCloser := buildDedupCache(cfg.Dedup, logger)
	if dedupCloser != nil {
		defer dedupCloser()
	}

	registry := workflow.NewRegistry(stores.workflows, metrics)
	checkpoints := checkpoint.NewService(stores.checkpoints, stores.workflows, metrics)
	queue := events.NewQueue(stores.events, dedup, cfg.Dedup.TTL, metrics)

	// Background loops.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	reaper := checkpoint.NewReaper(stores.checkpoints, cfg.Retention.CheckpointTTL,
		cfg.Retention.SweepInterval, logger, metrics)
	go reaper.Run(bgCtx)

	liveness := monitor.New(registry, stores.checkpoints, cfg.Monitor.StaleThreshold,
		cfg.Monitor.ScanInterval, logger, metrics)
	go liveness.Run(bgCtx)

	// Operational endpoints.
	readinessChecks := observability.ReadinessChecks{
		WorkflowStore:   stores.workflowHealth,
		CheckpointStore: stores.checkpointHealth,
		EventQueue:      stores.eventHealth,
	}
	if hc, ok := dedup.(observability.HealthChecker); ok {
		readinessChecks.DedupCache = hc
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", observability.HandleHealth())
	router.Get("/readyz", observability.HandleReady(readinessChecks))
	if cfg.Observability.Metrics.Enabled {
		router.Handle(cfg.Observability.Metrics.Path, observability.Handler())
	}
	transport.Register(router, transport.Dependencies{
		Registry:    registry,
		Queue:       queue,
		Checkpoints: checkpoints,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("agentloopd started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles the persistence backends plus their readiness probes.
// Memory stores have no probe.
type stores struct {
	workflows   workflow.Store
	checkpoints checkpoint.Store
	events      events.Store

	workflowHealth   observability.HealthChecker
	checkpointHealth observability.HealthChecker
	eventHealth      observability.HealthChecker
}

// buildStores creates the persistence backends based on config.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*stores, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return &stores{
			workflows:   workflow.NewMemoryStore(),
			checkpoints: checkpoint.NewMemoryStore(),
			events:      events.NewMemoryStore(),
		}, nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		wf := workflow.NewPgStore(pool)
		cp := checkpoint.NewPgStore(pool)
		ev := events.NewPgStore(pool)
		return &stores{
			workflows:        wf,
			checkpoints:      cp,
			events:           ev,
			workflowHealth:   wf,
			checkpointHealth: cp,
			eventHealth:      ev,
		}, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildDedupCache creates the correlation-id reservation cache based on
// config. Disabled or misconfigured dedup falls back to the memory cache.
func buildDedupCache(cfg config.DedupConfig, logger *zap.Logger) (events.ReservationCache, func()) {
	if !cfg.Enabled || cfg.Driver == "memory" {
		return events.NewMemoryReservationCache(), nil
	}

	addr := os.Getenv(cfg.AddrEnv)
	if addr == "" {
		logger.Warn("dedup cache address not configured, using in-memory cache",
			zap.String("addr_env", cfg.AddrEnv))
		return events.NewMemoryReservationCache(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	logger.Info("using redis dedup cache", zap.String("addr", addr))
	return events.NewRedisReservationCache(client), func() { _ = client.Close() }
}
