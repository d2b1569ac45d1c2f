// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Retention     RetentionConfig     `yaml:"retention"`
	Runner        RunnerConfig        `yaml:"runner"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes the operational HTTP endpoint (health, readiness,
// metrics).
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig describes workflow/checkpoint/event persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RetentionConfig describes checkpoint expiry settings.
//
// CheckpointTTL governs physical removal of checkpoint partitions.
// ArchiveTTL governs the derived archived predicate on workflows. They
// default to the same window but are deliberately independent knobs; see
// DESIGN.md for the coupling risk.
type RetentionConfig struct {
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl"`
	ArchiveTTL    time.Duration `yaml:"archive_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RunnerConfig describes the agent runner control loop.
type RunnerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MonitorConfig describes the liveness monitor.
type MonitorConfig struct {
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
}

// DedupConfig describes the optional correlation-id dedup cache.
type DedupConfig struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"`
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "postgres",
			DSNEnv:          "AGENTLOOP_DATABASE_URL",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Retention: RetentionConfig{
			CheckpointTTL: 30 * 24 * time.Hour,
			ArchiveTTL:    30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Runner: RunnerConfig{
			PollInterval: 5 * time.Second,
		},
		Monitor: MonitorConfig{
			StaleThreshold: 10 * time.Minute,
			ScanInterval:   time.Minute,
		},
		Dedup: DedupConfig{
			Driver:  "memory",
			AddrEnv: "AGENTLOOP_REDIS_ADDR",
			TTL:     24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (memory, postgres)", c.Store.Driver))
	}
	if c.Retention.CheckpointTTL <= 0 {
		errs = append(errs, "retention.checkpoint_ttl must be positive")
	}
	if c.Retention.SweepInterval <= 0 {
		errs = append(errs, "retention.sweep_interval must be positive")
	}
	if c.Runner.PollInterval <= 0 {
		errs = append(errs, "runner.poll_interval must be positive")
	}
	if c.Monitor.StaleThreshold <= 0 {
		errs = append(errs, "monitor.stale_threshold must be positive")
	}
	if c.Dedup.Enabled {
		switch c.Dedup.Driver {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Sprintf("dedup.driver %q is not supported (memory, redis)", c.Dedup.Driver))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads AGENTLOOP_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTLOOP_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGENTLOOP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AGENTLOOP_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("AGENTLOOP_RETENTION_CHECKPOINT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.CheckpointTTL = d
		}
	}
	if v := os.Getenv("AGENTLOOP_MONITOR_STALE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.StaleThreshold = d
		}
	}
}
