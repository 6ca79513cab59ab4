// Package config loads the worker's boot configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the fully-resolved, validated boot configuration for the
// worker process. It is loaded once at startup and treated as immutable for
// the process lifetime, including the embedding dimension, which is fixed
// for the life of the vector index.
type Config struct {
	// NATSURL is the bus connection string. Required.
	NATSURL string

	// InternalToken authenticates calls to the settings service. Required.
	InternalToken string

	// DatabaseURL is the path to the SQLite database file backing the
	// persistence layer. Required.
	DatabaseURL string

	// APIBaseURL is the base URL of the settings HTTP service.
	APIBaseURL string

	// ModulesDir is the root directory module manifests are discovered under.
	ModulesDir string

	// EmbedDim is the fallback embedding dimension, used only when the
	// system settings fetch fails; after a successful fetch the orchestrator
	// uses system.ollama_embed_dim (default 4096) instead.
	EmbedDim int

	// BusHistoryMinutesDefault is the fallback replay lookback window, used
	// only when the system settings fetch fails; after a successful fetch the
	// orchestrator uses system.dashboard_bus_history_minutes (default 60).
	BusHistoryMinutesDefault int

	// LogLevel controls the minimum level written to stderr and the bus.
	LogLevel string

	// MetricsAddr is the listen address for the Prometheus /metrics endpoint.
	MetricsAddr string

	// ShutdownTimeout bounds how long the orchestrator waits for in-flight
	// handlers to finish during a clean shutdown.
	ShutdownTimeout time.Duration
}

// Load reads and validates configuration from the process environment.
// Missing required variables or malformed values are configuration errors
// and are fatal at boot.
func Load() (*Config, error) {
	cfg := &Config{
		NATSURL:                  os.Getenv("NATS_URL"),
		InternalToken:            os.Getenv("FEED_INTERNAL_TOKEN"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		APIBaseURL:               getenvDefault("FEED_API_BASE_URL", "http://localhost:4000"),
		ModulesDir:               getenvDefault("FEED_MODULES_DIR", "/app/modules"),
		LogLevel:                 getenvDefault("FEED_LOG_LEVEL", "info"),
		MetricsAddr:              getenvDefault("FEED_METRICS_ADDR", ":9090"),
		BusHistoryMinutesDefault: 60,
		ShutdownTimeout:          10 * time.Second,
	}

	embedDim := getenvDefault("OLLAMA_EMBED_DIM", "4096")
	dim, err := strconv.Atoi(embedDim)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_EMBED_DIM %q: %w", embedDim, err)
	}
	cfg.EmbedDim = dim

	if v := os.Getenv("FEED_BUS_HISTORY_MINUTES_DEFAULT"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_BUS_HISTORY_MINUTES_DEFAULT %q: %w", v, err)
		}
		cfg.BusHistoryMinutesDefault = m
	}

	if v := os.Getenv("FEED_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_SHUTDOWN_TIMEOUT %q: %w", v, err)
		}
		cfg.ShutdownTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if c.InternalToken == "" {
		return fmt.Errorf("FEED_INTERNAL_TOKEN is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("OLLAMA_EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
