// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package config provides layered configuration for Watchgate.
//
// Configuration is loaded through Koanf v2 from three layers with clear
// precedence: environment variables override the optional YAML config file,
// which overrides built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Watchgate server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Directory DirectoryConfig `koanf:"directory"`
	Resolver  ResolverConfig  `koanf:"resolver"`
	Mirror    MirrorConfig    `koanf:"mirror"`
	NATS      NATSConfig      `koanf:"nats"`
	Fanout    FanoutConfig    `koanf:"fanout"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Alerting  AlertingConfig  `koanf:"alerting"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" runs fully in-memory.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// DirectoryConfig holds settings for the upstream identifier directory
// service that maps external company/branch identifiers to internal UUIDs.
type DirectoryConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`

	// Circuit breaker settings (sony/gobreaker).
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	BreakerFailures    uint32        `koanf:"breaker_failures"`
}

// ResolverConfig holds identifier resolution cache settings.
type ResolverConfig struct {
	// CacheTTL bounds how long a resolved identifier mapping is served
	// without consulting the directory again.
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	// Coalesce collapses concurrent cache misses for the same identifier
	// into a single directory request.
	Coalesce bool `koanf:"coalesce"`
}

// MirrorConfig holds settings for the mirrored document store that serves
// branch hardware reads.
type MirrorConfig struct {
	// Backend selects the mirror store implementation: http, badger or memory.
	Backend string `koanf:"backend"`
	// Root is the top-level collection the per-branch document trees live under.
	Root    string        `koanf:"root"`
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// BadgerPath is the on-disk location for the embedded badger backend.
	BadgerPath string `koanf:"badger_path"`
}

// NATSConfig holds NATS / JetStream messaging settings.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`

	// Watermill router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// FanoutConfig holds realtime websocket fanout settings.
type FanoutConfig struct {
	// BranchPolicy decides what happens when a second socket claims a branch
	// already held by another connection: "last-wins" displaces the holder,
	// "reject" refuses the newcomer.
	BranchPolicy string        `koanf:"branch_policy"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PongTimeout  time.Duration `koanf:"pong_timeout"`
	// SendBuffer is the per-client outbound queue length. Clients that fall
	// this far behind are disconnected.
	SendBuffer int `koanf:"send_buffer"`
}

// ReconcileConfig holds delivery-log replay settings.
type ReconcileConfig struct {
	// Lookback bounds how far back the replay endpoint scans the delivery log.
	Lookback time.Duration `koanf:"lookback"`
}

// AlertingConfig holds analyst notification settings.
type AlertingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	WebhookURL string        `koanf:"webhook_url"`
	Timeout    time.Duration `koanf:"timeout"`
	// RatePerMinute caps outbound notifications (golang.org/x/time/rate).
	RatePerMinute int `koanf:"rate_per_minute"`
	QueueSize     int `koanf:"queue_size"`
}

// APIConfig holds HTTP API behavior settings.
type APIConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values. It is called automatically by LoadWithKoanf.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Resolver.CacheTTL <= 0 {
		return fmt.Errorf("resolver.cache_ttl must be positive, got %s", c.Resolver.CacheTTL)
	}

	switch c.Mirror.Backend {
	case "http":
		if c.Mirror.BaseURL == "" {
			return fmt.Errorf("mirror.base_url is required for the http backend")
		}
	case "badger":
		if c.Mirror.BadgerPath == "" {
			return fmt.Errorf("mirror.badger_path is required for the badger backend")
		}
	case "memory":
	default:
		return fmt.Errorf("mirror.backend must be http, badger or memory, got %q", c.Mirror.Backend)
	}
	if c.Mirror.Root == "" {
		return fmt.Errorf("mirror.root must not be empty")
	}

	switch c.Fanout.BranchPolicy {
	case "last-wins", "reject":
	default:
		return fmt.Errorf("fanout.branch_policy must be last-wins or reject, got %q", c.Fanout.BranchPolicy)
	}

	if c.Reconcile.Lookback <= 0 {
		return fmt.Errorf("reconcile.lookback must be positive, got %s", c.Reconcile.Lookback)
	}

	if c.Alerting.Enabled {
		if c.Alerting.WebhookURL == "" {
			return fmt.Errorf("alerting.webhook_url is required when alerting is enabled")
		}
		if !strings.HasPrefix(c.Alerting.WebhookURL, "http://") &&
			!strings.HasPrefix(c.Alerting.WebhookURL, "https://") {
			return fmt.Errorf("alerting.webhook_url must be an http(s) URL, got %q", c.Alerting.WebhookURL)
		}
	}

	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without the embedded server")
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the server runs in production mode.
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
