// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration loaded from environment variables
// and config files. Provides centralized configuration for the ingester,
// database, embedding worker, HTTP API, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
type Config struct {
	Jetstream JetstreamConfig `koanf:"jetstream"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Database  DatabaseConfig  `koanf:"database"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// JetstreamConfig holds the upstream firehose connection settings.
//
// Environment Variables:
//   - JETSTREAM_URL: Subscription endpoint (default: wss://jetstream2.us-east.bsky.network/subscribe)
//   - JETSTREAM_COLLECTIONS: Comma-separated wantedCollections filter
//   - JETSTREAM_RECONNECT_BACKOFF: Delay between reconnect attempts (default: 5s)
type JetstreamConfig struct {
	// URL is the Jetstream subscription endpoint (ws:// or wss:// scheme).
	URL string `koanf:"url"`

	// Collections is the list of record collections to subscribe to.
	Collections []string `koanf:"collections"`

	// ReconnectBackoff is the fixed delay between reconnect attempts.
	// The connector retries forever; there is no maximum retry count.
	ReconnectBackoff time.Duration `koanf:"reconnect_backoff"`
}

// IngestConfig holds buffering and flush settings for the ingestion loop.
//
// Environment Variables:
//   - INGEST_BATCH_SIZE: Records buffered before a size-triggered flush (default: 100)
//   - INGEST_FLUSH_INTERVAL: Maximum age of the buffer before a time-triggered
//     flush (default: 10s). Flush conditions are only evaluated when events
//     arrive; a silent stream can delay a time-based flush.
type IngestConfig struct {
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// DatabaseConfig holds DuckDB configuration.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: /data/skyfeed.duckdb)
//   - DUCKDB_MAX_MEMORY: Memory limit (default: 2GB)
//   - DUCKDB_THREADS: Worker threads, 0 = runtime.NumCPU() (default: 0)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// EmbeddingConfig holds the embedding backfill worker settings.
// The worker polls for posts without embeddings and fetches vectors from an
// external embedding HTTP service.
//
// Environment Variables:
//   - EMBEDDING_ENABLED: Enable the backfill worker (default: false)
//   - EMBEDDING_URL: Embedding service endpoint
//   - EMBEDDING_POLL_INTERVAL: Idle wait when no posts need embeddings (default: 10s)
//   - EMBEDDING_BATCH_SIZE: Posts fetched per backfill pass (default: 100)
//   - EMBEDDING_DIMENSIONS: Vector dimensionality (default: 384)
type EmbeddingConfig struct {
	Enabled           bool          `koanf:"enabled"`
	URL               string        `koanf:"url"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	BatchSize         int           `koanf:"batch_size"`
	Dimensions        int           `koanf:"dimensions"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// ServerConfig holds HTTP server configuration for the feed API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds pagination limits for feed responses.
type APIConfig struct {
	DefaultFeedLimit int `koanf:"default_feed_limit"`
	MaxFeedLimit     int `koanf:"max_feed_limit"`
}

// SecurityConfig holds authentication and rate limiting settings.
//
// Environment Variables:
//   - JWT_SECRET: 32+ character secret for token signing (required)
//   - SESSION_TIMEOUT: Token lifetime (default: 24h)
//   - RATE_LIMIT_REQS / RATE_LIMIT_WINDOW: General API rate limit
//   - CORS_ORIGINS: Comma-separated allowed origins
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for unrecoverable errors.
// Per the error handling design, a malformed configuration is the only
// condition that terminates the process at startup; everything downstream
// is retried or absorbed.
func (c *Config) Validate() error {
	if err := c.Jetstream.validate(); err != nil {
		return err
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.FlushInterval <= 0 {
		return fmt.Errorf("ingest.flush_interval must be positive, got %s", c.Ingest.FlushInterval)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.API.DefaultFeedLimit <= 0 || c.API.MaxFeedLimit < c.API.DefaultFeedLimit {
		return fmt.Errorf("api feed limits invalid: default=%d max=%d",
			c.API.DefaultFeedLimit, c.API.MaxFeedLimit)
	}
	if c.Embedding.Enabled {
		if err := validateHTTPURL("embedding.url", c.Embedding.URL); err != nil {
			return err
		}
		if c.Embedding.BatchSize <= 0 {
			return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
		}
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
		}
	}
	return nil
}

// validate checks the Jetstream section.
func (j *JetstreamConfig) validate() error {
	if j.URL == "" {
		return fmt.Errorf("jetstream.url is required")
	}
	u, err := url.Parse(j.URL)
	if err != nil {
		return fmt.Errorf("jetstream.url is malformed: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("jetstream.url must use ws:// or wss:// scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("jetstream.url is missing a host")
	}
	if len(j.Collections) == 0 {
		return fmt.Errorf("jetstream.collections must not be empty")
	}
	if j.ReconnectBackoff <= 0 {
		return fmt.Errorf("jetstream.reconnect_backoff must be positive, got %s", j.ReconnectBackoff)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is malformed: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http:// or https:// scheme, got %q", field, u.Scheme)
	}
	return nil
}
