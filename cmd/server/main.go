// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package main is the entry point for the Skyfeed server.
//
// Skyfeed ingests the Bluesky firehose via a Jetstream websocket subscription,
// normalizes post records into DuckDB, and serves keyword-filtered feeds over
// a REST API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables over config file over defaults (Koanf v2)
//  2. Database: DuckDB with versioned schema migrations
//  3. Authentication: JWT manager for API tokens
//  4. Ingester: Jetstream websocket consumer with cursor-based resumption
//  5. Embedding worker (optional): backfills post embeddings via an HTTP service
//  6. HTTP server: feed API, health, and Prometheus metrics endpoints
//
// All long-running components run under a suture supervisor tree; crashes are
// logged and the failed service restarted with backoff.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest wins):
//   - Environment variables (JETSTREAM_URL, DUCKDB_PATH, JWT_SECRET, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// JWT authentication requires a 32+ character JWT_SECRET.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the ingester
// flushes and records its cursor, the HTTP server drains in-flight requests
// (10s timeout), and the database runs a final CHECKPOINT on close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/api"
	"github.com/skyfeed-dev/skyfeed/internal/auth"
	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/database"
	"github.com/skyfeed-dev/skyfeed/internal/embedding"
	"github.com/skyfeed-dev/skyfeed/internal/ingest"
	"github.com/skyfeed-dev/skyfeed/internal/jetstream"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
	"github.com/skyfeed-dev/skyfeed/internal/supervisor"
	"github.com/skyfeed-dev/skyfeed/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, use the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("jetstream_url", cfg.Jetstream.URL).
		Strs("collections", cfg.Jetstream.Collections).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Skyfeed")

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	jwtManager, err := auth.NewJWTManager(cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED; do not run like this in production")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Ingest layer: the Jetstream consumer.
	client := jetstream.NewClient(cfg.Jetstream)
	ingester := ingest.NewIngester(client, db, cfg.Ingest, cfg.Jetstream)
	tree.AddIngestService(ingester)
	logging.Info().
		Int("batch_size", cfg.Ingest.BatchSize).
		Dur("flush_interval", cfg.Ingest.FlushInterval).
		Msg("Jetstream ingester added to supervisor tree")

	// Worker layer: embedding backfill, if an embedding service is configured.
	if cfg.Embedding.Enabled {
		provider := embedding.NewHTTPProvider(cfg.Embedding)
		worker := embedding.NewWorker(db, provider, cfg.Embedding)
		tree.AddWorkerService(worker)
		logging.Info().
			Str("url", cfg.Embedding.URL).
			Int("batch_size", cfg.Embedding.BatchSize).
			Msg("Embedding worker added to supervisor tree")
	} else {
		logging.Info().Msg("Embedding worker disabled")
	}

	// API layer.
	router := api.NewRouter(db, jwtManager, cfg)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Skyfeed stopped gracefully")
}
