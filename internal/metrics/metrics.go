// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package metrics provides Prometheus instrumentation for production
// observability of the ingestion pipeline, the persistence layer, the
// embedding backfill worker, and the feed API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded on EventsDropped.
const (
	DropReasonDecode      = "decode"
	DropReasonNoCursor    = "no_cursor"
	DropReasonEmptyRecord = "empty_record"
	DropReasonBadRecord   = "bad_record"
	DropReasonNullByte    = "null_byte"
	DropReasonNoText      = "no_text"
)

var (
	// Firehose Metrics
	FirehoseEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firehose_events_received_total",
			Help: "Total number of firehose events received, by event kind",
		},
		[]string{"kind"},
	)

	FirehoseEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firehose_events_dropped_total",
			Help: "Total number of firehose events dropped before persistence",
		},
		[]string{"reason"},
	)

	FirehosePostsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firehose_posts_accepted_total",
			Help: "Total number of posts normalized and buffered for persistence",
		},
	)

	FirehoseReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firehose_reconnects_total",
			Help: "Total number of firehose reconnect attempts",
		},
	)

	// Flush / Persistence Metrics
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_duration_seconds",
			Help:    "Duration of buffer flushes to DuckDB in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_batch_size",
			Help:    "Number of posts per flushed batch",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	FlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_flush_failures_total",
			Help: "Total number of failed flush attempts",
		},
	)

	PostsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_upserted_total",
			Help: "Total number of post rows written by the persistence sink",
		},
	)

	PostsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_skipped_total",
			Help: "Total number of posts skipped during persistence due to per-record errors",
		},
	)

	// Embedding Worker Metrics
	EmbeddingsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embeddings_generated_total",
			Help: "Total number of embeddings backfilled",
		},
	)

	EmbeddingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_failures_total",
			Help: "Total number of embedding generation failures",
		},
		[]string{"error_type"}, // "provider", "database", "empty_text"
	)

	EmbeddingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_batch_duration_seconds",
			Help:    "Duration of one embedding backfill pass in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)

// RecordAPIRequest records a completed API request with its status code.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database query error.
func RecordDBError(operation, table string) {
	DBQueryErrors.WithLabelValues(operation, table).Inc()
}
