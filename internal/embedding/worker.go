// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package embedding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/database"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
	"github.com/skyfeed-dev/skyfeed/internal/metrics"
)

// errorBackoff is the wait after a failed backfill pass before retrying.
const errorBackoff = 5 * time.Second

// Store is the persistence surface the worker needs.
type Store interface {
	PostsWithoutEmbeddings(ctx context.Context, limit int) ([]database.PendingPost, error)
	InsertEmbedding(ctx context.Context, postID uuid.UUID, postCreatedAt time.Time, vector []float32) error
}

// Worker backfills embeddings for posts that have none. It polls the
// database rather than tapping the ingest path, so it lags ingestion
// gracefully and catches up after downtime without coordination.
type Worker struct {
	store        Store
	provider     Provider
	batchSize    int
	pollInterval time.Duration
}

// NewWorker wires a store and a provider into a backfill worker.
func NewWorker(store Store, provider Provider, cfg config.EmbeddingConfig) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Worker{
		store:        store,
		provider:     provider,
		batchSize:    cfg.BatchSize,
		pollInterval: pollInterval,
	}
}

// String names the service in supervisor logs.
func (w *Worker) String() string {
	return "embedding-worker"
}

// Serve runs backfill passes until ctx is cancelled. An empty pass means
// the backlog is drained and the worker idles for the poll interval; a
// failed pass backs off briefly and retries.
func (w *Worker) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := w.runPass(ctx)
		switch {
		case err != nil:
			logging.Error().Err(err).Msg("embedding backfill pass failed")
			if err := sleepCtx(ctx, errorBackoff); err != nil {
				return err
			}
		case processed == 0:
			if err := sleepCtx(ctx, w.pollInterval); err != nil {
				return err
			}
		}
		// A full pass loops immediately; the backlog is still draining.
	}
}

// runPass embeds one batch of pending posts. Returns how many posts got an
// embedding stored.
func (w *Worker) runPass(ctx context.Context) (int, error) {
	pending, err := w.store.PostsWithoutEmbeddings(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	start := time.Now()
	texts := make([]string, len(pending))
	for i, post := range pending {
		texts[i] = post.Text
	}

	vectors, err := w.provider.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	stored := 0
	for i, post := range pending {
		if err := w.store.InsertEmbedding(ctx, post.ID, post.CreatedAt, vectors[i]); err != nil {
			logging.Error().Err(err).
				Str("post_id", post.ID.String()).
				Msg("failed to store embedding")
			metrics.EmbeddingFailures.WithLabelValues("storage").Inc()
			continue
		}
		stored++
	}

	metrics.EmbeddingsGenerated.Add(float64(stored))
	metrics.EmbeddingBatchDuration.Observe(time.Since(start).Seconds())
	logging.Debug().Int("posts", stored).Dur("took", time.Since(start)).
		Msg("embedding backfill pass complete")
	return stored, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
