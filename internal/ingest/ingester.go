// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/jetstream"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
	"github.com/skyfeed-dev/skyfeed/internal/metrics"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// Store is the persistence surface the ingester needs: the resumption cursor
// of the newest stored post, and batched idempotent writes.
type Store interface {
	LatestCursor(ctx context.Context) (string, error)
	StorePosts(ctx context.Context, posts []*models.Post) error
}

// eventSource is a live subscription yielding decoded Jetstream events.
// *jetstream.Conn satisfies it.
type eventSource interface {
	ReadEvent() (*jetstream.Event, error)
	Close() error
}

// dialFunc opens a subscription resuming from cursor (empty means live tail).
type dialFunc func(ctx context.Context, cursor string) (eventSource, error)

// Ingester runs the firehose consumption loop as a suture service. A single
// goroutine owns the cursor and the buffer; reconnects reuse both, so posts
// buffered before a disconnect survive into the next connection and are
// flushed from there.
type Ingester struct {
	dial      dialFunc
	store     Store
	batchSize int
	maxAge    time.Duration
	backoff   time.Duration
	now       func() time.Time

	// Mutated only from Serve's goroutine.
	cursor string
	buffer *Buffer
}

// NewIngester wires a Jetstream client and a store into an ingester.
func NewIngester(client *jetstream.Client, store Store, ingestCfg config.IngestConfig, jsCfg config.JetstreamConfig) *Ingester {
	return &Ingester{
		dial: func(ctx context.Context, cursor string) (eventSource, error) {
			return client.Connect(ctx, cursor)
		},
		store:     store,
		batchSize: ingestCfg.BatchSize,
		maxAge:    ingestCfg.FlushInterval,
		backoff:   jsCfg.ReconnectBackoff,
		now:       time.Now,
	}
}

// String names the service in supervisor logs.
func (s *Ingester) String() string {
	return "jetstream-ingester"
}

// Serve consumes the firehose until ctx is cancelled. Connection failures,
// read errors, and flush failures all funnel into the same recovery path:
// drop the connection, wait the fixed backoff, redial from the current
// cursor. There is no retry cap; the stream is expected to come back.
func (s *Ingester) Serve(ctx context.Context) error {
	cursor, err := s.store.LatestCursor(ctx)
	if err != nil {
		return err
	}
	s.cursor = cursor
	s.buffer = NewBuffer(s.batchSize, s.maxAge, s.now())

	if cursor != "" {
		logging.Info().Str("cursor", cursor).Msg("resuming firehose from stored cursor")
	} else {
		logging.Info().Msg("no stored cursor, starting firehose from live tail")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.dial(ctx, s.cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Error().Err(err).Dur("backoff", s.backoff).Msg("firehose connection failed")
			metrics.FirehoseReconnects.Inc()
			if err := sleepCtx(ctx, s.backoff); err != nil {
				return err
			}
			continue
		}

		err = s.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logging.Error().Err(err).Dur("backoff", s.backoff).
			Int("buffered", s.buffer.Len()).
			Msg("firehose connection lost, reconnecting")
		metrics.FirehoseReconnects.Inc()
		if err := sleepCtx(ctx, s.backoff); err != nil {
			return err
		}
	}
}

// consume reads events until the connection dies or a flush fails. Decode
// errors are dropped in place; the connection itself is still good.
func (s *Ingester) consume(ctx context.Context, conn eventSource) error {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			if errors.Is(err, jetstream.ErrDecode) {
				metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonDecode).Inc()
				continue
			}
			return err
		}

		s.processEvent(event)

		if s.buffer.ShouldFlush(s.now()) {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// processEvent advances the cursor and buffers the event's post if it is a
// storable record creation. The cursor moves for every event carrying a
// time_us, including kinds we do not store; on resume the server replays
// from the cursor, and the idempotent upsert absorbs the overlap.
func (s *Ingester) processEvent(event *jetstream.Event) {
	metrics.FirehoseEventsReceived.WithLabelValues(event.Kind).Inc()

	if event.TimeUS == 0 {
		logging.Warn().Str("kind", event.Kind).Str("did", event.DID).
			Msg("event missing time_us, cannot advance cursor")
		metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonNoCursor).Inc()
		return
	}
	s.cursor = strconv.FormatInt(event.TimeUS, 10)

	if event.Kind != jetstream.KindCommit || event.Commit == nil {
		return
	}
	if event.Commit.Operation != jetstream.OperationCreate {
		return
	}

	post, ok := Normalize(event.DID, event.Commit, s.cursor, s.now())
	if !ok {
		return
	}
	s.buffer.Add(post)
	metrics.FirehosePostsAccepted.Inc()
}

// flush stores the buffered batch. The buffer is cleared only on success; a
// failed flush keeps the posts and surfaces the error to the reconnect path.
func (s *Ingester) flush(ctx context.Context) error {
	batch := s.buffer.Batch()
	start := s.now()

	if err := s.store.StorePosts(ctx, batch); err != nil {
		metrics.FlushFailures.Inc()
		return err
	}

	elapsed := s.now().Sub(start)
	metrics.FlushDuration.Observe(elapsed.Seconds())
	metrics.FlushBatchSize.Observe(float64(len(batch)))
	logging.Debug().Int("posts", len(batch)).Dur("took", elapsed).Msg("flushed post batch")

	s.buffer.Reset(s.now())
	return nil
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
