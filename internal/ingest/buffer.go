// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package ingest

import (
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// Buffer accumulates normalized posts between flushes. It is not
// goroutine-safe: the ingestion loop is single-threaded and the buffer is
// only ever touched from it.
//
// Flush conditions are evaluated by the caller on event arrival, not by a
// background timer. A silent stream therefore holds its buffered posts until
// the next event lands; the posts are never lost, only delayed.
type Buffer struct {
	posts     []*models.Post
	batchSize int
	maxAge    time.Duration
	lastFlush time.Time
}

// NewBuffer returns an empty buffer. The age clock starts at now so a
// freshly started ingester does not immediately report a time-based flush.
func NewBuffer(batchSize int, maxAge time.Duration, now time.Time) *Buffer {
	return &Buffer{
		posts:     make([]*models.Post, 0, batchSize),
		batchSize: batchSize,
		maxAge:    maxAge,
		lastFlush: now,
	}
}

// Add appends a post to the buffer.
func (b *Buffer) Add(post *models.Post) {
	b.posts = append(b.posts, post)
}

// Len reports the number of buffered posts.
func (b *Buffer) Len() int {
	return len(b.posts)
}

// ShouldFlush reports whether either flush condition holds: the buffer has
// reached the batch size, or it is non-empty and older than the flush
// interval. An empty buffer never flushes regardless of age.
func (b *Buffer) ShouldFlush(now time.Time) bool {
	if len(b.posts) == 0 {
		return false
	}
	if len(b.posts) >= b.batchSize {
		return true
	}
	return now.Sub(b.lastFlush) >= b.maxAge
}

// Batch returns the buffered posts without clearing them. The caller clears
// with Reset only after the batch has been durably stored, so a failed flush
// keeps the posts for the next attempt.
func (b *Buffer) Batch() []*models.Post {
	return b.posts
}

// Reset discards the buffered posts and restarts the age clock.
func (b *Buffer) Reset(now time.Time) {
	b.posts = b.posts[:0]
	b.lastFlush = now
}
