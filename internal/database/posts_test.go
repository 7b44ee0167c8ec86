// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/models"
)

func TestLatestCursorEmptyTable(t *testing.T) {
	db := newTestDB(t)

	cursor, err := db.LatestCursor(context.Background())
	if err != nil {
		t.Fatalf("LatestCursor: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty for fresh database", cursor)
	}
}

func TestLatestCursorReturnsMax(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	posts := []*models.Post{
		samplePost("aaa", base),
		samplePost("bbb", base.Add(time.Minute)),
		samplePost("ccc", base.Add(2 * time.Minute)),
	}
	// Cursors arrive in stream order but MAX must win regardless.
	posts[0].Cursor = "1700000000000100"
	posts[1].Cursor = "1700000000000900"
	posts[2].Cursor = "1700000000000500"

	if err := db.StorePosts(ctx, posts); err != nil {
		t.Fatalf("StorePosts: %v", err)
	}

	cursor, err := db.LatestCursor(ctx)
	if err != nil {
		t.Fatalf("LatestCursor: %v", err)
	}
	if cursor != "1700000000000900" {
		t.Errorf("cursor = %q, want %q", cursor, "1700000000000900")
	}
}

func TestStorePostsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	post := samplePost("dup", base)
	if err := db.StorePosts(ctx, []*models.Post{post}); err != nil {
		t.Fatalf("first store: %v", err)
	}

	// Replay of the same commit after a cursor resume: same identity key,
	// fresh row id.
	replay := samplePost("dup", base)
	replay.ID = uuid.New()
	replay.Text = "mutated on replay"
	if err := db.StorePosts(ctx, []*models.Post{replay}); err != nil {
		t.Fatalf("replay store: %v", err)
	}

	count, err := db.CountPosts(ctx)
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if count != 1 {
		t.Fatalf("post count = %d, want 1 after duplicate delivery", count)
	}

	// The stored row must keep its original values: the replayed row's
	// created_at is not newer, so the update guard leaves it alone.
	var text string
	err = db.conn.QueryRowContext(ctx,
		`SELECT text FROM posts WHERE commit_rkey = ?`, "dup").Scan(&text)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if text != "post dup" {
		t.Errorf("text = %q, want original %q", text, "post dup")
	}
}

func TestStorePostsDistinctKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same rkey at a different created_at is a different key: the
	// uniqueness constraint spans all six identity columns.
	first := samplePost("same", base)
	second := samplePost("same", base.Add(time.Hour))

	if err := db.StorePosts(ctx, []*models.Post{first, second}); err != nil {
		t.Fatalf("StorePosts: %v", err)
	}

	count, err := db.CountPosts(ctx)
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if count != 2 {
		t.Errorf("post count = %d, want 2", count)
	}
}

func TestStorePostsEmptyBatch(t *testing.T) {
	db := newTestDB(t)
	if err := db.StorePosts(context.Background(), nil); err != nil {
		t.Errorf("empty batch must be a no-op, got %v", err)
	}
}

func TestStorePostsLangsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	post := samplePost("tagged", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	post.Langs = []string{"en", "pt-BR"}
	if err := db.StorePosts(ctx, []*models.Post{post}); err != nil {
		t.Fatalf("StorePosts: %v", err)
	}

	var langs sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT langs FROM posts WHERE commit_rkey = ?`, "tagged").Scan(&langs)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	got := splitLangs(langs)
	if len(got) != 2 || got[0] != "en" || got[1] != "pt-BR" {
		t.Errorf("langs = %v, want [en pt-BR]", got)
	}
}

func TestStorePostsNilReplyRefs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	post := samplePost("plain", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	post.Langs = nil
	if err := db.StorePosts(ctx, []*models.Post{post}); err != nil {
		t.Fatalf("StorePosts: %v", err)
	}

	var langs, parentURI any
	err := db.conn.QueryRowContext(ctx,
		`SELECT langs, reply_parent_uri FROM posts WHERE commit_rkey = ?`, "plain").
		Scan(&langs, &parentURI)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if langs != nil || parentURI != nil {
		t.Errorf("langs = %v, reply_parent_uri = %v, want NULLs", langs, parentURI)
	}
}
