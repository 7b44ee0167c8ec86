// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "500MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func samplePost(rkey string, createdAt time.Time) *models.Post {
	return &models.Post{
		ID:               uuid.New(),
		DID:              "did:plc:sample",
		CommitRev:        "3krev",
		CommitOperation:  "create",
		CommitCollection: "app.bsky.feed.post",
		CommitRKey:       rkey,
		CommitCID:        "bafy" + rkey,
		CreatedAt:        createdAt,
		Langs:            []string{"en"},
		Text:             "post " + rkey,
		IngestTime:       createdAt.Add(time.Second),
		Cursor:           "1000",
	}
}

func TestNewCreatesDataDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.duckdb")
	db, err := New(config.DatabaseConfig{Path: path, MaxMemory: "500MB", Threads: 1})
	if err != nil {
		t.Fatalf("New with missing parent directory: %v", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.createSchema(ctx); err != nil {
		t.Fatalf("re-running createSchema: %v", err)
	}
}

func TestMigrationsRecorded(t *testing.T) {
	db := newTestDB(t)

	version, err := db.GetCurrentSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("fresh database schema version = %d, want 0", version)
	}
}
