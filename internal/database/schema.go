// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"fmt"
)

// The posts uniqueness key spans every commit identity column plus
// created_at. Jetstream replays events after a cursor resume; two deliveries
// of the same commit collide on this key and the upsert absorbs the
// duplicate.
const postsTable = `
CREATE TABLE IF NOT EXISTS posts (
	id UUID NOT NULL,
	did VARCHAR NOT NULL,
	commit_rev VARCHAR NOT NULL,
	commit_operation VARCHAR NOT NULL,
	commit_collection VARCHAR NOT NULL,
	commit_rkey VARCHAR NOT NULL,
	commit_cid VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	langs VARCHAR,
	reply_parent_cid VARCHAR,
	reply_parent_uri VARCHAR,
	reply_root_cid VARCHAR,
	reply_root_uri VARCHAR,
	text VARCHAR NOT NULL,
	ingest_time TIMESTAMPTZ NOT NULL,
	cursor VARCHAR,
	UNIQUE (created_at, commit_rev, commit_operation, commit_collection, commit_rkey, commit_cid)
);
`

const postsCreatedAtIndex = `
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at);
`

const usersTable = `
CREATE SEQUENCE IF NOT EXISTS users_id_seq;
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
	email VARCHAR NOT NULL UNIQUE,
	password_hash VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const userKeywordsTable = `
CREATE SEQUENCE IF NOT EXISTS user_keywords_id_seq;
CREATE TABLE IF NOT EXISTS user_keywords (
	id BIGINT PRIMARY KEY DEFAULT nextval('user_keywords_id_seq'),
	user_id BIGINT NOT NULL,
	keyword VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, keyword)
);
CREATE INDEX IF NOT EXISTS idx_user_keywords_user_id ON user_keywords (user_id);
`

// Embeddings reference posts by (post_id, post_created_at) rather than a
// foreign key: DuckDB foreign keys would block the post upsert path.
const embeddingsTable = `
CREATE TABLE IF NOT EXISTS embeddings (
	post_id UUID NOT NULL,
	post_created_at TIMESTAMPTZ NOT NULL,
	embedding FLOAT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (post_id, post_created_at)
);
`

// createSchema creates all tables and indexes. Every statement is
// idempotent, so re-running at each startup is safe.
func (db *DB) createSchema(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"posts", postsTable},
		{"posts created_at index", postsCreatedAtIndex},
		{"users", usersTable},
		{"user_keywords", userKeywordsTable},
		{"embeddings", embeddingsTable},
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}
