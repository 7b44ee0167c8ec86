// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/metrics"
)

// PendingPost is a post awaiting an embedding.
type PendingPost struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Text      string
}

// PostsWithoutEmbeddings returns up to limit posts that have no stored
// embedding yet, oldest first so the backfill drains in ingestion order.
func (db *DB) PostsWithoutEmbeddings(ctx context.Context, limit int) ([]PendingPost, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT p.id, p.created_at, p.text
		FROM posts p
		LEFT JOIN embeddings e
		  ON e.post_id = p.id AND e.post_created_at = p.created_at
		WHERE e.post_id IS NULL AND p.text <> ''
		ORDER BY p.created_at
		LIMIT ?`, limit)
	if err != nil {
		metrics.RecordDBError("select", "embeddings")
		return nil, fmt.Errorf("failed to query posts without embeddings: %w", err)
	}
	defer rows.Close()

	var pending []PendingPost
	for rows.Next() {
		var (
			id   []byte
			post PendingPost
		)
		if err := rows.Scan(&id, &post.CreatedAt, &post.Text); err != nil {
			return nil, fmt.Errorf("failed to scan pending post: %w", err)
		}
		post.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse post id %q: %w", id, err)
		}
		pending = append(pending, post)
	}
	return pending, rows.Err()
}

// InsertEmbedding stores a post's embedding vector. Re-inserting for the
// same post is a no-op, so a backfill batch can safely be retried.
//
// The vector is inlined as a list literal: the database/sql driver has no
// binding for DuckDB LIST values. The literal is built from floats only, so
// there is nothing to escape.
func (db *DB) InsertEmbedding(ctx context.Context, postID uuid.UUID, postCreatedAt time.Time, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("refusing to store empty embedding for post %s", postID)
	}

	start := time.Now()
	query := fmt.Sprintf(`
		INSERT INTO embeddings (post_id, post_created_at, embedding)
		VALUES (?, ?, %s)
		ON CONFLICT (post_id, post_created_at) DO NOTHING`, listLiteral(vector))

	if _, err := db.conn.ExecContext(ctx, query, postID.String(), postCreatedAt); err != nil {
		metrics.RecordDBError("insert", "embeddings")
		return fmt.Errorf("failed to insert embedding for post %s: %w", postID, err)
	}
	metrics.RecordDBQuery("insert", "embeddings", time.Since(start))
	return nil
}

// CountPendingEmbeddings reports the backfill backlog.
func (db *DB) CountPendingEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM posts p
		LEFT JOIN embeddings e
		  ON e.post_id = p.id AND e.post_created_at = p.created_at
		WHERE e.post_id IS NULL AND p.text <> ''`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending embeddings: %w", err)
	}
	return count, nil
}

func listLiteral(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteString("]::FLOAT[]")
	return sb.String()
}
