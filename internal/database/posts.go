// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/logging"
	"github.com/skyfeed-dev/skyfeed/internal/metrics"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// upsertPostSQL inserts a post or, when the full commit identity collides
// with a stored row, updates it only if the incoming created_at is newer.
// Replayed events after a cursor resume hit the conflict branch and the
// guard leaves the stored row untouched.
const upsertPostSQL = `
INSERT INTO posts (
	id, did, commit_rev, commit_operation, commit_collection, commit_rkey, commit_cid,
	created_at, langs, reply_parent_cid, reply_parent_uri, reply_root_cid, reply_root_uri,
	text, ingest_time, cursor
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (created_at, commit_rev, commit_operation, commit_collection, commit_rkey, commit_cid)
DO UPDATE SET
	did = excluded.did,
	langs = excluded.langs,
	reply_parent_cid = excluded.reply_parent_cid,
	reply_parent_uri = excluded.reply_parent_uri,
	reply_root_cid = excluded.reply_root_cid,
	reply_root_uri = excluded.reply_root_uri,
	text = excluded.text,
	ingest_time = excluded.ingest_time,
	cursor = excluded.cursor
WHERE posts.created_at < excluded.created_at
`

// LatestCursor returns the cursor of the newest stored post, or "" when the
// table is empty. The ingester resumes the firehose subscription from it.
func (db *DB) LatestCursor(ctx context.Context) (string, error) {
	start := time.Now()
	var cursor sql.NullInt64
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(CAST(cursor AS BIGINT)) FROM posts WHERE cursor IS NOT NULL`).Scan(&cursor)
	if err != nil {
		metrics.RecordDBError("select", "posts")
		return "", fmt.Errorf("failed to query latest cursor: %w", err)
	}
	metrics.RecordDBQuery("select", "posts", time.Since(start))

	if !cursor.Valid {
		return "", nil
	}
	return strconv.FormatInt(cursor.Int64, 10), nil
}

// StorePosts upserts a batch in a single transaction. If the batch fails it
// falls back to storing each post in its own transaction, so one poisoned
// record cannot block the rest of the batch. An error is returned only when
// nothing could be stored at all; the caller treats that as a flush failure
// and retries the whole batch after reconnecting.
func (db *DB) StorePosts(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	start := time.Now()
	if err := db.storeBatch(ctx, posts); err != nil {
		logging.Warn().Err(err).Int("posts", len(posts)).
			Msg("batch upsert failed, retrying posts individually")
		return db.storeIndividually(ctx, posts)
	}

	metrics.RecordDBQuery("upsert", "posts", time.Since(start))
	metrics.PostsUpserted.Add(float64(len(posts)))
	return nil
}

func (db *DB) storeBatch(ctx context.Context, posts []*models.Post) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertPostSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, post := range posts {
		if _, err := stmt.ExecContext(ctx, upsertArgs(post)...); err != nil {
			return fmt.Errorf("failed to upsert post %s: %w", post.ID, err)
		}
	}
	return tx.Commit()
}

// storeIndividually is the batch-failure fallback. Posts that fail on their
// own are logged and dropped; losing one record beats wedging the pipeline.
func (db *DB) storeIndividually(ctx context.Context, posts []*models.Post) error {
	var stored int
	var lastErr error

	for _, post := range posts {
		if err := db.storeOne(ctx, post); err != nil {
			lastErr = err
			logging.Error().Err(err).
				Str("post_id", post.ID.String()).
				Str("did", post.DID).
				Str("rkey", post.CommitRKey).
				Msg("dropping post that cannot be stored")
			metrics.PostsSkipped.Inc()
			continue
		}
		stored++
	}

	metrics.PostsUpserted.Add(float64(stored))
	if stored == 0 && lastErr != nil {
		return fmt.Errorf("failed to store any post of the batch: %w", lastErr)
	}
	return nil
}

func (db *DB) storeOne(ctx context.Context, post *models.Post) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertPostSQL, upsertArgs(post)...); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertArgs(post *models.Post) []any {
	return []any{
		post.ID.String(),
		post.DID,
		post.CommitRev,
		post.CommitOperation,
		post.CommitCollection,
		post.CommitRKey,
		post.CommitCID,
		post.CreatedAt,
		joinLangs(post.Langs),
		post.ReplyParentCID,
		post.ReplyParentURI,
		post.ReplyRootCID,
		post.ReplyRootURI,
		post.Text,
		post.IngestTime,
		post.Cursor,
	}
}

// Language tags are stored comma-joined; BCP 47 tags never contain commas.
func joinLangs(langs []string) any {
	if len(langs) == 0 {
		return nil
	}
	return strings.Join(langs, ",")
}

func splitLangs(langs sql.NullString) []string {
	if !langs.Valid || langs.String == "" {
		return nil
	}
	return strings.Split(langs.String, ",")
}

// CountPosts returns the number of stored posts. Used by the readiness
// endpoint to report ingestion progress.
func (db *DB) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}
