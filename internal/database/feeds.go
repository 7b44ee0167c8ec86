// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/metrics"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// feedSQL matches posts whose text contains any of the user's keywords,
// case-insensitively, newest first. The before bound makes pagination
// stable while new posts keep streaming in.
const feedSQL = `
SELECT p.id, p.did, p.text, p.created_at, p.reply_parent_uri, p.reply_root_uri
FROM posts p
WHERE p.created_at < ?
  AND EXISTS (
	SELECT 1 FROM user_keywords k
	WHERE k.user_id = ?
	  AND p.text ILIKE '%' || k.keyword || '%'
  )
ORDER BY p.created_at DESC
LIMIT ?
`

// GetFeed returns the keyword-matched feed for a user. A user with no
// keywords gets an empty feed, not an error.
func (db *DB) GetFeed(ctx context.Context, userID int64, before time.Time, limit int) (*models.Feed, error) {
	keywords, err := db.ListKeywords(ctx, userID)
	if err != nil {
		return nil, err
	}

	feed := &models.Feed{
		Feed:     []models.FeedPost{},
		Keywords: keywords,
	}
	if len(keywords) == 0 {
		return feed, nil
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, feedSQL, before, userID, limit)
	if err != nil {
		metrics.RecordDBError("select", "posts")
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         []byte
			post       models.FeedPost
			replyTo    sql.NullString
			threadRoot sql.NullString
		)
		if err := rows.Scan(&id, &post.Author, &post.Text, &post.CreatedAt, &replyTo, &threadRoot); err != nil {
			return nil, fmt.Errorf("failed to scan feed post: %w", err)
		}
		post.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse post id %q: %w", id, err)
		}
		if replyTo.Valid {
			post.ReplyTo = &replyTo.String
		}
		if threadRoot.Valid {
			post.ThreadRoot = &threadRoot.String
		}
		feed.Feed = append(feed.Feed, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed rows: %w", err)
	}

	metrics.RecordDBQuery("select", "posts", time.Since(start))
	return feed, nil
}
