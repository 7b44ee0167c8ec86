// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package ingest implements the firehose consumption pipeline: it reads
// Jetstream events, normalizes post records into flat rows, buffers them,
// and flushes batches to the database.
package ingest

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/jetstream"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
	"github.com/skyfeed-dev/skyfeed/internal/metrics"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// emptyRecord matches the payload Jetstream emits for account-state commits
// that carry no record body.
var emptyRecord = []byte("{}")

// Normalize flattens a commit's post record into a storable row.
//
// It returns (nil, false) when the record cannot or should not be stored:
// empty payloads, undecodable records, records whose derived text is empty,
// and records containing null bytes (DuckDB rejects \x00 in VARCHAR columns).
// Each rejection increments the matching drop counter; only the null-byte
// and decode cases are logged, the rest are routine.
func Normalize(did string, commit *jetstream.Commit, cursor string, now time.Time) (*models.Post, bool) {
	if len(commit.Record) == 0 || bytes.Equal(bytes.TrimSpace(commit.Record), emptyRecord) {
		logging.Info().
			Str("did", did).
			Str("rkey", commit.RKey).
			Msg("skipping commit with empty record")
		metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonEmptyRecord).Inc()
		return nil, false
	}

	record, err := jetstream.DecodePostRecord(commit.Record)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("did", did).
			Str("rkey", commit.RKey).
			Msg("skipping undecodable post record")
		metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonBadRecord).Inc()
		return nil, false
	}

	text := extractText(record)
	if strings.ContainsRune(text, '\x00') {
		logging.Warn().
			Str("did", did).
			Str("rkey", commit.RKey).
			Msg("skipping post containing null bytes")
		metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonNullByte).Inc()
		return nil, false
	}
	if text == "" {
		metrics.FirehoseEventsDropped.WithLabelValues(metrics.DropReasonNoText).Inc()
		return nil, false
	}

	post := &models.Post{
		ID:               uuid.New(),
		DID:              did,
		CommitRev:        commit.Rev,
		CommitOperation:  commit.Operation,
		CommitCollection: commit.Collection,
		CommitRKey:       commit.RKey,
		CommitCID:        commit.CID,
		CreatedAt:        parseCreatedAt(record.CreatedAt, now),
		Langs:            record.Langs,
		Text:             text,
		IngestTime:       now,
		Cursor:           cursor,
	}

	if record.Reply != nil {
		post.ReplyParentCID = nonEmpty(record.Reply.Parent.CID)
		post.ReplyParentURI = nonEmpty(record.Reply.Parent.URI)
		post.ReplyRootCID = nonEmpty(record.Reply.Root.CID)
		post.ReplyRootURI = nonEmpty(record.Reply.Root.URI)
	}

	return post, true
}

// extractText derives the searchable text of a post. Posts with no body text
// fall back to embed content so that link shares and image-only posts remain
// matchable by keyword: external description, then external title, then image
// alt texts joined with spaces, then video caption text.
func extractText(record *jetstream.PostRecord) string {
	if record.Text != "" {
		return record.Text
	}
	embed := record.Embed
	if embed == nil {
		return ""
	}
	if embed.External != nil {
		if embed.External.Description != "" {
			return embed.External.Description
		}
		if embed.External.Title != "" {
			return embed.External.Title
		}
	}
	if len(embed.Images) > 0 {
		alts := make([]string, 0, len(embed.Images))
		for _, img := range embed.Images {
			if img.Alt != "" {
				alts = append(alts, img.Alt)
			}
		}
		if len(alts) > 0 {
			return strings.Join(alts, " ")
		}
	}
	if embed.Video != nil && embed.Video.Text != "" {
		return embed.Video.Text
	}
	return ""
}

// parseCreatedAt parses the record's self-reported timestamp. Client clocks
// are unreliable; malformed or absent timestamps fall back to ingest time so
// the row still sorts sensibly in the feed.
func parseCreatedAt(value string, now time.Time) time.Time {
	if value == "" {
		return now
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return now
	}
	return ts.UTC()
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
