// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package models defines data structures used throughout the Skyfeed
// application. These models represent normalized firehose posts, feed API
// users and keywords, and API responses.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is the canonical record persisted for every accepted firehose event.
//
// Identity semantics:
//   - ID: server-generated UUID, unique per ingestion of an event
//   - Commit five-tuple (Rev, Operation, Collection, RKey, CID) plus
//     CreatedAt: the storage-level uniqueness key; duplicate redeliveries of
//     the same commit upsert into the same row
//   - Cursor: the stream resumption token in effect when this record was
//     produced; the maximum persisted cursor is where ingestion resumes
//     after a restart
//
// A Post is never constructed with empty Text: events whose text cannot be
// extracted (or contains a null byte) are dropped before normalization
// completes.
type Post struct {
	ID  uuid.UUID `json:"id"`
	DID string    `json:"did"` // Author's decentralized identifier

	// Commit identity from the firehose event
	CommitRev        string `json:"commit_rev"`
	CommitOperation  string `json:"commit_operation"`
	CommitCollection string `json:"commit_collection"`
	CommitRKey       string `json:"commit_rkey"`
	CommitCID        string `json:"commit_cid"`

	// CreatedAt is the event-claimed creation timestamp. Some firehose
	// records carry obviously bogus values (unix epoch zero); missing or
	// unparseable values fall back to ingestion time during normalization.
	CreatedAt time.Time `json:"created_at"`

	// Langs is the ordered list of language tags set by the author's client.
	Langs []string `json:"langs,omitempty"`

	// Reply linkage, absent for top-level posts.
	ReplyParentCID *string `json:"reply_parent_cid,omitempty"`
	ReplyParentURI *string `json:"reply_parent_uri,omitempty"`
	ReplyRootCID   *string `json:"reply_root_cid,omitempty"`
	ReplyRootURI   *string `json:"reply_root_uri,omitempty"`

	// Text is the extracted display text (never empty for a stored post).
	Text string `json:"text"`

	// IngestTime is the wall-clock time this record was normalized.
	IngestTime time.Time `json:"ingest_time"`

	// Cursor is the stream resumption token (stringified time_us).
	Cursor string `json:"cursor"`
}

// FeedPost is a post entry in a keyword feed response.
type FeedPost struct {
	ID         uuid.UUID `json:"id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	ReplyTo    *string   `json:"reply_to,omitempty"`
	ThreadRoot *string   `json:"thread_root,omitempty"`
}

// Feed is the complete keyword feed response for a user.
type Feed struct {
	Feed     []FeedPost `json:"feed"`
	Keywords []string   `json:"keywords"`
}
