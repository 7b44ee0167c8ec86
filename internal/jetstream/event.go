// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package jetstream implements the connection to the Bluesky Jetstream
// firehose: the wire-level event model and a websocket client that yields a
// lazy, infinite, resumable sequence of events.
//
// Jetstream delivers newline-delimited JSON messages over a long-lived
// websocket. Each message is one Event; commit events additionally carry the
// record payload of the changed repository entry. The client never gives up
// on connectivity failures: it redials forever with a fixed backoff, and a
// single undecodable message is dropped without tearing down the connection.
package jetstream

import (
	"github.com/goccy/go-json"
)

// Event kinds emitted by Jetstream. Only commit events carry records;
// account and identity events are passed through and ignored upstream.
const (
	KindCommit   = "commit"
	KindAccount  = "account"
	KindIdentity = "identity"
)

// Commit operations. Ingestion is only interested in creates.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// Event is one decoded Jetstream message.
//
// TimeUS doubles as the stream cursor: it is microseconds since the unix
// epoch, monotonically increasing in practice, and can be passed back as the
// cursor query parameter to resume the subscription after that point.
type Event struct {
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Kind   string  `json:"kind"`
	Commit *Commit `json:"commit,omitempty"`
}

// Commit is the repo-commit portion of a commit event. Record is kept raw at
// this layer; the normalizer decodes it into a typed PostRecord so that
// every optional-field access is total over present-vs-absent.
type Commit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	CID        string          `json:"cid"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// PostRecord is the typed shape of an app.bsky.feed.post record. All fields
// are optional on the wire; absent fields decode to zero values.
type PostRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	Embed     *Embed    `json:"embed,omitempty"`
}

// ReplyRef links a reply to its parent and the root of the thread.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// StrongRef is a reference to a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Embed is a structured attachment on a post. Exactly one of the sub-embeds
// is populated depending on the $type; absent ones are nil, so fallback text
// extraction can probe each in order without dynamic lookups.
type Embed struct {
	Type     string          `json:"$type"`
	External *ExternalEmbed  `json:"external,omitempty"`
	Images   []ImageEmbed    `json:"images,omitempty"`
	Video    *VideoEmbed     `json:"video,omitempty"`
	Record   json.RawMessage `json:"record,omitempty"` // quote embeds, unused
}

// ExternalEmbed is an external-link card. Description is usually more
// detailed than Title; both may be present.
type ExternalEmbed struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ImageEmbed carries the author-provided alt text for one attached image.
type ImageEmbed struct {
	Alt string `json:"alt"`
}

// VideoEmbed carries the caption text for an attached video.
type VideoEmbed struct {
	Text string `json:"text"`
	Alt  string `json:"alt"`
}

// DecodeEvent decodes one raw Jetstream message.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodePostRecord decodes a commit's raw record payload into a typed
// PostRecord. Malformed optional sub-fields degrade to absent values rather
// than failing the whole record.
func DecodePostRecord(raw json.RawMessage) (*PostRecord, error) {
	var rec PostRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
