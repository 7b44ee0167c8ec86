// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package jetstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
)

const (
	// handshakeTimeout bounds the websocket dial; reads are deliberately
	// unbounded because a stalled connection is only detected via the
	// upstream's own close signal.
	handshakeTimeout = 10 * time.Second

	// maxMessageSize caps a single firehose message. Jetstream posts are
	// small; anything larger is a protocol violation.
	maxMessageSize = 1 << 20 // 1 MB
)

// ErrDecode marks a message that could not be decoded as an Event. The
// caller drops the single message and keeps reading; it never tears down
// the connection.
var ErrDecode = errors.New("jetstream: undecodable message")

// Client dials the Jetstream firehose. It is cheap to construct and safe to
// reuse across reconnect attempts.
type Client struct {
	cfg    config.JetstreamConfig
	dialer *websocket.Dialer
}

// NewClient creates a firehose client for the configured endpoint.
func NewClient(cfg config.JetstreamConfig) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// SubscribeURL builds the subscription URL with the wantedCollections filter
// and, when resuming, the cursor parameter. An empty cursor subscribes from
// the head of the stream.
func (c *Client) SubscribeURL(cursor string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse jetstream url: %w", err)
	}

	q := u.Query()
	for _, col := range c.cfg.Collections {
		q.Add("wantedCollections", col)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Connect opens a subscription starting immediately after cursor (or at the
// stream head when cursor is empty). The returned Conn is closed when the
// context is canceled.
func (c *Client) Connect(ctx context.Context, cursor string) (*Conn, error) {
	subURL, err := c.SubscribeURL(cursor)
	if err != nil {
		return nil, err
	}

	ws, _, err := c.dialer.DialContext(ctx, subURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial jetstream: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	conn := &Conn{ws: ws, done: make(chan struct{})}

	// Unblock the read loop on cancellation. gorilla reads have no context
	// parameter, so closing the socket is the only interruption point.
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-conn.done:
		}
	}()

	return conn, nil
}

// Conn is one live firehose subscription.
type Conn struct {
	ws   *websocket.Conn
	done chan struct{}
}

// ReadEvent blocks until the next message arrives and decodes it.
//
// Returns ErrDecode (wrapped) for a message that is not valid JSON; the
// connection remains usable and the caller should continue reading. Any
// other error means the connection is gone and the caller should reconnect
// after the configured backoff.
func (c *Conn) ReadEvent() (*Event, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	ev, err := DecodeEvent(data)
	if err != nil {
		logging.Error().Err(err).Int("bytes", len(data)).Msg("Failed to decode firehose message")
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return ev, nil
}

// Close tears down the subscription.
func (c *Conn) Close() error {
	close(c.done)
	return c.ws.Close()
}
