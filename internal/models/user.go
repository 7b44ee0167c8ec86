// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package models

import "time"

// User is a registered feed API user. The password is stored as a bcrypt
// hash; the plaintext never leaves the registration handler.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Keyword is a single feed filter term owned by a user.
type Keyword struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Keyword   string    `json:"keyword"`
	CreatedAt time.Time `json:"created_at"`
}
