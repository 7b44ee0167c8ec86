// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/metrics"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// CreateUser registers an account. Emails are stored lowercased so logins
// are case-insensitive. Returns ErrDuplicateEmail when the email is taken.
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	start := time.Now()
	user := &models.User{Email: strings.ToLower(email)}

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?) RETURNING id, created_at`,
		user.Email, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicateEmail
		}
		metrics.RecordDBError("insert", "users")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.PasswordHash = passwordHash
	metrics.RecordDBQuery("insert", "users", time.Since(start))
	return user, nil
}

// GetUserByEmail returns the account for email, or ErrNotFound.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(email)).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "users")
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserByID returns the account for id, or ErrNotFound.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "users")
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ReplaceKeywords swaps a user's keyword list atomically. The API semantics
// are PUT-like: the submitted list fully replaces the stored one.
func (db *DB) ReplaceKeywords(ctx context.Context, userID int64, keywords []string) error {
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_keywords WHERE user_id = ?`, userID); err != nil {
		metrics.RecordDBError("delete", "user_keywords")
		return fmt.Errorf("failed to clear keywords: %w", err)
	}

	for _, keyword := range keywords {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_keywords (user_id, keyword) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			userID, keyword)
		if err != nil {
			metrics.RecordDBError("insert", "user_keywords")
			return fmt.Errorf("failed to insert keyword %q: %w", keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit keyword update: %w", err)
	}
	metrics.RecordDBQuery("replace", "user_keywords", time.Since(start))
	return nil
}

// ListKeywords returns a user's keywords in insertion order.
func (db *DB) ListKeywords(ctx context.Context, userID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT keyword FROM user_keywords WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		metrics.RecordDBError("select", "user_keywords")
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, keyword)
	}
	return keywords, rows.Err()
}
