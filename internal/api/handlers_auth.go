// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"errors"
	"net/http"

	"github.com/skyfeed-dev/skyfeed/internal/auth"
	"github.com/skyfeed-dev/skyfeed/internal/database"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
)

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Register creates an account.
//
// POST /api/v1/auth/register
func (router *Router) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logging.Error().Err(err).Msg("password hashing failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to register", nil)
		return
	}

	user, err := router.store.CreateUser(r.Context(), req.Email, hash)
	if errors.Is(err, database.ErrDuplicateEmail) {
		respondError(w, http.StatusConflict, "DUPLICATE_EMAIL", "email already registered", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("user creation failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to register", nil)
		return
	}

	ctxLogger := logging.Ctx(r.Context())
	ctxLogger.Info().Int64("user_id", user.ID).Msg("user registered")
	respondJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(httpTimeFormat),
	})
}

// Token exchanges credentials for a bearer token.
//
// POST /api/v1/auth/token
func (router *Router) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := router.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, database.ErrNotFound) {
		// Burn a comparison anyway so unknown emails cost the same as
		// wrong passwords.
		_ = auth.VerifyPassword(dummyBcryptHash, req.Password)
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("user lookup failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to authenticate", nil)
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
		return
	}

	token, err := router.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		logging.Error().Err(err).Msg("token generation failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to authenticate", nil)
		return
	}

	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(router.cfg.Security.SessionTimeout.Seconds()),
	})
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"

// dummyBcryptHash is a valid cost-12 hash of a random string, used to keep
// login timing uniform for unknown emails.
const dummyBcryptHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"
