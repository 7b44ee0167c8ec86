// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skyfeed-dev/skyfeed/internal/auth"
	"github.com/skyfeed-dev/skyfeed/internal/logging"
)

type keywordsResponse struct {
	Keywords []string `json:"keywords"`
}

// GetKeywords returns the authenticated user's keyword list.
//
// GET /api/v1/keywords
func (router *Router) GetKeywords(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authentication", nil)
		return
	}

	keywords, err := router.store.ListKeywords(r.Context(), claims.UserID)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", claims.UserID).Msg("keyword listing failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list keywords", nil)
		return
	}
	if keywords == nil {
		keywords = []string{}
	}
	respondJSON(w, http.StatusOK, keywordsResponse{Keywords: keywords})
}

// SetKeywords replaces the authenticated user's keyword list. The submitted
// list is total: keywords absent from it are removed.
//
// POST /api/v1/keywords
func (router *Router) SetKeywords(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authentication", nil)
		return
	}

	var req keywordsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	keywords := normalizeKeywords(req.Keywords)
	if err := router.store.ReplaceKeywords(r.Context(), claims.UserID, keywords); err != nil {
		logging.Error().Err(err).Int64("user_id", claims.UserID).Msg("keyword update failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to update keywords", nil)
		return
	}

	ctxLogger := logging.Ctx(r.Context())
	ctxLogger.Info().
		Int64("user_id", claims.UserID).
		Int("keywords", len(keywords)).
		Msg("keywords replaced")
	respondJSON(w, http.StatusOK, keywordsResponse{Keywords: keywords})
}

// GetFeed returns posts matching the user's keywords, newest first.
//
// GET /api/v1/feed?before=<RFC3339>&limit=<n>
func (router *Router) GetFeed(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authentication", nil)
		return
	}

	before := time.Now().UTC()
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"before must be an RFC3339 timestamp", nil)
			return
		}
		before = parsed
	}

	limit := router.cfg.API.DefaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be a positive integer", nil)
			return
		}
		if parsed > router.cfg.API.MaxFeedLimit {
			parsed = router.cfg.API.MaxFeedLimit
		}
		limit = parsed
	}

	feed, err := router.store.GetFeed(r.Context(), claims.UserID, before, limit)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", claims.UserID).Msg("feed query failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to build feed", nil)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

// normalizeKeywords trims whitespace, lowercases, and drops duplicates
// while preserving first-seen order. Matching is case-insensitive anyway;
// storing lowercase keeps the list canonical.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		k := strings.ToLower(strings.TrimSpace(keyword))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
