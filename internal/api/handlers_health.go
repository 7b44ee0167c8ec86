// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status string `json:"status"`
}

type readyResponse struct {
	Status string `json:"status"`
	Posts  int64  `json:"posts"`
}

// Live reports process liveness. It answers as long as the HTTP server
// accepts connections.
//
// GET /api/v1/health/live
func (router *Router) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Ready reports whether the database is reachable, with the stored post
// count as a cheap ingestion progress signal.
//
// GET /api/v1/health/ready
func (router *Router) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	if err := router.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database unreachable", nil)
		return
	}

	count, err := router.store.CountPosts(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database query failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, readyResponse{Status: "ok", Posts: count})
}
