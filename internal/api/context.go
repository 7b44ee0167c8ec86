// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"context"
	"net/http"
	"time"
)

// contextWithTimeout derives a bounded context from the request.
func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
