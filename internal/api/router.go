// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

// Package api serves the feed HTTP API: account registration, token login,
// keyword management, the keyword-matched feed, health probes, and the
// Prometheus metrics endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyfeed-dev/skyfeed/internal/auth"
	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/middleware"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// Store is the persistence surface the API needs. *database.DB satisfies it.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ReplaceKeywords(ctx context.Context, userID int64, keywords []string) error
	ListKeywords(ctx context.Context, userID int64) ([]string, error)
	GetFeed(ctx context.Context, userID int64, before time.Time, limit int) (*models.Feed, error)
	Ping(ctx context.Context) error
	CountPosts(ctx context.Context) (int64, error)
}

// Router bundles the handlers with their dependencies.
type Router struct {
	store Store
	jwt   *auth.JWTManager
	cfg   *config.Config
}

// NewRouter builds the chi router with all routes and middleware attached.
func NewRouter(store Store, jwtManager *auth.JWTManager, cfg *config.Config) *chi.Mux {
	router := &Router{store: store, jwt: jwtManager, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// CORS is global so OPTIONS preflights reach it before routing.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.Live)
		r.Get("/ready", router.Ready)
	})

	// Login and registration get a tight limit: both endpoints do a bcrypt
	// comparison per request and are the target of credential stuffing.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(router.rateLimit(10, time.Minute))
		r.Use(middleware.PrometheusMetrics)
		r.Post("/register", router.Register)
		r.Post("/token", router.Token)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.rateLimit(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)
		r.Use(auth.Middleware(jwtManager))
		r.Get("/keywords", router.GetKeywords)
		r.Post("/keywords", router.SetKeywords)
		r.Get("/feed", router.GetFeed)
	})

	return r
}

func (router *Router) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if router.cfg.Security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"too many requests, slow down", nil)
		}),
	)
}
