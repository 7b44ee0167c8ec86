// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/skyfeed-dev/skyfeed/internal/auth"
	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/database"
	"github.com/skyfeed-dev/skyfeed/internal/models"
)

// fakeStore implements Store in memory.
type fakeStore struct {
	users    map[string]*models.User
	keywords map[int64][]string
	feed     *models.Feed
	nextID   int64
	pingErr  error

	lastFeedBefore time.Time
	lastFeedLimit  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*models.User),
		keywords: make(map[int64][]string),
		feed:     &models.Feed{Feed: []models.FeedPost{}, Keywords: []string{}},
		nextID:   1,
	}
}

func (s *fakeStore) CreateUser(_ context.Context, email, hash string) (*models.User, error) {
	email = strings.ToLower(email)
	if _, exists := s.users[email]; exists {
		return nil, database.ErrDuplicateEmail
	}
	user := &models.User{ID: s.nextID, Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	s.nextID++
	s.users[email] = user
	return user, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) ReplaceKeywords(_ context.Context, userID int64, keywords []string) error {
	s.keywords[userID] = keywords
	return nil
}

func (s *fakeStore) ListKeywords(_ context.Context, userID int64) ([]string, error) {
	return s.keywords[userID], nil
}

func (s *fakeStore) GetFeed(_ context.Context, _ int64, before time.Time, limit int) (*models.Feed, error) {
	s.lastFeedBefore = before
	s.lastFeedLimit = limit
	return s.feed, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) CountPosts(context.Context) (int64, error) { return 123, nil }

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			SessionTimeout:    time.Hour,
			RateLimitReqs:     1000,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
		},
		API: config.APIConfig{DefaultFeedLimit: 50, MaxFeedLimit: 200},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cfg := testConfig()
	jwtManager, err := auth.NewJWTManager(cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	server := httptest.NewServer(NewRouter(store, jwtManager, cfg))
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

// registerAndLogin creates an account and returns a bearer token for it.
func registerAndLogin(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, server.URL+"/api/v1/auth/register", "",
		map[string]string{"email": "user@example.com", "password": "password123"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/auth/token", "",
		map[string]string{"email": "user@example.com", "password": "password123"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", resp.StatusCode)
	}
	token := decodeBody[tokenResponse](t, resp)
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("token response = %+v", token)
	}
	return token.AccessToken
}

func TestRegisterValidation(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "nope", "password": "password123"}},
		{"short password", map[string]string{"email": "a@example.com", "password": "short"}},
		{"missing password", map[string]string{"email": "a@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/api/v1/auth/register", "", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	server, _ := newTestServer(t)
	body := map[string]string{"email": "dup@example.com", "password": "password123"}

	resp := postJSON(t, server.URL+"/api/v1/auth/register", "", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register status = %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/api/v1/auth/register", "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	server, _ := newTestServer(t)
	registerAndLogin(t, server)

	t.Run("wrong password", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/api/v1/auth/token", "",
			map[string]string{"email": "user@example.com", "password": "wrongwrong"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/api/v1/auth/token", "",
			map[string]string{"email": "ghost@example.com", "password": "password123"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestKeywordsRoundTrip(t *testing.T) {
	server, store := newTestServer(t)
	token := registerAndLogin(t, server)

	resp := postJSON(t, server.URL+"/api/v1/keywords", token,
		map[string][]string{"keywords": {"  GoLang ", "duckdb", "golang"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set keywords status = %d", resp.StatusCode)
	}
	set := decodeBody[keywordsResponse](t, resp)
	// Trimmed, lowercased, deduplicated.
	if len(set.Keywords) != 2 || set.Keywords[0] != "golang" || set.Keywords[1] != "duckdb" {
		t.Errorf("keywords = %v", set.Keywords)
	}

	resp = get(t, server.URL+"/api/v1/keywords", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get keywords status = %d", resp.StatusCode)
	}
	got := decodeBody[keywordsResponse](t, resp)
	if len(got.Keywords) != 2 {
		t.Errorf("stored keywords = %v", got.Keywords)
	}
	if len(store.keywords[1]) != 2 {
		t.Errorf("store keywords = %v", store.keywords[1])
	}
}

func TestKeywordsRequireAuth(t *testing.T) {
	server, _ := newTestServer(t)

	resp := get(t, server.URL+"/api/v1/keywords", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGetFeedDefaultsAndClamp(t *testing.T) {
	server, store := newTestServer(t)
	token := registerAndLogin(t, server)

	resp := get(t, server.URL+"/api/v1/feed", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed status = %d", resp.StatusCode)
	}
	if store.lastFeedLimit != 50 {
		t.Errorf("default limit = %d, want 50", store.lastFeedLimit)
	}

	resp = get(t, server.URL+"/api/v1/feed?limit=9999", token)
	resp.Body.Close()
	if store.lastFeedLimit != 200 {
		t.Errorf("clamped limit = %d, want 200", store.lastFeedLimit)
	}

	resp = get(t, server.URL+"/api/v1/feed?before=2026-01-02T03:04:05Z", token)
	resp.Body.Close()
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !store.lastFeedBefore.Equal(want) {
		t.Errorf("before = %v, want %v", store.lastFeedBefore, want)
	}
}

func TestGetFeedRejectsBadParams(t *testing.T) {
	server, _ := newTestServer(t)
	token := registerAndLogin(t, server)

	for _, path := range []string{
		"/api/v1/feed?before=not-a-time",
		"/api/v1/feed?limit=abc",
		"/api/v1/feed?limit=0",
	} {
		resp := get(t, server.URL+path, token)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, store := newTestServer(t)

	resp := get(t, server.URL+"/api/v1/health/live", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live status = %d", resp.StatusCode)
	}

	resp = get(t, server.URL+"/api/v1/health/ready", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d", resp.StatusCode)
	}
	ready := decodeBody[readyResponse](t, resp)
	if ready.Posts != 123 {
		t.Errorf("ready posts = %d", ready.Posts)
	}

	store.pingErr = errors.New("down")
	resp = get(t, server.URL+"/api/v1/health/ready", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status with db down = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	server, _ := newTestServer(t)

	resp := get(t, server.URL+"/metrics", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
