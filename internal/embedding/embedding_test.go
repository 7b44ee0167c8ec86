// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/skyfeed-dev/skyfeed/internal/config"
	"github.com/skyfeed-dev/skyfeed/internal/database"
)

func embedService(t *testing.T, dimensions int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			vectors[i] = make([]float32, dimensions)
			vectors[i][0] = float32(i)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	}))
	t.Cleanup(server.Close)
	return server
}

func providerConfig(url string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Enabled:           true,
		URL:               url,
		Dimensions:        4,
		BatchSize:         10,
		PollInterval:      10 * time.Millisecond,
		RequestTimeout:    time.Second,
		RequestsPerSecond: 1000,
	}
}

func TestHTTPProviderEmbed(t *testing.T) {
	server := embedService(t, 4)
	provider := NewHTTPProvider(providerConfig(server.URL))

	vectors, err := provider.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("vectors = %d, want 2", len(vectors))
	}
	if len(vectors[0]) != 4 {
		t.Errorf("dimensions = %d, want 4", len(vectors[0]))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors[1][0] = %v, want order preserved", vectors[1][0])
	}
}

func TestHTTPProviderDimensionMismatch(t *testing.T) {
	server := embedService(t, 3)
	provider := NewHTTPProvider(providerConfig(server.URL))

	if _, err := provider.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for wrong dimensionality")
	}
}

func TestHTTPProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	provider := NewHTTPProvider(providerConfig(server.URL))
	if _, err := provider.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestHTTPProviderEmptyBatch(t *testing.T) {
	provider := NewHTTPProvider(providerConfig("http://unreachable.invalid"))
	vectors, err := provider.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("empty batch: vectors=%v err=%v, want nil/nil", vectors, err)
	}
}

// fakeWorkerStore scripts pending batches for the worker.
type fakeWorkerStore struct {
	batches   [][]database.PendingPost
	call      int
	inserted  []uuid.UUID
	insertErr error
}

func (s *fakeWorkerStore) PostsWithoutEmbeddings(_ context.Context, _ int) ([]database.PendingPost, error) {
	if s.call >= len(s.batches) {
		return nil, nil
	}
	batch := s.batches[s.call]
	s.call++
	return batch, nil
}

func (s *fakeWorkerStore) InsertEmbedding(_ context.Context, postID uuid.UUID, _ time.Time, _ []float32) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, postID)
	return nil
}

type fakeProvider struct {
	err   error
	calls int
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func pendingPosts(n int) []database.PendingPost {
	posts := make([]database.PendingPost, n)
	for i := range posts {
		posts[i] = database.PendingPost{
			ID:        uuid.New(),
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Text:      "pending",
		}
	}
	return posts
}

func TestWorkerDrainsBacklog(t *testing.T) {
	store := &fakeWorkerStore{batches: [][]database.PendingPost{pendingPosts(3), pendingPosts(2)}}
	provider := &fakeProvider{}
	worker := NewWorker(store, provider, providerConfig("http://unused.invalid"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := worker.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v", err)
	}

	if len(store.inserted) != 5 {
		t.Errorf("inserted = %d, want 5", len(store.inserted))
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
}

func TestWorkerRunPassProviderFailure(t *testing.T) {
	store := &fakeWorkerStore{batches: [][]database.PendingPost{pendingPosts(1)}}
	provider := &fakeProvider{err: errors.New("model offline")}
	worker := NewWorker(store, provider, providerConfig("http://unused.invalid"))

	if _, err := worker.runPass(context.Background()); err == nil {
		t.Error("expected provider error to surface")
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted = %d, want 0 on failure", len(store.inserted))
	}
}

func TestWorkerRunPassSkipsStorageFailures(t *testing.T) {
	store := &fakeWorkerStore{
		batches:   [][]database.PendingPost{pendingPosts(2)},
		insertErr: errors.New("disk full"),
	}
	worker := NewWorker(store, &fakeProvider{}, providerConfig("http://unused.invalid"))

	stored, err := worker.runPass(context.Background())
	if err != nil {
		t.Fatalf("runPass: %v", err)
	}
	if stored != 0 {
		t.Errorf("stored = %d, want 0 when every insert fails", stored)
	}
}
