// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// blockingService runs until its context is cancelled, recording that it
// was started.
type blockingService struct {
	name    string
	started atomic.Bool
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.started.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) String() string { return s.name }

func TestNewTreeConstruction(t *testing.T) {
	t.Run("builds all layers", func(t *testing.T) {
		tree := NewTree(testLogger(), DefaultTreeConfig())
		if tree.root == nil || tree.ingest == nil || tree.worker == nil || tree.api == nil {
			t.Fatal("expected all supervisors to be constructed")
		}
	})

	t.Run("zero config gets defaults", func(t *testing.T) {
		// Must not panic; suture rejects some zero values itself.
		tree := NewTree(testLogger(), TreeConfig{})
		if tree.root == nil {
			t.Fatal("expected tree with defaulted config")
		}
	})
}

func TestTreeLifecycle(t *testing.T) {
	t.Run("starts services in every layer and stops on cancel", func(t *testing.T) {
		tree := NewTree(testLogger(), TreeConfig{
			FailureBackoff:  100 * time.Millisecond,
			ShutdownTimeout: time.Second,
		})

		ingestSvc := &blockingService{name: "fake-ingester"}
		workerSvc := &blockingService{name: "fake-worker"}
		apiSvc := &blockingService{name: "fake-api"}
		tree.AddIngestService(ingestSvc)
		tree.AddWorkerService(workerSvc)
		tree.AddAPIService(apiSvc)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := tree.ServeBackground(ctx)

		deadline := time.Now().Add(2 * time.Second)
		for !(ingestSvc.started.Load() && workerSvc.started.Load() && apiSvc.started.Load()) {
			if time.Now().After(deadline) {
				t.Fatal("services did not start in time")
			}
			time.Sleep(10 * time.Millisecond)
		}

		cancel()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want nil or context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("tree did not shut down in time")
		}
	})

	t.Run("ServeBackground delivers the terminal error", func(t *testing.T) {
		tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		select {
		case err := <-tree.ServeBackground(ctx):
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("did not receive from error channel")
		}
	})
}

func TestUnstoppedServiceReportCleanTree(t *testing.T) {
	tree := NewTree(testLogger(), DefaultTreeConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-errCh

	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport() error: %v", err)
	}
	if len(unstopped) != 0 {
		t.Errorf("unstopped services = %d, want 0", len(unstopped))
	}
}
