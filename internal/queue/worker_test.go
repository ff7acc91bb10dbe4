// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/models"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		JobType:           testJobType,
		Serializer:        "json",
		PollInterval:      10 * time.Millisecond,
		MaxPollInterval:   50 * time.Millisecond,
		MaxDeleteAttempts: 3,
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const jobs = 5
	for i := 0; i < jobs; i++ {
		if _, err := store.Enqueue(ctx, testJobType, testPayload{HappenedAt: int64(i)}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	var processed atomic.Int64
	worker := NewWorker(store, testQueueConfig(), func(ctx context.Context, job *models.Job) error {
		processed.Add(1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for processed.Load() < jobs {
		select {
		case <-deadline:
			t.Fatalf("processed %d jobs before timeout, want %d", processed.Load(), jobs)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("worker returned %v, want context.Canceled", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Pending != 0 {
		t.Errorf("pending = %d, want 0", stats.Pending)
	}
}

func TestWorkerDeadLettersFailedJobs(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := store.Enqueue(ctx, testJobType, testPayload{UserID: "bad"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var attempts atomic.Int64
	worker := NewWorker(store, testQueueConfig(), func(ctx context.Context, job *models.Job) error {
		attempts.Add(1)
		return errors.New("handler rejected payload")
	})

	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if stats.Failed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not dead-lettered before timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if got := attempts.Load(); got != 1 {
		t.Errorf("handler attempts = %d, want 1 (no automatic retry)", got)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	worker := NewWorker(store, testQueueConfig(), func(ctx context.Context, job *models.Job) error {
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("worker returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
