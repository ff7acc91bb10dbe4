// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/authtally/internal/accounting"
	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/database"
	"github.com/tomtom215/authtally/internal/hashing"
	"github.com/tomtom215/authtally/internal/models"
)

func newTestSweeper(t *testing.T) (*Sweeper, *accounting.Tracker) {
	t.Helper()
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tracker, err := accounting.NewTracker(db.Conn(), config.SchemeCurrent)
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}

	cfg := &config.RetentionConfig{
		Enabled:       true,
		MaxAge:        24 * time.Hour,
		CheckInterval: 10 * time.Millisecond,
	}
	return NewSweeper(tracker, cfg), tracker
}

func record(t *testing.T, tracker *accounting.Tracker, happenedAt int64) {
	t.Helper()
	err := tracker.RecordAuthentication(context.Background(), &models.AuthenticationState{
		IdpEntityID: "https://idp.example.org",
		SpEntityID:  "https://sp.example.org",
		UserID:      "alice@example.org",
		HappenedAt:  happenedAt,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
}

func TestSweepDeletesOnlyExpiredRows(t *testing.T) {
	sweeper, tracker := newTestSweeper(t)
	ctx := context.Background()

	record(t, tracker, 1000) // far past, expired
	record(t, tracker, time.Now().Unix())

	activity, _, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if activity != 1 {
		t.Errorf("activity deleted = %d, want 1", activity)
	}

	userHash := hashing.Hash("alice@example.org")
	remaining, err := tracker.Activity(ctx, userHash, 0, 0)
	if err != nil {
		t.Fatalf("activity query failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("remaining activity = %d, want 1", len(remaining))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	sweeper, tracker := newTestSweeper(t)
	ctx := context.Background()

	record(t, tracker, 1000)

	if _, _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	activity, counters, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if activity != 0 || counters != 0 {
		t.Errorf("second sweep deleted (%d, %d), want (0, 0)", activity, counters)
	}
}

func TestSweepRemovesIdleCounters(t *testing.T) {
	sweeper, tracker := newTestSweeper(t)
	ctx := context.Background()

	record(t, tracker, 1000)

	// The counter's updated_at is now, so it survives the first sweep.
	_, counters, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if counters != 0 {
		t.Errorf("fresh counter deleted, want it kept")
	}
}

func TestSweeperServeStopsOnCancel(t *testing.T) {
	sweeper, _ := newTestSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
