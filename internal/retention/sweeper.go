// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package retention implements the background sweeper that ages out activity
// rows and idle connected-service counters. Entity and version tables are
// never swept; they are the content-addressed history of the store.
package retention

import (
	"context"
	"time"

	"github.com/tomtom215/authtally/internal/accounting"
	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/metrics"
)

// Sweeper periodically deletes expired rows. It implements suture.Service.
//
// Each sweep is two independent bulk deletes: activity rows by happened_at
// and counters by updated_at. The deletes are idempotent, so a crash between
// them leaves nothing to repair; the next sweep converges.
type Sweeper struct {
	tracker *accounting.Tracker
	cfg     *config.RetentionConfig
}

// NewSweeper creates a sweeper over the given tracker.
func NewSweeper(tracker *accounting.Tracker, cfg *config.RetentionConfig) *Sweeper {
	return &Sweeper{
		tracker: tracker,
		cfg:     cfg,
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "retention-sweeper"
}

// Serve sweeps once at startup and then on every check interval until the
// context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	logging.Info().
		Dur("max_age", s.cfg.MaxAge).
		Dur("check_interval", s.cfg.CheckInterval).
		Msg("Retention sweeper started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one retention pass and returns the deleted row counts. Exposed
// for the manual sweep endpoint.
func (s *Sweeper) Sweep(ctx context.Context) (activity, counters int64, err error) {
	cutoff := time.Now().Add(-s.cfg.MaxAge).Unix()

	activity, err = s.tracker.SweepActivity(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	counters, err = s.tracker.SweepCounters(ctx, cutoff)
	if err != nil {
		return activity, 0, err
	}

	metrics.RetentionSweeps.Inc()
	return activity, counters, nil
}

// sweep runs one pass and logs the outcome. Errors are logged, not fatal; a
// failed sweep retries on the next tick.
func (s *Sweeper) sweep(ctx context.Context) {
	activity, counters, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error().Err(err).Msg("Retention sweep failed")
		}
		return
	}

	if activity > 0 || counters > 0 {
		logging.Info().
			Int64("activity_deleted", activity).
			Int64("counters_deleted", counters).
			Msg("Retention sweep completed")
	}
}
