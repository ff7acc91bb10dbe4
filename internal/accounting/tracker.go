// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package accounting implements the authentication accounting pipeline:
// entity resolution with content-addressed deduplication, version chains for
// metadata and attribute history, idempotent connected-service aggregation,
// and the per-user activity log.
package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/authtally/internal/hashing"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/metrics"
	"github.com/tomtom215/authtally/internal/models"
)

// Tracker is the front door of the accounting pipeline. It validates
// incoming authentication states, resolves them to stable ids, and hands
// them to the configured aggregation scheme.
type Tracker struct {
	resolver *Resolver
	scheme   Scheme
}

// NewTracker creates a tracker using the named aggregation scheme.
func NewTracker(db *sql.DB, schemeName string) (*Tracker, error) {
	scheme, err := NewScheme(schemeName, db)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		resolver: NewResolver(db),
		scheme:   scheme,
	}, nil
}

// SchemeName returns the name of the active aggregation scheme.
func (t *Tracker) SchemeName() string {
	return t.scheme.Name()
}

// RecordAuthentication accounts one authentication event. The operation is
// not atomic as a whole but every step is individually idempotent or
// monotonic, so a concurrent duplicate never corrupts state.
func (t *Tracker) RecordAuthentication(ctx context.Context, state *models.AuthenticationState) error {
	start := time.Now()

	if err := validateState(state); err != nil {
		metrics.AuthEventsRejected.Inc()
		return err
	}

	resolved, err := t.resolver.Resolve(ctx, state)
	if err != nil {
		return fmt.Errorf("accounting failed: %w", err)
	}

	if err := t.scheme.Record(ctx, resolved, state); err != nil {
		return fmt.Errorf("accounting failed: %w", err)
	}

	metrics.AuthEventsRecorded.WithLabelValues(t.scheme.Name()).Inc()
	metrics.AuthRecordDuration.Observe(time.Since(start).Seconds())

	logging.Debug().
		Str("scheme", t.scheme.Name()).
		Int64("sp_id", resolved.SpID).
		Int64("user_id", resolved.UserID).
		Int64("happened_at", state.HappenedAt).
		Msg("Recorded authentication event")

	return nil
}

// ConnectedServices returns the services the user has authenticated to,
// most recently used first. A limit of zero or less returns all rows.
// userHash is the hex digest of the raw user identifier; raw identifiers are
// never accepted on the read path.
func (t *Tracker) ConnectedServices(ctx context.Context, userHash string, limit int) ([]models.ConnectedService, error) {
	if err := validateDigest(userHash); err != nil {
		return nil, err
	}
	return t.scheme.ConnectedServices(ctx, userHash, limit)
}

// Activity returns the user's authentication history, most recent first.
// A limit of zero or less returns all rows.
func (t *Tracker) Activity(ctx context.Context, userHash string, limit, offset int) ([]models.ActivityEvent, error) {
	if err := validateDigest(userHash); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return t.scheme.Activity(ctx, userHash, limit, offset)
}

// SweepActivity removes activity rows older than the cutoff.
func (t *Tracker) SweepActivity(ctx context.Context, cutoff int64) (int64, error) {
	deleted, err := t.scheme.DeleteActivityOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RetentionRowsDeleted.WithLabelValues("activity").Add(float64(deleted))
	return deleted, nil
}

// SweepCounters removes counter rows not updated since the cutoff.
func (t *Tracker) SweepCounters(ctx context.Context, cutoff int64) (int64, error) {
	deleted, err := t.scheme.DeleteCountersIdleSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RetentionRowsDeleted.WithLabelValues("counters").Add(float64(deleted))
	return deleted, nil
}

// validateState checks the minimum fields an event needs to be accountable.
func validateState(state *models.AuthenticationState) error {
	if state == nil {
		return &ValidationError{Field: "state", Reason: "is nil"}
	}
	if state.IdpEntityID == "" {
		return &ValidationError{Field: "idp_entity_id", Reason: "is empty"}
	}
	if state.SpEntityID == "" {
		return &ValidationError{Field: "sp_entity_id", Reason: "is empty"}
	}
	if state.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "is empty"}
	}
	if state.HappenedAt <= 0 {
		return &ValidationError{Field: "happened_at", Reason: "must be a positive epoch timestamp"}
	}
	return nil
}

// validateDigest checks that a caller-supplied user hash is a well-formed
// hex SHA-256 digest before it reaches a query.
func validateDigest(digest string) error {
	if len(digest) != hashing.DigestLength {
		return &ValidationError{Field: "user_hash", Reason: fmt.Sprintf("must be %d hex characters", hashing.DigestLength)}
	}
	for _, c := range digest {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			return &ValidationError{Field: "user_hash", Reason: "must be lowercase hex"}
		}
	}
	return nil
}
