// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/models"
)

func init() {
	RegisterScheme(config.SchemeCurrent, func(db *sql.DB) Scheme {
		return &currentScheme{db: db}
	})
}

// currentScheme keys counters and activity on the (sp, user) entity pair.
// Metadata and attribute changes do not split counters; version chains still
// record content history through the shared resolver, the aggregates just
// ignore them. One counter row per pair, so the upsert itself is the touch.
type currentScheme struct {
	db *sql.DB
}

func (s *currentScheme) Name() string { return config.SchemeCurrent }

func (s *currentScheme) Record(ctx context.Context, resolved *models.ResolvedEvent, state *models.AuthenticationState) error {
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `INSERT INTO connected_services
			(sp_id, user_id, first_authentication_at, last_authentication_at, count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (sp_id, user_id) DO UPDATE SET
			count = count + 1,
			first_authentication_at = LEAST(first_authentication_at, excluded.first_authentication_at),
			last_authentication_at = GREATEST(last_authentication_at, excluded.last_authentication_at),
			updated_at = excluded.updated_at`,
		resolved.SpID, resolved.UserID, state.HappenedAt, state.HappenedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert connected service: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO activity_log
			(sp_id, user_id, happened_at, client_ip, protocol, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		resolved.SpID, resolved.UserID, state.HappenedAt,
		nullableString(state.ClientIP), nullableString(state.Protocol), now)
	if err != nil {
		return fmt.Errorf("failed to append activity log entry: %w", err)
	}

	return nil
}

func (s *currentScheme) ConnectedServices(ctx context.Context, userHash string, limit int) ([]models.ConnectedService, error) {
	query := `SELECT
			sp.entity_id,
			(SELECT metadata FROM sp_provider_versions WHERE provider_id = sp.id ORDER BY id DESC LIMIT 1),
			cs.first_authentication_at,
			cs.last_authentication_at,
			cs.count
		FROM connected_services cs
		JOIN sp_providers sp ON sp.id = cs.sp_id
		JOIN users u ON u.id = cs.user_id
		WHERE u.user_id_hash = ?
		ORDER BY cs.last_authentication_at DESC`
	clause, pageArgs := pageClause(limit, 0)

	rows, err := s.db.QueryContext(ctx, query+clause, append([]any{userHash}, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected services: %w", err)
	}
	defer rows.Close()

	return scanConnectedServices(rows)
}

func (s *currentScheme) Activity(ctx context.Context, userHash string, limit, offset int) ([]models.ActivityEvent, error) {
	// The pair-keyed log has no version reference, so rows carry the
	// provider's latest metadata.
	query := `SELECT
			sp.entity_id,
			(SELECT metadata FROM sp_provider_versions WHERE provider_id = sp.id ORDER BY id DESC LIMIT 1),
			a.happened_at, a.client_ip, a.protocol
		FROM activity_log a
		JOIN sp_providers sp ON sp.id = a.sp_id
		JOIN users u ON u.id = a.user_id
		WHERE u.user_id_hash = ?
		ORDER BY a.happened_at DESC, a.id DESC`
	clause, pageArgs := pageClause(limit, offset)

	rows, err := s.db.QueryContext(ctx, query+clause, append([]any{userHash}, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

func (s *currentScheme) DeleteActivityOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	return deleteOlderThan(ctx, s.db, "activity_log", "happened_at", cutoff)
}

func (s *currentScheme) DeleteCountersIdleSince(ctx context.Context, cutoff int64) (int64, error) {
	return deleteOlderThan(ctx, s.db, "connected_services", "updated_at", cutoff)
}
