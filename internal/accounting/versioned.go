// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package accounting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/models"
)

func init() {
	RegisterScheme(config.SchemeVersioned, func(db *sql.DB) Scheme {
		return &versionedScheme{db: db}
	})
}

// versionedScheme keys counters and activity on the full version composite.
// A metadata or attribute change starts a fresh counter; history per exact
// content combination is preserved. The composite row itself is deduplicated
// the same way entities are: unique constraint plus conflict-tolerant insert.
type versionedScheme struct {
	db *sql.DB
}

func (s *versionedScheme) Name() string { return config.SchemeVersioned }

func (s *versionedScheme) Record(ctx context.Context, resolved *models.ResolvedEvent, state *models.AuthenticationState) error {
	now := time.Now().Unix()

	compositeID, err := s.getOrCreateComposite(ctx, resolved, now)
	if err != nil {
		return err
	}

	// Single-statement upsert keeps the counter monotonic under concurrency:
	// every event adds exactly one, first_authentication_at only ever moves
	// down and last_authentication_at only ever moves up, so out-of-order
	// arrival still converges on min/max of the observed timestamps.
	_, err = s.db.ExecContext(ctx, `INSERT INTO connected_service_versions
			(composite_version_id, first_authentication_at, last_authentication_at, count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (composite_version_id) DO UPDATE SET
			count = count + 1,
			first_authentication_at = LEAST(first_authentication_at, excluded.first_authentication_at),
			last_authentication_at = GREATEST(last_authentication_at, excluded.last_authentication_at),
			updated_at = excluded.updated_at`,
		compositeID, state.HappenedAt, state.HappenedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert connected service counter: %w", err)
	}

	// A fresh authentication proves the whole (sp, user) relation is alive,
	// not just the current version combination. Bumping updated_at on sibling
	// counters keeps superseded versions out of the idle-retention sweep.
	if err := s.touchSiblings(ctx, resolved, now); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO activity_events
			(composite_version_id, happened_at, client_ip, protocol, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		compositeID, state.HappenedAt, nullableString(state.ClientIP), nullableString(state.Protocol), now)
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}

	return nil
}

// getOrCreateComposite returns the id of the unique version triple.
func (s *versionedScheme) getOrCreateComposite(ctx context.Context, resolved *models.ResolvedEvent, now int64) (int64, error) {
	const selectQuery = `SELECT id FROM composite_version_keys
		WHERE idp_version_id = ? AND sp_version_id = ? AND user_version_id = ?`

	var id int64
	err := s.db.QueryRowContext(ctx, selectQuery,
		resolved.IdpVersionID, resolved.SpVersionID, resolved.UserVersionID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up composite version: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `INSERT INTO composite_version_keys
			(idp_version_id, sp_version_id, user_version_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (idp_version_id, sp_version_id, user_version_id) DO NOTHING
		RETURNING id`,
		resolved.IdpVersionID, resolved.SpVersionID, resolved.UserVersionID, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert composite version: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, selectQuery,
		resolved.IdpVersionID, resolved.SpVersionID, resolved.UserVersionID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read composite version after conflict: %w", err)
	}
	return id, nil
}

// touchSiblings bumps updated_at on every counter whose composite shares the
// event's (sp, user) entity pair, across all version combinations.
func (s *versionedScheme) touchSiblings(ctx context.Context, resolved *models.ResolvedEvent, now int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE connected_service_versions SET updated_at = ?
		WHERE composite_version_id IN (
			SELECT c.id
			FROM composite_version_keys c
			JOIN sp_provider_versions sv ON sv.id = c.sp_version_id
			JOIN user_versions uv ON uv.id = c.user_version_id
			WHERE sv.provider_id = ? AND uv.user_id = ?
		)`, now, resolved.SpID, resolved.UserID)
	if err != nil {
		return fmt.Errorf("failed to touch sibling counters: %w", err)
	}
	return nil
}

func (s *versionedScheme) ConnectedServices(ctx context.Context, userHash string, limit int) ([]models.ConnectedService, error) {
	query := `SELECT
			sp.entity_id,
			(SELECT metadata FROM sp_provider_versions WHERE provider_id = sp.id ORDER BY id DESC LIMIT 1),
			MIN(v.first_authentication_at),
			MAX(v.last_authentication_at),
			SUM(v.count)
		FROM connected_service_versions v
		JOIN composite_version_keys c ON c.id = v.composite_version_id
		JOIN sp_provider_versions sv ON sv.id = c.sp_version_id
		JOIN sp_providers sp ON sp.id = sv.provider_id
		JOIN user_versions uv ON uv.id = c.user_version_id
		JOIN users u ON u.id = uv.user_id
		WHERE u.user_id_hash = ?
		GROUP BY sp.id, sp.entity_id
		ORDER BY MAX(v.last_authentication_at) DESC`
	clause, pageArgs := pageClause(limit, 0)

	rows, err := s.db.QueryContext(ctx, query+clause, append([]any{userHash}, pageArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected services: %w", err)
	}
	defer rows.Close()

	return scanConnectedServices(rows)
}

func (s *versionedScheme) Activity(ctx context.Context, userHash string, limit, offset int) ([]models.ActivityEvent, error) {
	// sv.metadata is the exact metadata version the event happened under, not
	// the provider's latest.
	query := `SELECT
			sp.entity_id, sv.metadata, a.happened_at, a.client_ip, a.protocol
		FROM activity_events a
		JOIN composite_version_keys c ON c.id = a.composite_version_id
		JOIN sp_provider_versions sv ON sv.id = c.sp_version_id
		JOIN sp_providers sp ON sp.id = sv.provider_id
		JOIN user_versions uv ON uv.id = c.user_version_id
		JOIN users u ON u.id = uv.user_id
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

func (s *versionedScheme) DeleteActivityOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	return deleteOlderThan(ctx, s.db, "activity_events", "happened_at", cutoff)
}

func (s *versionedScheme) DeleteCountersIdleSince(ctx context.Context, cutoff int64) (int64, error) {
	return deleteOlderThan(ctx, s.db, "connected_service_versions", "updated_at", cutoff)
}

// deleteOlderThan bulk-deletes rows whose column value predates the cutoff.
// Idempotent: a second sweep with the same cutoff deletes nothing.
func deleteOlderThan(ctx context.Context, db *sql.DB, table, column string, cutoff int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, table, column)
	result, err := db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rows from %s: %w", table, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count for %s: %w", table, err)
	}
	return count, nil
}

// pageClause renders the LIMIT/OFFSET tail of a read query. A limit of zero
// or less means no limit at all; DuckDB accepts OFFSET without LIMIT.
func pageClause(limit, offset int) (string, []any) {
	var clause string
	var args []any
	if limit > 0 {
		clause += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		clause += " OFFSET ?"
		args = append(args, offset)
	}
	return clause, args
}

// nullableString maps "" to NULL for optional columns.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// scanConnectedServices reads aggregated counter rows. A malformed row is
// logged and skipped so one bad row cannot hide the rest of the result.
func scanConnectedServices(rows *sql.Rows) ([]models.ConnectedService, error) {
	var services []models.ConnectedService
	for rows.Next() {
		var cs models.ConnectedService
		var metadata sql.NullString
		if err := rows.Scan(&cs.SpEntityID, &metadata, &cs.FirstAuthenticationAt, &cs.LastAuthenticationAt, &cs.Count); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan connected service row")
			continue
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &cs.SpMetadata); err != nil {
				logging.Warn().Err(err).Str("sp", cs.SpEntityID).Msg("Failed to parse sp metadata")
			}
		}
		services = append(services, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connected services: %w", err)
	}
	return services, nil
}

// scanActivity reads activity rows with the same per-row skip policy.
func scanActivity(rows *sql.Rows) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	for rows.Next() {
		var ev models.ActivityEvent
		var metadata, clientIP, protocol sql.NullString
		if err := rows.Scan(&ev.SpEntityID, &metadata, &ev.HappenedAt, &clientIP, &protocol); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan activity row")
			continue
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.SpMetadata); err != nil {
				logging.Warn().Err(err).Str("sp", ev.SpEntityID).Msg("Failed to parse sp metadata")
			}
		}
		ev.ClientIP = clientIP.String
		ev.Protocol = protocol.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return events, nil
}
