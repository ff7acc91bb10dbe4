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

	"github.com/tomtom215/authtally/internal/hashing"
	"github.com/tomtom215/authtally/internal/models"
)

// Resolver turns the string identities of one authentication event into
// stable integer ids: entity rows (get-or-create by content hash) plus the
// version row matching the event's metadata content.
//
// Every step is a single statement. Races between concurrent writers for the
// same identity resolve through unique constraints: whoever loses the insert
// re-reads the winner's row. The same content therefore always maps to the
// same id, regardless of interleaving.
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a resolver on top of an initialized database connection.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// providerTables names the entity and version tables of one provider kind.
// IdP and SP providers share the same two-level shape.
type providerTables struct {
	entities string
	versions string
}

var (
	idpTables = providerTables{entities: "idp_providers", versions: "idp_provider_versions"}
	spTables  = providerTables{entities: "sp_providers", versions: "sp_provider_versions"}
)

// Resolve maps an authentication state to its resolved integer ids, creating
// entity and version rows as needed. The raw user identifier is hashed here
// and never passed further down.
func (r *Resolver) Resolve(ctx context.Context, state *models.AuthenticationState) (*models.ResolvedEvent, error) {
	now := time.Now().Unix()

	idpID, idpVersionID, err := r.resolveProvider(ctx, idpTables, state.IdpEntityID, state.IdpMetadata, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve idp %s: %w", state.IdpEntityID, err)
	}

	spID, spVersionID, err := r.resolveProvider(ctx, spTables, state.SpEntityID, state.SpMetadata, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sp %s: %w", state.SpEntityID, err)
	}

	userID, userVersionID, err := r.resolveUser(ctx, state.UserID, state.UserAttributes, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return &models.ResolvedEvent{
		IdpID:         idpID,
		IdpVersionID:  idpVersionID,
		SpID:          spID,
		SpVersionID:   spVersionID,
		UserID:        userID,
		UserVersionID: userVersionID,
	}, nil
}

// resolveProvider resolves one provider entity and its metadata version.
func (r *Resolver) resolveProvider(ctx context.Context, t providerTables, entityID string, metadata map[string]any, now int64) (int64, int64, error) {
	entityHash := hashing.Hash(entityID)

	providerID, err := r.getOrCreateProvider(ctx, t, entityID, entityHash, now)
	if err != nil {
		return 0, 0, err
	}

	versionID, err := r.resolveProviderVersion(ctx, t, providerID, metadata, now)
	if err != nil {
		return 0, 0, err
	}

	return providerID, versionID, nil
}

// getOrCreateProvider returns the entity id for a provider, creating the row
// if it does not exist yet.
func (r *Resolver) getOrCreateProvider(ctx context.Context, t providerTables, entityID, entityHash string, now int64) (int64, error) {
	selectQuery := fmt.Sprintf(`SELECT id FROM %s WHERE entity_id_hash = ?`, t.entities)

	var id int64
	err := r.db.QueryRowContext(ctx, selectQuery, entityHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up provider: %w", err)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (entity_id, entity_id_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_id_hash) DO NOTHING
		RETURNING id`, t.entities)

	err = r.db.QueryRowContext(ctx, insertQuery, entityID, entityHash, now, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert provider: %w", err)
	}

	// Lost the insert race; the winner's row exists now.
	if err := r.db.QueryRowContext(ctx, selectQuery, entityHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read provider after conflict: %w", err)
	}
	return id, nil
}

// resolveProviderVersion returns the version id matching the metadata content.
// A new version row is appended only when the content hash differs from the
// most recent version; re-observing earlier content reuses that version's row.
func (r *Resolver) resolveProviderVersion(ctx context.Context, t providerTables, providerID int64, metadata map[string]any, now int64) (int64, error) {
	canonical, err := hashing.Canonicalize(metadata)
	if err != nil {
		return 0, err
	}
	contentHash := hashing.HashBytes(canonical)

	latestQuery := fmt.Sprintf(`SELECT id, metadata_hash FROM %s
		WHERE provider_id = ? ORDER BY id DESC LIMIT 1`, t.versions)

	var latestID int64
	var latestHash string
	err = r.db.QueryRowContext(ctx, latestQuery, providerID).Scan(&latestID, &latestHash)
	if err == nil && latestHash == contentHash {
		return latestID, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up latest provider version: %w", err)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (provider_id, metadata, metadata_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (provider_id, metadata_hash) DO NOTHING
		RETURNING id`, t.versions)

	var id int64
	err = r.db.QueryRowContext(ctx, insertQuery, providerID, string(canonical), contentHash, now).Scan(&id)
	if err == nil {
		r.touchProvider(ctx, t, providerID, now)
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert provider version: %w", err)
	}

	// Content seen before (or a concurrent writer got there first).
	selectQuery := fmt.Sprintf(`SELECT id FROM %s
		WHERE provider_id = ? AND metadata_hash = ?`, t.versions)
	if err := r.db.QueryRowContext(ctx, selectQuery, providerID, contentHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read provider version after conflict: %w", err)
	}
	return id, nil
}

// touchProvider bumps the entity's updated_at after a new version appeared.
// Best effort: the version row is the source of truth for change history.
func (r *Resolver) touchProvider(ctx context.Context, t providerTables, providerID, now int64) {
	query := fmt.Sprintf(`UPDATE %s SET updated_at = ? WHERE id = ?`, t.entities)
	_, _ = r.db.ExecContext(ctx, query, now, providerID)
}

// resolveUser resolves the hashed user entity and its attribute version.
// Only the digest of the raw identifier is persisted.
func (r *Resolver) resolveUser(ctx context.Context, rawUserID string, attributes map[string]any, now int64) (int64, int64, error) {
	userHash := hashing.Hash(rawUserID)

	userID, err := r.getOrCreateUser(ctx, userHash, now)
	if err != nil {
		return 0, 0, err
	}

	versionID, err := r.resolveUserVersion(ctx, userID, attributes, now)
	if err != nil {
		return 0, 0, err
	}

	return userID, versionID, nil
}

func (r *Resolver) getOrCreateUser(ctx context.Context, userHash string, now int64) (int64, error) {
	const selectQuery = `SELECT id FROM users WHERE user_id_hash = ?`

	var id int64
	err := r.db.QueryRowContext(ctx, selectQuery, userHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `INSERT INTO users (user_id_hash, created_at)
		VALUES (?, ?)
		ON CONFLICT (user_id_hash) DO NOTHING
		RETURNING id`, userHash, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, selectQuery, userHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read user after conflict: %w", err)
	}
	return id, nil
}

func (r *Resolver) resolveUserVersion(ctx context.Context, userID int64, attributes map[string]any, now int64) (int64, error) {
	canonical, err := hashing.Canonicalize(attributes)
	if err != nil {
		return 0, err
	}
	contentHash := hashing.HashBytes(canonical)

	var latestID int64
	var latestHash string
	err = r.db.QueryRowContext(ctx, `SELECT id, attributes_hash FROM user_versions
		WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID).Scan(&latestID, &latestHash)
	if err == nil && latestHash == contentHash {
		return latestID, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up latest user version: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `INSERT INTO user_versions (user_id, attributes, attributes_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, attributes_hash) DO NOTHING
		RETURNING id`, userID, string(canonical), contentHash, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert user version: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, `SELECT id FROM user_versions
		WHERE user_id = ? AND attributes_hash = ?`, userID, contentHash).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read user version after conflict: %w", err)
	}
	return id, nil
}
