// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

/*
schema.go - Database Schema Management

Tables:
  - idp_providers / sp_providers: one row per distinct entity, looked up only
    by entity_id_hash (unique)
  - idp_provider_versions / sp_provider_versions: append-only version chain,
    one row per distinct metadata content, unique on (provider_id, metadata_hash)
  - users / user_versions: same two-level pattern keyed on the hashed user
    identifier; the raw identifier is never stored
  - composite_version_keys: unique (idp_version_id, sp_version_id,
    user_version_id) triples (versioned scheme)
  - connected_service_versions / activity_events: counters and activity rows
    keyed on the composite version (versioned scheme)
  - connected_services / activity_log: counters and activity rows keyed on the
    (sp, user) entity pair (current scheme)
  - jobs / failed_jobs: durable queue and its dead-letter sink

All timestamps are epoch seconds (BIGINT). Integer ids come from sequences so
INSERT ... RETURNING id works uniformly across schemes.

Schema strategy: the full schema lives in the initial CREATE TABLE statements;
the versioned migration ledger in migrations.go is kept ready for post-release
changes.
*/
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates sequences and core tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries returns the schema DDL in dependency order.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_idp_provider_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_idp_provider_version_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_sp_provider_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_sp_provider_version_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_user_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_user_version_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_composite_version_key_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_connected_service_version_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_activity_event_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_connected_service_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_activity_log_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_job_id START 1`,

		`CREATE TABLE IF NOT EXISTS idp_providers (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_idp_provider_id'),
			entity_id TEXT NOT NULL,
			entity_id_hash TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS idp_provider_versions (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_idp_provider_version_id'),
			provider_id BIGINT NOT NULL,
			metadata TEXT NOT NULL,
			metadata_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (provider_id, metadata_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS sp_providers (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sp_provider_id'),
			entity_id TEXT NOT NULL,
			entity_id_hash TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sp_provider_versions (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sp_provider_version_id'),
			provider_id BIGINT NOT NULL,
			metadata TEXT NOT NULL,
			metadata_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (provider_id, metadata_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_user_id'),
			user_id_hash TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_versions (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_user_version_id'),
			user_id BIGINT NOT NULL,
			attributes TEXT NOT NULL,
			attributes_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (user_id, attributes_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS composite_version_keys (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_composite_version_key_id'),
			idp_version_id BIGINT NOT NULL,
			sp_version_id BIGINT NOT NULL,
			user_version_id BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (idp_version_id, sp_version_id, user_version_id)
		)`,

		`CREATE TABLE IF NOT EXISTS connected_service_versions (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_connected_service_version_id'),
			composite_version_id BIGINT NOT NULL UNIQUE,
			first_authentication_at BIGINT NOT NULL,
			last_authentication_at BIGINT NOT NULL,
			count BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activity_events (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_activity_event_id'),
			composite_version_id BIGINT NOT NULL,
			happened_at BIGINT NOT NULL,
			client_ip TEXT,
			protocol TEXT,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS connected_services (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_connected_service_id'),
			sp_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			first_authentication_at BIGINT NOT NULL,
			last_authentication_at BIGINT NOT NULL,
			count BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (sp_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS activity_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_activity_log_id'),
			sp_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			happened_at BIGINT NOT NULL,
			client_ip TEXT,
			protocol TEXT,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_job_id'),
			type TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS failed_jobs (
			id BIGINT PRIMARY KEY,
			type TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}
}

// createIndexes creates indexes for the common query patterns.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		// Version-chain "latest for X" lookups
		`CREATE INDEX IF NOT EXISTS idx_idp_versions_provider ON idp_provider_versions(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sp_versions_provider ON sp_provider_versions(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_versions_user ON user_versions(user_id)`,

		// Touch: all composites sharing a (sp, user) pair
		`CREATE INDEX IF NOT EXISTS idx_composite_sp_version ON composite_version_keys(sp_version_id)`,
		`CREATE INDEX IF NOT EXISTS idx_composite_user_version ON composite_version_keys(user_version_id)`,

		// "Most recently used services" range scans and retention sweeps
		`CREATE INDEX IF NOT EXISTS idx_csv_updated_at ON connected_service_versions(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cs_updated_at ON connected_services(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cs_user ON connected_services(user_id)`,

		// Activity history and retention sweeps
		`CREATE INDEX IF NOT EXISTS idx_activity_events_happened ON activity_events(happened_at)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_composite ON activity_events(composite_version_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_log_happened ON activity_log(happened_at)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id, happened_at)`,

		// Oldest-first dequeue per job type
		`CREATE INDEX IF NOT EXISTS idx_jobs_type_id ON jobs(type, id)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
