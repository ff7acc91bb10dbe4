// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package config provides centralized configuration management for Authtally.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"time"
)

// Accounting scheme tags. Both schemes share the versioned entity tables;
// they differ in the key the connected-service counters aggregate on.
const (
	// SchemeVersioned aggregates on the (IdP version, SP version, user
	// version) composite key.
	SchemeVersioned = "versioned"

	// SchemeCurrent aggregates on the (SP, user) entity pair.
	SchemeCurrent = "current"
)

// Accounting processing modes.
const (
	// ModeSync processes authentication events inline with the request.
	ModeSync = "sync"

	// ModeAsync serializes events into the job queue for the worker.
	ModeAsync = "async"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Accounting AccountingConfig `koanf:"accounting"`
	Queue      QueueConfig      `koanf:"queue"`
	Retention  RetentionConfig  `koanf:"retention"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (":memory:" for ephemeral storage)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 1GB)
//   - DUCKDB_THREADS: Worker threads, 0 = runtime.NumCPU()
type DatabaseConfig struct {
	Path                   string `koanf:"path" validate:"required"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads" validate:"min=0"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host" validate:"required"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"min=1s"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AccountingConfig selects the aggregation scheme and processing mode.
//
// Scheme picks which connected-service key the aggregator uses:
//   - "versioned": one counter per exact (IdP metadata, SP metadata, user
//     attributes) combination, with a denormalized activity touch per
//     (SP, user) pair
//   - "current": one counter per (SP, user) pair
//
// Mode picks where recording happens:
//   - "sync": inline in the API request
//   - "async": enqueued as a job and drained by the worker process
type AccountingConfig struct {
	Scheme string `koanf:"scheme" validate:"oneof=versioned current"`
	Mode   string `koanf:"mode" validate:"oneof=sync async"`
}

// QueueConfig holds job queue and worker settings.
type QueueConfig struct {
	// JobType tags authentication-event jobs in the jobs table.
	JobType string `koanf:"job_type" validate:"required"`

	// Serializer selects the payload codec: "json" or "gob".
	Serializer string `koanf:"serializer" validate:"oneof=json gob"`

	// PollInterval is the worker's initial delay after an empty dequeue.
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=10ms"`

	// MaxPollInterval caps the worker's exponential backoff.
	MaxPollInterval time.Duration `koanf:"max_poll_interval" validate:"min=10ms"`

	// MaxDeleteAttempts bounds the dequeue claim-retry loop. Tunable; the
	// default of 3 converts pathological contention into a loud error
	// instead of a silent spin.
	MaxDeleteAttempts int `koanf:"max_delete_attempts" validate:"min=1"`
}

// RetentionConfig holds the background sweeper settings. Versioned entity
// metadata is never swept; only activity rows and connected-service counters
// older than MaxAge are deleted.
type RetentionConfig struct {
	Enabled       bool          `koanf:"enabled"`
	MaxAge        time.Duration `koanf:"max_age" validate:"min=1h"`
	CheckInterval time.Duration `koanf:"check_interval" validate:"min=1m"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/authtally.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8464,
			Timeout:           30 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Accounting: AccountingConfig{
			Scheme: SchemeVersioned,
			Mode:   ModeSync,
		},
		Queue: QueueConfig{
			JobType:           "authentication-event",
			Serializer:        "json",
			PollInterval:      time.Second,
			MaxPollInterval:   30 * time.Second,
			MaxDeleteAttempts: 3,
		},
		Retention: RetentionConfig{
			Enabled:       false, // Opt-in: accounting data is kept indefinitely by default
			MaxAge:        365 * 24 * time.Hour,
			CheckInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
