// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Accounting.Scheme != SchemeVersioned {
		t.Errorf("default scheme = %q, want %q", cfg.Accounting.Scheme, SchemeVersioned)
	}
	if cfg.Accounting.Mode != ModeSync {
		t.Errorf("default mode = %q, want %q", cfg.Accounting.Mode, ModeSync)
	}
	if cfg.Queue.MaxDeleteAttempts != 3 {
		t.Errorf("default max delete attempts = %d, want 3", cfg.Queue.MaxDeleteAttempts)
	}
	if cfg.Retention.Enabled {
		t.Error("retention should be opt-in")
	}
}

func TestValidateRejectsBadScheme(t *testing.T) {
	cfg := defaultConfig()
	cfg.Accounting.Scheme = "hybrid"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown scheme")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Accounting.Mode = "batch"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown mode")
	}
}

func TestValidateRejectsBadSerializer(t *testing.T) {
	cfg := defaultConfig()
	cfg.Queue.Serializer = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown serializer")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for port 0")
	}

	cfg = defaultConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for port > 65535")
	}
}

func TestValidateRejectsEmptyDatabasePath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty database path")
	}
}

func TestValidateRejectsZeroDeleteAttempts(t *testing.T) {
	cfg := defaultConfig()
	cfg.Queue.MaxDeleteAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero delete attempts")
	}
}

func TestValidateCrossFieldPollIntervals(t *testing.T) {
	cfg := defaultConfig()
	cfg.Queue.PollInterval = time.Minute
	cfg.Queue.MaxPollInterval = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when max poll interval < poll interval")
	}
}

func TestValidateCrossFieldRetention(t *testing.T) {
	cfg := defaultConfig()
	cfg.Retention.Enabled = true
	cfg.Retention.MaxAge = 2 * time.Hour
	cfg.Retention.CheckInterval = 3 * time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when check interval exceeds max age")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DUCKDB_PATH", ":memory:")
	t.Setenv("ACCOUNTING_SCHEME", "current")
	t.Setenv("ACCOUNTING_MODE", "async")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("QUEUE_MAX_DELETE_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != ":memory:" {
		t.Errorf("database path = %q, want :memory:", cfg.Database.Path)
	}
	if cfg.Accounting.Scheme != SchemeCurrent {
		t.Errorf("scheme = %q, want current", cfg.Accounting.Scheme)
	}
	if cfg.Accounting.Mode != ModeAsync {
		t.Errorf("mode = %q, want async", cfg.Accounting.Mode)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Queue.MaxDeleteAttempts != 5 {
		t.Errorf("max delete attempts = %d, want 5", cfg.Queue.MaxDeleteAttempts)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("ACCOUNTING_SCHEME", "nonsense")

	if _, err := Load(); err == nil {
		t.Error("expected Load to fail on invalid scheme from environment")
	}
}

func TestEnvTransformIgnoresUnknownVars(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("unknown env var should map to empty path, got %q", got)
	}
	if got := envTransformFunc("DUCKDB_PATH"); got != "database.path" {
		t.Errorf("DUCKDB_PATH mapped to %q", got)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("DUCKDB_PATH", ":memory:")
	t.Setenv("CORS_ORIGINS", "https://a.example.org, https://b.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("cors origins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[0] != "https://a.example.org" {
		t.Errorf("first origin = %q", cfg.Server.CORSOrigins[0])
	}
}
