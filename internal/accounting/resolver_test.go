// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package accounting

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/tomtom215/authtally/internal/database"
	"github.com/tomtom215/authtally/internal/models"
)

func newTestConn(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func testState() *models.AuthenticationState {
	return &models.AuthenticationState{
		IdpEntityID:    "https://idp.example.org/metadata",
		IdpMetadata:    map[string]any{"display_name": "Example IdP"},
		SpEntityID:     "https://sp.example.org/metadata",
		SpMetadata:     map[string]any{"display_name": "Example SP"},
		UserID:         "alice@example.org",
		UserAttributes: map[string]any{"displayName": "Alice", "eduPersonAffiliation": "staff"},
		ClientIP:       "203.0.113.10",
		Protocol:       "saml2",
		HappenedAt:     1700000000,
	}
}

func TestResolveSameStateYieldsSameIDs(t *testing.T) {
	resolver := NewResolver(newTestConn(t))
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if *first != *second {
		t.Errorf("identical states resolved differently: %+v vs %+v", first, second)
	}
}

func TestResolveDistinctEntities(t *testing.T) {
	resolver := NewResolver(newTestConn(t))
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	other := testState()
	other.SpEntityID = "https://other-sp.example.org/metadata"
	second, err := resolver.Resolve(ctx, other)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if first.SpID == second.SpID {
		t.Error("distinct sp entities must resolve to distinct ids")
	}
	if first.IdpID != second.IdpID || first.UserID != second.UserID {
		t.Error("shared idp and user must resolve to the same ids")
	}
}

func TestVersionChainGrowsOnMetadataChange(t *testing.T) {
	conn := newTestConn(t)
	resolver := NewResolver(conn)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	changed := testState()
	changed.SpMetadata = map[string]any{"display_name": "Renamed SP"}
	second, err := resolver.Resolve(ctx, changed)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if first.SpID != second.SpID {
		t.Error("metadata change must not create a new entity")
	}
	if first.SpVersionID == second.SpVersionID {
		t.Error("metadata change must create a new version")
	}

	var versions int
	err = conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sp_provider_versions WHERE provider_id = ?`, first.SpID).Scan(&versions)
	if err != nil {
		t.Fatalf("version count query failed: %v", err)
	}
	if versions != 2 {
		t.Errorf("version rows = %d, want 2", versions)
	}
}

func TestVersionChainReusesEarlierContent(t *testing.T) {
	conn := newTestConn(t)
	resolver := NewResolver(conn)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	changed := testState()
	changed.UserAttributes = map[string]any{"displayName": "Alice Cooper"}
	if _, err := resolver.Resolve(ctx, changed); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Attributes flip back to the original content; the original version row
	// is reused instead of a third one being appended.
	reverted, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if reverted.UserVersionID != first.UserVersionID {
		t.Errorf("reverted content resolved to version %d, want original %d",
			reverted.UserVersionID, first.UserVersionID)
	}

	var versions int
	err = conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_versions WHERE user_id = ?`, first.UserID).Scan(&versions)
	if err != nil {
		t.Fatalf("version count query failed: %v", err)
	}
	if versions != 2 {
		t.Errorf("version rows = %d, want 2", versions)
	}
}

func TestAttributeOrderDoesNotCreateVersions(t *testing.T) {
	resolver := NewResolver(newTestConn(t))
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, testState())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	reordered := testState()
	reordered.UserAttributes = map[string]any{"eduPersonAffiliation": "staff", "displayName": "Alice"}
	second, err := resolver.Resolve(ctx, reordered)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if first.UserVersionID != second.UserVersionID {
		t.Error("map insertion order must not affect version identity")
	}
}

func TestRawUserIdentifierNeverPersisted(t *testing.T) {
	conn := newTestConn(t)
	resolver := NewResolver(conn)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, testState()); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var count int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE user_id_hash = ?`, "alice@example.org").Scan(&count)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Error("raw user identifier found in users table")
	}
}

func TestConcurrentResolveConverges(t *testing.T) {
	conn := newTestConn(t)
	resolver := NewResolver(conn)
	ctx := context.Background()

	const goroutines = 8
	results := make([]*models.ResolvedEvent, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = resolver.Resolve(ctx, testState())
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d failed: %v", i, errs[i])
		}
		if *results[i] != *results[0] {
			t.Errorf("goroutine %d resolved %+v, want %+v", i, results[i], results[0])
		}
	}

	var entities int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&entities); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if entities != 1 {
		t.Errorf("user rows = %d, want 1", entities)
	}
}
