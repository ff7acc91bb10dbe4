// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/tomtom215/authtally/internal/models"
)

// Scheme is one aggregation strategy for resolved authentication events.
//
// The versioned scheme keys counters and activity on the full version
// composite (idp version, sp version, user version); the current scheme keys
// them on the (sp, user) entity pair. Both answer the same read queries.
type Scheme interface {
	// Name returns the scheme's registry name.
	Name() string

	// Record accounts one resolved authentication event: bumps the matching
	// counter and appends one activity row.
	Record(ctx context.Context, resolved *models.ResolvedEvent, state *models.AuthenticationState) error

	// ConnectedServices returns the services a user has authenticated to,
	// most recently used first.
	ConnectedServices(ctx context.Context, userHash string, limit int) ([]models.ConnectedService, error)

	// Activity returns the user's authentication history, most recent first.
	Activity(ctx context.Context, userHash string, limit, offset int) ([]models.ActivityEvent, error)

	// DeleteActivityOlderThan removes activity rows that happened before the
	// cutoff (epoch seconds) and returns the number deleted.
	DeleteActivityOlderThan(ctx context.Context, cutoff int64) (int64, error)

	// DeleteCountersIdleSince removes counter rows not updated since the
	// cutoff (epoch seconds) and returns the number deleted.
	DeleteCountersIdleSince(ctx context.Context, cutoff int64) (int64, error)
}

// SchemeFactory constructs a scheme on top of an initialized database.
type SchemeFactory func(db *sql.DB) Scheme

var schemeRegistry = map[string]SchemeFactory{}

// RegisterScheme adds a scheme factory under a unique name. Called from
// package init functions; duplicate registration is a programming error.
func RegisterScheme(name string, factory SchemeFactory) {
	if _, exists := schemeRegistry[name]; exists {
		panic(fmt.Sprintf("accounting scheme %q registered twice", name))
	}
	schemeRegistry[name] = factory
}

// NewScheme constructs the named scheme. The name has been validated by the
// configuration layer, so an unknown name here indicates a registry drift.
func NewScheme(name string, db *sql.DB) (Scheme, error) {
	factory, ok := schemeRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown accounting scheme %q (registered: %v)", name, SchemeNames())
	}
	return factory(db), nil
}

// SchemeNames returns the registered scheme names in sorted order.
func SchemeNames() []string {
	names := make([]string, 0, len(schemeRegistry))
	for name := range schemeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
