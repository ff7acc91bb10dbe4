// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package models defines the shared data structures exchanged between the
// accounting pipeline, the job queue, and the HTTP API.
package models

// AuthenticationState is the normalized view of one authentication event,
// produced by a protocol adapter (SAML2, OIDC) upstream of this service.
//
// UserID carries the raw user-identifier attribute value. It is hashed before
// any persistence; the raw identifier never reaches storage.
type AuthenticationState struct {
	IdpEntityID    string         `json:"idp_entity_id"`
	IdpMetadata    map[string]any `json:"idp_metadata"`
	SpEntityID     string         `json:"sp_entity_id"`
	SpMetadata     map[string]any `json:"sp_metadata"`
	UserID         string         `json:"user_id"`
	UserAttributes map[string]any `json:"user_attributes"`
	ClientIP       string         `json:"client_ip,omitempty"`
	Protocol       string         `json:"protocol,omitempty"`

	// HappenedAt is the authentication timestamp in epoch seconds.
	HappenedAt int64 `json:"happened_at"`
}

// Provider is one distinct identity or service provider entity.
// Lookups are always by EntityIDHash, never by the raw entity id.
type Provider struct {
	ID           int64  `json:"id"`
	EntityID     string `json:"entity_id"`
	EntityIDHash string `json:"entity_id_hash"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// ProviderVersion is one distinct metadata content ever observed for a
// provider. Rows are append-only; a new row is created only when the metadata
// hash differs from the most recent version.
type ProviderVersion struct {
	ID           int64  `json:"id"`
	ProviderID   int64  `json:"provider_id"`
	Metadata     []byte `json:"metadata"`
	MetadataHash string `json:"metadata_hash"`
	CreatedAt    int64  `json:"created_at"`
}

// User is one distinct hashed user identifier.
type User struct {
	ID         int64  `json:"id"`
	UserIDHash string `json:"user_id_hash"`
	CreatedAt  int64  `json:"created_at"`
}

// UserVersion is one distinct attribute-map content observed for a user.
type UserVersion struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	Attributes     []byte `json:"attributes"`
	AttributesHash string `json:"attributes_hash"`
	CreatedAt      int64  `json:"created_at"`
}

// ResolvedEvent carries the resolved integer ids for one authentication
// event. It is the only currency passed between the resolver and the
// aggregation/activity components.
type ResolvedEvent struct {
	IdpID         int64
	IdpVersionID  int64
	SpID          int64
	SpVersionID   int64
	UserID        int64
	UserVersionID int64
}

// ConnectedService is one aggregated "user U has used service S" row as
// returned to API consumers: totals across all version combinations.
type ConnectedService struct {
	SpEntityID            string         `json:"sp_entity_id"`
	SpMetadata            map[string]any `json:"sp_metadata,omitempty"`
	Count                 int64          `json:"count"`
	FirstAuthenticationAt int64          `json:"first_authentication_at"`
	LastAuthenticationAt  int64          `json:"last_authentication_at"`
}

// ActivityEvent is one row of a user's authentication history as returned to
// API consumers, most recent first.
type ActivityEvent struct {
	SpEntityID string         `json:"sp_entity_id"`
	SpMetadata map[string]any `json:"sp_metadata,omitempty"`
	HappenedAt int64          `json:"happened_at"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Protocol   string         `json:"protocol,omitempty"`
}

// Job is one durable unit of deferred work. Payload is opaque serialized
// bytes; Type selects the handler on the worker side.
type Job struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Payload   []byte `json:"payload"`
	CreatedAt int64  `json:"created_at"`
}
