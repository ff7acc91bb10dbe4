// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package hashing provides deterministic content hashing for entity identity
// resolution and version-chain change detection.
//
// All digests are 64-character hex SHA-256. Structured values are
// canonicalized before hashing so that two semantically identical attribute
// maps produce the same digest regardless of insertion order.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// DigestLength is the length of a hex-encoded SHA-256 digest.
const DigestLength = 64

// Hash returns the hex SHA-256 digest of the given string.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the hex SHA-256 digest of the given bytes.
func HashBytes(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}

// HashStructured returns the hex SHA-256 digest of a structured attribute map.
// The map is serialized to canonical JSON first; JSON encoding sorts object
// keys at every nesting level, which gives a stable byte representation for
// semantically identical maps.
func HashStructured(value map[string]any) (string, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}

// Canonicalize returns the canonical JSON encoding of a structured map.
// Exposed separately because version rows persist the canonical form
// alongside its digest.
func Canonicalize(value map[string]any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize structured value: %w", err)
	}
	return data, nil
}
