// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package hashing

import (
	"strings"
	"testing"
)

func TestHashKnownValue(t *testing.T) {
	// SHA-256 of "abc" is a well-known test vector.
	got := Hash("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Hash(\"abc\") = %s, want %s", got, want)
	}
}

func TestHashLength(t *testing.T) {
	for _, input := range []string{"", "x", "https://idp.example.org/metadata"} {
		if got := Hash(input); len(got) != DigestLength {
			t.Errorf("Hash(%q) length = %d, want %d", input, len(got), DigestLength)
		}
	}
}

func TestHashIsLowerHex(t *testing.T) {
	digest := Hash("entity-id")
	if strings.ToLower(digest) != digest {
		t.Errorf("digest should be lowercase hex: %s", digest)
	}
	for _, c := range digest {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("digest contains non-hex character %q", c)
		}
	}
}

func TestHashStructuredOrderIndependent(t *testing.T) {
	a := map[string]any{
		"displayName": "Alice",
		"mail":        "alice@example.org",
		"groups":      []any{"staff", "admin"},
	}
	b := map[string]any{
		"groups":      []any{"staff", "admin"},
		"mail":        "alice@example.org",
		"displayName": "Alice",
	}

	ha, err := HashStructured(a)
	if err != nil {
		t.Fatalf("HashStructured(a) failed: %v", err)
	}
	hb, err := HashStructured(b)
	if err != nil {
		t.Fatalf("HashStructured(b) failed: %v", err)
	}
	if ha != hb {
		t.Errorf("identical maps hashed differently: %s vs %s", ha, hb)
	}
}

func TestHashStructuredNestedOrderIndependent(t *testing.T) {
	a := map[string]any{
		"contacts": map[string]any{"technical": "ops@example.org", "support": "help@example.org"},
		"name":     "Example SP",
	}
	b := map[string]any{
		"name":     "Example SP",
		"contacts": map[string]any{"support": "help@example.org", "technical": "ops@example.org"},
	}

	ha, _ := HashStructured(a)
	hb, _ := HashStructured(b)
	if ha != hb {
		t.Errorf("nested maps with reordered keys hashed differently")
	}
}

func TestHashStructuredDetectsChange(t *testing.T) {
	base := map[string]any{"name": "Example SP", "url": "https://sp.example.org"}
	changed := map[string]any{"name": "Example SP", "url": "https://sp.example.com"}

	hBase, _ := HashStructured(base)
	hChanged, _ := HashStructured(changed)
	if hBase == hChanged {
		t.Error("different metadata content produced identical digests")
	}
}

func TestHashStructuredListOrderSignificant(t *testing.T) {
	a := map[string]any{"groups": []any{"admin", "staff"}}
	b := map[string]any{"groups": []any{"staff", "admin"}}

	ha, _ := HashStructured(a)
	hb, _ := HashStructured(b)
	if ha == hb {
		t.Error("list element order should be significant")
	}
}

func TestHashStructuredNil(t *testing.T) {
	h1, err := HashStructured(nil)
	if err != nil {
		t.Fatalf("HashStructured(nil) failed: %v", err)
	}
	h2, err := HashStructured(map[string]any{})
	if err != nil {
		t.Fatalf("HashStructured(empty) failed: %v", err)
	}
	// nil marshals to "null", empty map to "{}"; they are distinct contents.
	if h1 == h2 {
		t.Error("nil and empty map should hash differently")
	}
}
