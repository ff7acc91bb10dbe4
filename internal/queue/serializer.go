// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package queue

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Serializer encodes job payloads for durable storage. Implementations must
// round-trip any payload the worker handlers accept.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var serializerRegistry = map[string]Serializer{}

// RegisterSerializer adds a payload codec under a unique name. Called from
// package init functions; duplicate registration is a programming error.
func RegisterSerializer(s Serializer) {
	if _, exists := serializerRegistry[s.Name()]; exists {
		panic(fmt.Sprintf("queue serializer %q registered twice", s.Name()))
	}
	serializerRegistry[s.Name()] = s
}

// NewSerializer returns the named codec. The name has been validated by the
// configuration layer, so an unknown name here indicates a registry drift.
func NewSerializer(name string) (Serializer, error) {
	s, ok := serializerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue serializer %q (registered: %v)", name, SerializerNames())
	}
	return s, nil
}

// SerializerNames returns the registered codec names in sorted order.
func SerializerNames() []string {
	names := make([]string, 0, len(serializerRegistry))
	for name := range serializerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterSerializer(jsonSerializer{})
	RegisterSerializer(gobSerializer{})
}

// jsonSerializer is the default codec: payloads stay inspectable with plain
// SQL during debugging.
type jsonSerializer struct{}

func (jsonSerializer) Name() string { return "json" }

func (jsonSerializer) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return data, nil
}

func (jsonSerializer) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	return nil
}

// gobSerializer trades readability for compactness and exact Go type
// round-tripping.
type gobSerializer struct{}

func (gobSerializer) Name() string { return "gob" }

func (gobSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to gob-encode job payload: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobSerializer) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("failed to gob-decode job payload: %w", err)
	}
	return nil
}
