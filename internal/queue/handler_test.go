// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package queue

import (
	"context"
	"testing"

	"github.com/tomtom215/authtally/internal/models"
)

type fakeRecorder struct {
	states []*models.AuthenticationState
	err    error
}

func (f *fakeRecorder) RecordAuthentication(ctx context.Context, state *models.AuthenticationState) error {
	if f.err != nil {
		return f.err
	}
	f.states = append(f.states, state)
	return nil
}

func TestAuthenticationHandlerRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := models.AuthenticationState{
		IdpEntityID: "https://idp.example.org",
		SpEntityID:  "https://sp.example.org",
		UserID:      "alice@example.org",
		HappenedAt:  1700000000,
	}
	if _, err := store.Enqueue(ctx, testJobType, state); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	job, err := store.Dequeue(ctx, testJobType)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}

	recorder := &fakeRecorder{}
	handler := NewAuthenticationHandler(store, recorder)
	if err := handler(ctx, job); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if len(recorder.states) != 1 {
		t.Fatalf("recorded states = %d, want 1", len(recorder.states))
	}
	if recorder.states[0].UserID != state.UserID || recorder.states[0].HappenedAt != state.HappenedAt {
		t.Errorf("recorded state = %+v, want %+v", recorder.states[0], state)
	}
}

func TestAuthenticationHandlerRejectsGarbagePayload(t *testing.T) {
	store := newTestStore(t)
	handler := NewAuthenticationHandler(store, &fakeRecorder{})

	job := &models.Job{ID: 1, Type: testJobType, Payload: []byte("{not json")}
	if err := handler(context.Background(), job); err == nil {
		t.Error("expected decode error for garbage payload")
	}
}
