// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package queue

import (
	"context"

	"github.com/tomtom215/authtally/internal/models"
)

// Recorder accounts one authentication state. Satisfied by
// accounting.Tracker.
type Recorder interface {
	RecordAuthentication(ctx context.Context, state *models.AuthenticationState) error
}

// NewAuthenticationHandler returns the handler for authentication-event
// jobs: decode the queued state and run it through the accounting pipeline.
// Decode and validation failures dead-letter the job via the worker.
func NewAuthenticationHandler(store *Store, recorder Recorder) Handler {
	return func(ctx context.Context, job *models.Job) error {
		var state models.AuthenticationState
		if err := store.DecodePayload(job, &state); err != nil {
			return err
		}
		return recorder.RecordAuthentication(ctx, &state)
	}
}
