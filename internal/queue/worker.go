// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/models"
)

// Handler processes one claimed job. A non-nil error sends the job to the
// dead-letter table; it is never re-queued automatically.
type Handler func(ctx context.Context, job *models.Job) error

// Worker drains the queue for one job type. It implements suture.Service:
// Serve runs until the context is canceled and returns the cancellation
// cause, letting the supervisor restart it on unexpected errors.
//
// Empty polls back off exponentially from PollInterval up to
// MaxPollInterval; a successful claim resets the backoff.
type Worker struct {
	store   *Store
	cfg     *config.QueueConfig
	handler Handler
}

// NewWorker creates a worker bound to a handler.
func NewWorker(store *Store, cfg *config.QueueConfig, handler Handler) *Worker {
	return &Worker{
		store:   store,
		cfg:     cfg,
		handler: handler,
	}
}

// String names the worker in supervisor logs.
func (w *Worker) String() string {
	return fmt.Sprintf("queue-worker[%s]", w.cfg.JobType)
}

// Serve runs the dequeue loop until the context is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.PollInterval
	b.MaxInterval = w.cfg.MaxPollInterval
	b.MaxElapsedTime = 0 // poll forever

	logging.Info().Str("job_type", w.cfg.JobType).Msg("Queue worker started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.store.Dequeue(ctx, w.cfg.JobType)
		switch {
		case err == nil:
			b.Reset()
			w.process(ctx, job)

		case errors.Is(err, ErrEmpty):
			if err := sleepCtx(ctx, b.NextBackOff()); err != nil {
				return err
			}

		case errors.Is(err, ErrContention):
			// Other consumers are draining the queue; no work lost.
			logging.Debug().Str("job_type", w.cfg.JobType).Msg("Dequeue contention, backing off")
			if err := sleepCtx(ctx, b.NextBackOff()); err != nil {
				return err
			}

		default:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("queue worker dequeue failed: %w", err)
		}
	}
}

// process runs the handler on a claimed job. The job is already deleted from
// the queue, so a handler failure dead-letters it instead of re-queueing.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	if err := w.handler(ctx, job); err != nil {
		logging.Warn().
			Err(err).
			Int64("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Job handler failed, moving job to dead letter table")
		if err := w.store.MarkFailed(ctx, job); err != nil {
			logging.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to dead-letter job")
		}
		return
	}

	logging.Debug().Int64("job_id", job.ID).Str("job_type", job.Type).Msg("Job processed")
}

// sleepCtx waits for the duration or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
