// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Package queue implements a durable job queue on the relational store.
//
// The queue needs no transactions and no row locks. Claiming a job is a
// delete race: every consumer selects the oldest candidate and tries to
// DELETE it by id. The database executes each DELETE atomically, so exactly
// one consumer observes RowsAffected == 1 and owns the job; everyone else
// retries on the next-oldest row. A job is therefore processed at most once.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/authtally/internal/metrics"
	"github.com/tomtom215/authtally/internal/models"
)

// ErrEmpty is returned by Dequeue when no job of the requested type is
// pending.
var ErrEmpty = errors.New("queue: no pending jobs")

// ErrContention is returned when every claim attempt lost its delete race.
// The queue itself is consistent; the caller should back off and retry.
var ErrContention = errors.New("queue: lost all claim attempts")

// Store is the DuckDB-backed job queue.
type Store struct {
	db                *sql.DB
	serializer        Serializer
	maxDeleteAttempts int
}

// NewStore creates a queue store. maxDeleteAttempts bounds the claim-retry
// loop in Dequeue; values below 1 fall back to 1.
func NewStore(db *sql.DB, serializer Serializer, maxDeleteAttempts int) *Store {
	if maxDeleteAttempts < 1 {
		maxDeleteAttempts = 1
	}
	return &Store{
		db:                db,
		serializer:        serializer,
		maxDeleteAttempts: maxDeleteAttempts,
	}
}

// Serializer returns the payload codec used by this store.
func (s *Store) Serializer() Serializer {
	return s.serializer
}

// Enqueue serializes the payload and appends a job. Returns the job id.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload any) (int64, error) {
	data, err := s.serializer.Marshal(payload)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `INSERT INTO jobs (type, payload, created_at)
		VALUES (?, ?, ?) RETURNING id`,
		jobType, data, time.Now().Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.JobsEnqueued.WithLabelValues(jobType).Inc()
	return id, nil
}

// Dequeue claims the oldest pending job of the given type.
//
// Claim protocol: select the oldest candidate, then DELETE it by id. A
// RowsAffected of 1 means this consumer won the row; 0 means another consumer
// deleted it first and the loop retries with the next candidate. When all
// maxDeleteAttempts claim attempts lose their race the call gives up with
// ErrContention rather than spinning unbounded under pathological load.
func (s *Store) Dequeue(ctx context.Context, jobType string) (*models.Job, error) {
	for attempt := 0; attempt < s.maxDeleteAttempts; attempt++ {
		job, err := s.oldestPending(ctx, jobType)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, ErrEmpty
		}

		result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %d: %w", job.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get claim result for job %d: %w", job.ID, err)
		}
		if affected == 1 {
			metrics.JobsClaimed.WithLabelValues(jobType).Inc()
			return job, nil
		}
		// Lost the race; another consumer owns this job now.
	}

	metrics.DequeueContention.Inc()
	return nil, ErrContention
}

// oldestPending returns the oldest job of the given type, or nil when none
// is pending.
func (s *Store) oldestPending(ctx context.Context, jobType string) (*models.Job, error) {
	var job models.Job
	err := s.db.QueryRowContext(ctx, `SELECT id, type, payload, created_at FROM jobs
		WHERE type = ? ORDER BY id LIMIT 1`, jobType).
		Scan(&job.ID, &job.Type, &job.Payload, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select oldest job: %w", err)
	}
	return &job, nil
}

// DecodePayload decodes a claimed job's payload into v.
func (s *Store) DecodePayload(job *models.Job, v any) error {
	return s.serializer.Unmarshal(job.Payload, v)
}

// MarkFailed moves a claimed job to the dead-letter table, preserving its
// original id and enqueue time. Idempotent: re-marking the same job is a
// no-op thanks to the primary key.
func (s *Store) MarkFailed(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO failed_jobs (id, type, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		job.ID, job.Type, job.Payload, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record failed job %d: %w", job.ID, err)
	}
	metrics.JobsFailed.WithLabelValues(job.Type).Inc()
	return nil
}

// Stats describes the queue's current state.
type Stats struct {
	Pending       int64            `json:"pending"`
	PendingByType map[string]int64 `json:"pending_by_type"`
	Failed        int64            `json:"failed"`

	// OldestPendingAt is the enqueue time (epoch seconds) of the oldest
	// pending job, zero when the queue is empty.
	OldestPendingAt int64 `json:"oldest_pending_at,omitempty"`
}

// Stats returns pending and failed job counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{PendingByType: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM jobs GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobType string
		var count int64
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats.PendingByType[jobType] = count
		stats.Pending += count
		metrics.QueueDepth.WithLabelValues(jobType).Set(float64(count))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&stats.Failed); err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}

	var oldest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(created_at) FROM jobs`).Scan(&oldest); err != nil {
		return nil, fmt.Errorf("failed to get oldest pending job: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Int64
	}

	return stats, nil
}
