// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authtally/internal/accounting"
	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/hashing"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/models"
	"github.com/tomtom215/authtally/internal/queue"
	"github.com/tomtom215/authtally/internal/retention"
)

// maxEventBodySize caps the ingest request body at 1 MiB. Authentication
// states are small; anything larger is malformed or hostile.
const maxEventBodySize = 1 << 20

// Pinger reports storage liveness. Satisfied by database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler implements the HTTP endpoints.
type Handler struct {
	tracker *accounting.Tracker
	store   *queue.Store
	sweeper *retention.Sweeper
	db      Pinger
	cfg     *config.Config
}

// NewHandler creates the endpoint handler. sweeper may be nil when retention
// is disabled; the manual sweep endpoint then reports conflict.
func NewHandler(tracker *accounting.Tracker, store *queue.Store, sweeper *retention.Sweeper, db Pinger, cfg *config.Config) *Handler {
	return &Handler{
		tracker: tracker,
		store:   store,
		sweeper: sweeper,
		db:      db,
		cfg:     cfg,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type eventResponse struct {
	Status   string `json:"status"` // "recorded" or "enqueued"
	UserHash string `json:"user_hash"`
	JobID    int64  `json:"job_id,omitempty"`
}

// RecordEvent handles POST /api/v1/events. In sync mode the event is
// accounted inline; in async mode it is enqueued for the worker.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var state models.AuthenticationState
	body := http.MaxBytesReader(w, r.Body, maxEventBodySize)
	if err := json.NewDecoder(body).Decode(&state); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	userHash := hashing.Hash(state.UserID)

	if h.cfg.Accounting.Mode == config.ModeAsync {
		jobID, err := h.store.Enqueue(r.Context(), h.cfg.Queue.JobType, &state)
		if err != nil {
			h.writeError(w, r, http.StatusInternalServerError, "failed to enqueue event")
			logging.Error().Err(err).Msg("Enqueue failed")
			return
		}
		h.writeJSON(w, http.StatusAccepted, eventResponse{Status: "enqueued", UserHash: userHash, JobID: jobID})
		return
	}

	if err := h.tracker.RecordAuthentication(r.Context(), &state); err != nil {
		var verr *accounting.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, r, http.StatusBadRequest, verr.Error())
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, "failed to record event")
		logging.Error().Err(err).Msg("Record failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, eventResponse{Status: "recorded", UserHash: userHash})
}

// ConnectedServices handles GET /api/v1/users/{hash}/connected-services.
func (h *Handler) ConnectedServices(w http.ResponseWriter, r *http.Request) {
	userHash := chi.URLParam(r, "hash")
	limit := queryInt(r, "limit", 0)

	services, err := h.tracker.ConnectedServices(r.Context(), userHash, limit)
	if err != nil {
		h.writeReadError(w, r, err)
		return
	}
	if services == nil {
		services = []models.ConnectedService{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_hash":          userHash,
		"connected_services": services,
	})
}

// Activity handles GET /api/v1/users/{hash}/activity.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	userHash := chi.URLParam(r, "hash")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	activity, err := h.tracker.Activity(r.Context(), userHash, limit, offset)
	if err != nil {
		h.writeReadError(w, r, err)
		return
	}
	if activity == nil {
		activity = []models.ActivityEvent{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_hash": userHash,
		"activity":  activity,
		"offset":    offset,
	})
}

// JobStats handles GET /api/v1/jobs/stats.
func (h *Handler) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to read queue stats")
		logging.Error().Err(err).Msg("Queue stats failed")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// SweepRetention handles POST /api/v1/retention/sweep, running one manual
// sweep outside the background schedule.
func (h *Handler) SweepRetention(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		h.writeError(w, r, http.StatusConflict, "retention is disabled")
		return
	}

	activity, counters, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "retention sweep failed")
		logging.Error().Err(err).Msg("Manual retention sweep failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"activity_deleted": activity,
		"counters_deleted": counters,
	})
}

// HealthLive handles GET /api/v1/health/live: process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /api/v1/health/ready: storage reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"scheme": h.tracker.SchemeName(),
		"mode":   h.cfg.Accounting.Mode,
	})
}

// writeReadError maps read-path failures: validation problems are the
// caller's fault, everything else is ours.
func (h *Handler) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *accounting.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, r, http.StatusBadRequest, verr.Error())
		return
	}
	h.writeError(w, r, http.StatusInternalServerError, "query failed")
	logging.Error().Err(err).Str("path", r.URL.Path).Msg("Read query failed")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, status, errorResponse{
		Error:     message,
		RequestID: requestIDFrom(r.Context()),
	})
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
