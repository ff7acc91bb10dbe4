// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

// Command server runs the Authtally daemon: HTTP API, queue worker, and
// retention sweeper under one supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/authtally/internal/accounting"
	"github.com/tomtom215/authtally/internal/api"
	"github.com/tomtom215/authtally/internal/config"
	"github.com/tomtom215/authtally/internal/database"
	"github.com/tomtom215/authtally/internal/logging"
	"github.com/tomtom215/authtally/internal/queue"
	"github.com/tomtom215/authtally/internal/retention"
	"github.com/tomtom215/authtally/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authtally: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("scheme", cfg.Accounting.Scheme).
		Str("mode", cfg.Accounting.Mode).
		Str("database", cfg.Database.Path).
		Msg("Starting Authtally")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	tracker, err := accounting.NewTracker(db.Conn(), cfg.Accounting.Scheme)
	if err != nil {
		return err
	}

	serializer, err := queue.NewSerializer(cfg.Queue.Serializer)
	if err != nil {
		return err
	}
	store := queue.NewStore(db.Conn(), serializer, cfg.Queue.MaxDeleteAttempts)

	var sweeper *retention.Sweeper
	if cfg.Retention.Enabled {
		sweeper = retention.NewSweeper(tracker, &cfg.Retention)
	}

	handler := api.NewHandler(tracker, store, sweeper, db, cfg)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      api.NewRouter(handler, &cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// The worker runs in both modes: in sync mode it only drains jobs left
	// over from an earlier async deployment.
	worker := queue.NewWorker(store, &cfg.Queue, queue.NewAuthenticationHandler(store, tracker))
	tree.AddQueueService(worker)

	if sweeper != nil {
		tree.AddRetentionService(sweeper)
	}

	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree failed: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
