// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package main is the entry point for the Watchgate server.
//
// Watchgate ingests theft-detection events from the store camera pipeline,
// drives the incident review lifecycle, and keeps the branch-facing
// watchlist mirror and realtime fanout channels synchronized with the
// system of record.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 with layered file/env sources
//  2. Database: DuckDB system of record
//  3. Directory: upstream identifier service behind a circuit breaker,
//     fronted by the TTL resolution cache
//  4. Mirror: document store propagation (http, badger or memory backend)
//  5. Alerting: webhook notifier and the analyst handoff queue (optional)
//  6. NATS: embedded or external JetStream for ingest, core NATS for fanout
//  7. HTTP API: chi router with websocket fanout edge
//
// Everything long-running is supervised by a suture tree; SIGINT/SIGTERM
// cancel the root context and the tree drains with a bounded shutdown
// timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigilant-labs/watchgate/internal/alerting"
	"github.com/vigilant-labs/watchgate/internal/api"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/directory"
	"github.com/vigilant-labs/watchgate/internal/fanout"
	"github.com/vigilant-labs/watchgate/internal/ingest"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/mirror"
	"github.com/vigilant-labs/watchgate/internal/reconcile"
	"github.com/vigilant-labs/watchgate/internal/registrar"
	"github.com/vigilant-labs/watchgate/internal/resolver"
	"github.com/vigilant-labs/watchgate/internal/supervisor"
	"github.com/vigilant-labs/watchgate/internal/watchlist"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("mirror_backend", cfg.Mirror.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Watchgate")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Directory behind a circuit breaker; the resolver fronts it with the
	// TTL cache so repeat lookups never leave the process.
	dir := directory.NewBreakerClient(directory.NewClient(&cfg.Directory), &cfg.Directory)
	res := resolver.New(dir, &cfg.Resolver)

	store, err := mirror.NewStore(&cfg.Mirror)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize mirror store")
	}
	prop := mirror.NewPropagator(db, res, store, &cfg.Mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Alerting collaborators are optional; nil disables them in every
	// consumer without per-call checks.
	var notifier watchlist.Notifier
	var queue registrar.Queue
	if cfg.Alerting.Enabled {
		notifier = alerting.NewNotifier(&cfg.Alerting)
		analystQueue := alerting.NewAnalystQueue(&cfg.Alerting)
		queue = analystQueue
		tree.AddMessagingService(&supervisor.ServiceFunc{Name: "analyst-queue", Run: analystQueue.Run})
		logging.Info().Str("webhook", cfg.Alerting.WebhookURL).Msg("Alerting enabled")
	} else {
		logging.Info().Msg("Alerting disabled")
	}

	// NATS carries both ingest (JetStream) and realtime fanout (core).
	nats, err := initNATS(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}
	defer nats.Close()

	var fanoutPub watchlist.Fanout
	var hub *fanout.Hub
	if nats.Bus != nil {
		fanoutPub = fanout.NewPublisher(nats.Bus, db, res, prop)
		hub = fanout.NewHub(nats.Bus, &cfg.Fanout)
		tree.AddMessagingService(&supervisor.ServiceFunc{Name: "fanout-hub", Run: hub.Serve})
	}

	svc := watchlist.NewService(db, prop, fanoutPub, notifier)
	reg := registrar.New(db, res, prop, fanoutPub, notifier, queue)
	replayer := reconcile.NewReplayer(db, res, prop, cfg.Reconcile.Lookback)

	var apiListener api.Listener
	if cfg.NATS.Enabled {
		listener := ingest.NewListener(&cfg.NATS, ingest.NewHandlers(db, reg, svc, prop))
		apiListener = listener
		tree.AddMessagingService(listener)
		logging.Info().Str("url", cfg.NATS.URL).Msg("Ingest listener added to supervisor tree")
	} else {
		logging.Info().Msg("NATS disabled - ingest and fanout are offline, API only")
	}

	handler := api.NewHandler(db, svc, replayer, prop, apiListener, hub, &cfg.Fanout, cfg.API.CORSOrigins)
	router := api.NewRouter(handler, api.NewMiddleware(api.MiddlewareFromConfig(&cfg.API)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Watchgate stopped")
}
