// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

// Package main is the entry point for the Tripvault server.
//
// Tripvault aggregates first-person trip reports from several public
// sources (Erowid, the Psychonaut forums, PsychonautWiki), translates
// them to the configured target language, and serves them from a local
// BadgerDB cache over a JSON API. Scrape progress streams to connected
// clients over WebSocket.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml,
//     TRIPVAULT_-prefixed environment variables)
//  2. Logging: zerolog, configured from the logging section
//  3. Report store: BadgerDB cache directory
//  4. Source adapters, translator, WebSocket hub
//  5. Aggregation registry, pipeline, and service
//  6. HTTP server under a suture supervision tree
//
// # Configuration
//
// Everything has a default; a bare binary serves on :5000 with the
// cache under /data/tripvault. Common overrides:
//
//	export TRIPVAULT_SERVER_PORT=8080
//	export TRIPVAULT_CACHE_DIR=/var/lib/tripvault
//	export TRIPVAULT_TRANSLATE_TARGET=fr
//	export TRIPVAULT_SCRAPE_SOURCES=erowid,psychonaut
//	./tripvault
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, the hub closes
// its clients, and the store is closed last. Running scrape jobs are
// bounded by their per-request timeouts.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/tripvault/internal/aggregate"
	"github.com/tomtom215/tripvault/internal/api"
	"github.com/tomtom215/tripvault/internal/config"
	"github.com/tomtom215/tripvault/internal/logging"
	"github.com/tomtom215/tripvault/internal/sources"
	"github.com/tomtom215/tripvault/internal/store"
	"github.com/tomtom215/tripvault/internal/supervisor"
	"github.com/tomtom215/tripvault/internal/translate"
	ws "github.com/tomtom215/tripvault/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Strs("sources", cfg.Scrape.Sources).
		Str("cache_dir", cfg.Cache.Dir).
		Str("translate_target", cfg.Translate.Target).
		Msg("Starting Tripvault")

	st, err := store.Open(cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open report store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing report store")
		}
	}()

	srcs, err := sources.Build(cfg.Scrape)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build source adapters")
	}

	translator := translate.New(cfg.Translate)
	hub := ws.NewHub()

	// Context governing the whole process; canceled on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := aggregate.NewRegistry(hub)
	pipeline := aggregate.NewPipeline(registry, st, srcs, translator, cfg.Scrape)
	service := aggregate.NewService(ctx, registry, pipeline, hub)

	router := api.NewRouter(cfg.API, st, hub, service)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// zerolog bridged to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(supervisor.NewHubService(hub))
	tree.Add(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", httpServer.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Tripvault stopped gracefully")
}
