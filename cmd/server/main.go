// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

// Package main is the entry point for the CamFlix recommender service.
//
// The service precomputes movie recommendations from user ratings:
//
//  1. Configuration: Koanf v2 layered loading (env > config.yaml > defaults)
//  2. Database: embedded DuckDB holding ratings, the similarity matrix,
//     and generated recommendations
//  3. Batch pipeline: periodic similarity recompute for users with new
//     ratings, periodic recommendation regeneration, daily retention purge
//  4. HTTP API: chi router serving recommendations, similarity lookups,
//     rating ingest, health, and Prometheus metrics
//
// All long-running components run under a Suture supervision tree; a
// crashing batch service restarts without taking down the API.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s timeout), batch services stop at the next
// cancellation point, and the database is closed last.
//
// # Example Usage
//
//	export CAMFLIX_DATABASE_PATH=/var/lib/camflix/recommender.db
//	export CAMFLIX_SERVER_PORT=8480
//	./recommender
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

	"github.com/camflix/recommender/internal/api"
	"github.com/camflix/recommender/internal/cache"
	"github.com/camflix/recommender/internal/config"
	"github.com/camflix/recommender/internal/database"
	"github.com/camflix/recommender/internal/logging"
	"github.com/camflix/recommender/internal/recommend"
	"github.com/camflix/recommender/internal/similarity"
	"github.com/camflix/recommender/internal/supervisor"
	"github.com/camflix/recommender/internal/supervisor/services"
)

func main() {
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
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Dur("similarity_interval", cfg.Scheduler.SimilarityInterval).
		Dur("recommend_interval", cfg.Scheduler.RecommendInterval).
		Msg("Starting CamFlix recommender")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	engine := similarity.New(db, cfg.Engine)
	generator := recommend.New(db, cfg.Engine)

	responseCache := cache.New(time.Minute)
	defer responseCache.Close()

	handler := api.NewHandler(db, generator, engine, cfg.Engine.TopKSimilar, responseCache)
	router := api.NewRouter(handler, api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddBatchService(services.NewSimilarityService(engine, services.SimilarityServiceConfig{
		Interval:     cfg.Scheduler.SimilarityInterval,
		RunOnStartup: cfg.Scheduler.SimilarityOnStartup,
		BatchTimeout: cfg.Scheduler.BatchTimeout,
	}, logging.Logger()))

	tree.AddBatchService(services.NewRecommendService(generator, services.RecommendServiceConfig{
		Interval:     cfg.Scheduler.RecommendInterval,
		BatchTimeout: cfg.Scheduler.BatchTimeout,
	}, logging.Logger()))

	tree.AddBatchService(services.NewCleanupService(generator, services.CleanupServiceConfig{
		Interval: cfg.Scheduler.CleanupInterval,
	}, logging.Logger()))

	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
			for _, svc := range report {
				logging.Warn().Str("service", svc.Name).Msg("Service did not stop cleanly")
			}
		}
		os.Exit(1)
	}

	logging.Info().Msg("Shutdown complete")
}
