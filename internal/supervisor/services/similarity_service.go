// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

// Package services provides Suture service wrappers for the batch pipeline
// and the HTTP server.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/camflix/recommender/internal/similarity"
)

// SimilarityRunner is the engine surface the service drives. Satisfied by
// *similarity.Engine.
type SimilarityRunner interface {
	Run(ctx context.Context) (*similarity.BatchResult, error)
}

// SimilarityServiceConfig holds scheduling parameters for the similarity
// batch service.
type SimilarityServiceConfig struct {
	// Interval is how often dirty-user similarities are recomputed.
	Interval time.Duration

	// RunOnStartup triggers a batch when the service starts.
	RunOnStartup bool

	// BatchTimeout bounds a single batch run.
	BatchTimeout time.Duration
}

// SimilarityService runs the similarity engine on a schedule under Suture
// supervision. A failed batch is logged and retried at the next tick.
type SimilarityService struct {
	engine SimilarityRunner
	config SimilarityServiceConfig
	logger zerolog.Logger
	name   string
}

// NewSimilarityService creates a supervised similarity batch service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSimilarityService(engine SimilarityRunner, cfg SimilarityServiceConfig, logger zerolog.Logger) *SimilarityService {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Minute
	}
	return &SimilarityService{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("service", "similarity").Logger(),
		name:   "similarity-service",
	}
}

// Serve implements suture.Service.
func (s *SimilarityService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("run_on_startup", s.config.RunOnStartup).
		Msg("similarity service starting")

	if s.config.RunOnStartup {
		if err := s.runBatch(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup similarity batch failed")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("similarity service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.runBatch(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled similarity batch failed")
			}
		}
	}
}

func (s *SimilarityService) runBatch(ctx context.Context) error {
	batchCtx, cancel := context.WithTimeout(ctx, s.config.BatchTimeout)
	defer cancel()

	_, err := s.engine.Run(batchCtx)
	return err
}

// String implements fmt.Stringer for suture logging.
func (s *SimilarityService) String() string {
	return s.name
}
