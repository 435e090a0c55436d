// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/camflix/recommender/internal/recommend"
)

// RecommendRunner is the generator surface the service drives. Satisfied by
// *recommend.Generator.
type RecommendRunner interface {
	GenerateAll(ctx context.Context) (*recommend.BatchResult, error)
}

// RecommendServiceConfig holds scheduling parameters for the generation
// batch service.
type RecommendServiceConfig struct {
	// Interval is how often recommendation sets are regenerated.
	Interval time.Duration

	// BatchTimeout bounds a single batch run.
	BatchTimeout time.Duration
}

// RecommendService regenerates all users' recommendation sets on a schedule.
type RecommendService struct {
	generator RecommendRunner
	config    RecommendServiceConfig
	logger    zerolog.Logger
	name      string
}

// NewRecommendService creates a supervised generation batch service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRecommendService(generator RecommendRunner, cfg RecommendServiceConfig, logger zerolog.Logger) *RecommendService {
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Hour
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Minute
	}
	return &RecommendService{
		generator: generator,
		config:    cfg,
		logger:    logger.With().Str("service", "recommend").Logger(),
		name:      "recommend-service",
	}
}

// Serve implements suture.Service.
func (s *RecommendService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("recommendation service starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("recommendation service shutting down")
			return ctx.Err()

		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, s.config.BatchTimeout)
			_, err := s.generator.GenerateAll(batchCtx)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("scheduled generation batch failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *RecommendService) String() string {
	return s.name
}
