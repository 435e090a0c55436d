// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Purger is the retention surface the cleanup service drives. Satisfied by
// *recommend.Generator.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupServiceConfig holds scheduling parameters for retention cleanup.
type CleanupServiceConfig struct {
	// Interval is how often expired recommendations are purged.
	Interval time.Duration

	// RunTimeout bounds a single cleanup run.
	RunTimeout time.Duration
}

// CleanupService purges recommendations past the retention window on a
// schedule.
type CleanupService struct {
	purger Purger
	config CleanupServiceConfig
	logger zerolog.Logger
	name   string
}

// NewCleanupService creates a supervised retention cleanup service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCleanupService(purger Purger, cfg CleanupServiceConfig, logger zerolog.Logger) *CleanupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &CleanupService{
		purger: purger,
		config: cfg,
		logger: logger.With().Str("service", "cleanup").Logger(),
		name:   "cleanup-service",
	}
}

// Serve implements suture.Service.
func (s *CleanupService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("cleanup service starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cleanup service shutting down")
			return ctx.Err()

		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
			_, err := s.purger.PurgeExpired(runCtx)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("scheduled cleanup failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *CleanupService) String() string {
	return s.name
}
