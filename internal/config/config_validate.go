// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package config

import (
	"fmt"
)

// Validate checks the configuration for invalid or inconsistent values.
// It is called automatically by Load but can be invoked directly on
// hand-constructed configs (useful in tests).
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := &c.Engine

	if e.MinCommonMovies < 2 {
		return fmt.Errorf("engine.min_common_movies must be >= 2, got %d", e.MinCommonMovies)
	}
	if e.TopKSimilar <= 0 {
		return fmt.Errorf("engine.top_k_similar must be > 0, got %d", e.TopKSimilar)
	}
	if e.MinCoRaters <= 0 {
		return fmt.Errorf("engine.min_co_raters must be > 0, got %d", e.MinCoRaters)
	}
	if e.MinScore < 0 || e.MinScore > 100 {
		return fmt.Errorf("engine.min_score must be in [0, 100], got %d", e.MinScore)
	}
	if e.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be > 0, got %d", e.BatchSize)
	}
	if e.Retention <= 0 {
		return fmt.Errorf("engine.retention must be > 0, got %s", e.Retention)
	}
	if e.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", e.Workers)
	}
	if e.ChunkSize <= 0 {
		return fmt.Errorf("engine.chunk_size must be > 0, got %d", e.ChunkSize)
	}
	if e.UpsertRatePerSecond < 0 {
		return fmt.Errorf("engine.upsert_rate_per_second must be >= 0, got %d", e.UpsertRatePerSecond)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := &c.Scheduler

	if s.SimilarityInterval <= 0 {
		return fmt.Errorf("scheduler.similarity_interval must be > 0, got %s", s.SimilarityInterval)
	}
	if s.RecommendInterval <= 0 {
		return fmt.Errorf("scheduler.recommend_interval must be > 0, got %s", s.RecommendInterval)
	}
	if s.CleanupInterval <= 0 {
		return fmt.Errorf("scheduler.cleanup_interval must be > 0, got %s", s.CleanupInterval)
	}
	if s.BatchTimeout <= 0 {
		return fmt.Errorf("scheduler.batch_timeout must be > 0, got %s", s.BatchTimeout)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs <= 0 {
		return fmt.Errorf("server.rate_limit_reqs must be > 0, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be > 0, got %s", c.Server.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
