// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

// Package config provides layered configuration for the recommender.
//
// Configuration is loaded via Koanf v2 with the following precedence
// (highest wins):
//
//  1. Environment variables (CAMFLIX_ prefix, e.g. CAMFLIX_SERVER_PORT)
//  2. YAML config file (config.yaml, or CONFIG_PATH override)
//  3. Built-in defaults
package config

import (
	"time"
)

// Config is the root configuration for the recommender service.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Engine    EngineConfig    `koanf:"engine"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" runs fully in-memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// EngineConfig configures similarity computation and recommendation
// generation.
type EngineConfig struct {
	// MinCommonMovies is the minimum number of co-rated movies required
	// before a pair similarity is computed. Pairs below this have no
	// signal and are omitted from the matrix.
	MinCommonMovies int `koanf:"min_common_movies"`

	// TopKSimilar is how many of the most similar users contribute to a
	// user's recommendations.
	TopKSimilar int `koanf:"top_k_similar"`

	// MinCoRaters is the minimum number of similar users that must have
	// rated a candidate movie.
	MinCoRaters int `koanf:"min_co_raters"`

	// MinScore is the minimum rating (0-100) a similar user must have
	// given a movie for it to count as a positive signal.
	MinScore int `koanf:"min_score"`

	// BatchSize is the maximum number of recommendations generated per
	// user per run.
	BatchSize int `koanf:"batch_size"`

	// Retention is how long generated recommendations are kept before
	// the cleanup pass purges them.
	Retention time.Duration `koanf:"retention"`

	// Workers is the number of parallel workers for the pairwise
	// similarity batch. 0 uses runtime.NumCPU().
	Workers int `koanf:"workers"`

	// ChunkSize is the minimum number of users a similarity batch chunk
	// covers. Chunks are sized so the dirty set splits across Workers
	// goroutines, but never smaller than this.
	ChunkSize int `koanf:"chunk_size"`

	// UpsertRatePerSecond throttles similarity upserts to keep batch
	// writes from starving interactive queries. 0 disables throttling.
	UpsertRatePerSecond int `koanf:"upsert_rate_per_second"`
}

// SchedulerConfig configures the periodic batch services.
type SchedulerConfig struct {
	// SimilarityInterval is how often dirty-user similarities are
	// recomputed.
	SimilarityInterval time.Duration `koanf:"similarity_interval"`

	// SimilarityOnStartup triggers a similarity batch when the service
	// starts.
	SimilarityOnStartup bool `koanf:"similarity_on_startup"`

	// RecommendInterval is how often recommendations are regenerated.
	RecommendInterval time.Duration `koanf:"recommend_interval"`

	// CleanupInterval is how often expired recommendations are purged.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// BatchTimeout bounds a single batch run.
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	// Level is the minimum log level (trace..panic).
	Level string `koanf:"level"`

	// Format selects json or console output.
	Format string `koanf:"format"`

	// Caller includes caller file/line in log output.
	Caller bool `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/camflix-recommender.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Engine: EngineConfig{
			MinCommonMovies:     3,
			TopKSimilar:         20,
			MinCoRaters:         2,
			MinScore:            70,
			BatchSize:           50,
			Retention:           30 * 24 * time.Hour,
			Workers:             0, // 0 = use runtime.NumCPU()
			ChunkSize:           100,
			UpsertRatePerSecond: 500,
		},
		Scheduler: SchedulerConfig{
			SimilarityInterval:  6 * time.Hour,
			SimilarityOnStartup: false,
			RecommendInterval:   12 * time.Hour,
			CleanupInterval:     24 * time.Hour,
			BatchTimeout:        30 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
