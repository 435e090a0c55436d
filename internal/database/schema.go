// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates all tables and indexes. All columns are defined in the
// initial CREATE TABLE statements; there is no migration machinery.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS movies (
			id INTEGER PRIMARY KEY,
			title VARCHAR NOT NULL,
			genres VARCHAR DEFAULT '',
			release_year INTEGER DEFAULT 0,
			popularity DOUBLE NOT NULL DEFAULT 0,
			vote_average DOUBLE DEFAULT 0,
			vote_count INTEGER DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS ratings (
			user_id INTEGER NOT NULL,
			movie_id INTEGER NOT NULL,
			score INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
			tier VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, movie_id)
		)`,

		// Incremental recompute bookkeeping: a user is dirty when they have
		// rated since the last similarity batch.
		`CREATE TABLE IF NOT EXISTS dirty_users (
			user_id INTEGER PRIMARY KEY,
			marked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS user_similarities (
			user_a INTEGER NOT NULL,
			user_b INTEGER NOT NULL,
			similarity_score DOUBLE NOT NULL CHECK (similarity_score >= 0 AND similarity_score <= 1),
			common_movies_count INTEGER NOT NULL DEFAULT 0,
			calculation_method VARCHAR NOT NULL DEFAULT 'pearson',
			calculated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_a, user_b),
			CHECK (user_a < user_b)
		)`,

		`CREATE TABLE IF NOT EXISTS recommendations (
			id UUID NOT NULL,
			user_id INTEGER NOT NULL,
			movie_id INTEGER NOT NULL,
			source VARCHAR NOT NULL DEFAULT 'collaborative',
			confidence_score DOUBLE NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 1),
			predicted_rating DOUBLE NOT NULL DEFAULT 0,
			reason VARCHAR DEFAULT '',
			similar_users VARCHAR DEFAULT '[]',
			is_seen BOOLEAN NOT NULL DEFAULT false,
			is_dismissed BOOLEAN NOT NULL DEFAULT false,
			user_feedback VARCHAR DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP,
			UNIQUE (user_id, movie_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return db.createIndexes(ctx)
}

// createIndexes creates indexes for the common query patterns: rating lookups
// per user, similarity lookups from either side of a pair, and recommendation
// retrieval ordered by confidence.
func (db *DB) createIndexes(ctx context.Context) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_ratings_user ON ratings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_movie ON ratings(movie_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_score ON ratings(score)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_popularity ON movies(popularity)`,
		`CREATE INDEX IF NOT EXISTS idx_similarities_user_a ON user_similarities(user_a)`,
		`CREATE INDEX IF NOT EXISTS idx_similarities_user_b ON user_similarities(user_b)`,
		`CREATE INDEX IF NOT EXISTS idx_similarities_score ON user_similarities(similarity_score)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(created_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
