// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/camflix/recommender/internal/models"
)

// UpsertSimilarity inserts or updates the similarity row for a user pair.
// The pair is canonicalized (smaller id first) before the write, so the
// upsert is idempotent regardless of argument order. Self-pairs are
// rejected.
func (db *DB) UpsertSimilarity(ctx context.Context, sim *models.UserSimilarity) error {
	if sim.UserA == sim.UserB {
		return fmt.Errorf("similarity pair must not be self-referential (user %d)", sim.UserA)
	}

	a, b := sim.UserA, sim.UserB
	if a > b {
		a, b = b, a
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO user_similarities
			(user_a, user_b, similarity_score, common_movies_count, calculation_method, calculated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_a, user_b) DO UPDATE SET
			similarity_score = EXCLUDED.similarity_score,
			common_movies_count = EXCLUDED.common_movies_count,
			calculation_method = EXCLUDED.calculation_method,
			calculated_at = now()
	`
	_, err := db.conn.ExecContext(ctx, query,
		a, b, sim.Score, sim.CommonMovies, string(sim.Method))
	if err != nil {
		return fmt.Errorf("upsert similarity (%d, %d): %w", a, b, err)
	}
	return nil
}

// GetSimilarity returns the stored similarity for a pair, in canonical
// order, or nil if the pair has no stored similarity.
func (db *DB) GetSimilarity(ctx context.Context, userA, userB int) (*models.UserSimilarity, error) {
	a, b := userA, userB
	if a > b {
		a, b = b, a
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT user_a, user_b, similarity_score, common_movies_count, calculation_method, calculated_at
		FROM user_similarities
		WHERE user_a = ? AND user_b = ?
	`

	var sim models.UserSimilarity
	var method string
	err := db.conn.QueryRowContext(ctx, query, a, b).Scan(
		&sim.UserA, &sim.UserB, &sim.Score, &sim.CommonMovies, &method, &sim.CalculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query similarity (%d, %d): %w", a, b, err)
	}
	sim.Method = models.SimilarityMethod(method)
	return &sim, nil
}

// GetTopSimilarUsers returns up to k similarity rows involving the given
// user, ordered by similarity descending. The lookup is bidirectional: the
// user may be stored on either side of a canonical pair.
func (db *DB) GetTopSimilarUsers(ctx context.Context, userID, k int) ([]models.UserSimilarity, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT user_a, user_b, similarity_score, common_movies_count, calculation_method, calculated_at
		FROM user_similarities
		WHERE user_a = ? OR user_b = ?
		ORDER BY similarity_score DESC, user_a, user_b
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, userID, k)
	if err != nil {
		return nil, fmt.Errorf("query top similar users for %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	var sims []models.UserSimilarity
	for rows.Next() {
		var sim models.UserSimilarity
		var method string
		if err := rows.Scan(&sim.UserA, &sim.UserB, &sim.Score,
			&sim.CommonMovies, &method, &sim.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan similarity: %w", err)
		}
		sim.Method = models.SimilarityMethod(method)
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarities: %w", err)
	}
	return sims, nil
}

// DeleteSimilaritiesFor removes all stored pairs involving the given user.
// Called when a user is purged upstream.
func (db *DB) DeleteSimilaritiesFor(ctx context.Context, userID int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_similarities WHERE user_a = ? OR user_b = ?`, userID, userID); err != nil {
		return fmt.Errorf("delete similarities for user %d: %w", userID, err)
	}
	return nil
}

// CountSimilarities returns the number of stored pairs.
func (db *DB) CountSimilarities(ctx context.Context) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_similarities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count similarities: %w", err)
	}
	return count, nil
}
