// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/camflix/recommender/internal/models"
)

// UpsertRating inserts or overwrites the rating for (user, movie). The tier
// must be computed by the caller via models.ComputeTier; persistence never
// derives it as a side effect.
//
// The write also marks the user dirty so the next similarity batch picks
// them up.
func (db *DB) UpsertRating(ctx context.Context, rating *models.Rating) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := `
		INSERT INTO ratings (user_id, movie_id, score, tier, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, movie_id) DO UPDATE SET
			score = EXCLUDED.score,
			tier = EXCLUDED.tier,
			updated_at = now()
	`
	if _, err := tx.ExecContext(ctx, upsert,
		rating.UserID, rating.MovieID, rating.Score, string(rating.Tier)); err != nil {
		return fmt.Errorf("upsert rating (%d, %d): %w", rating.UserID, rating.MovieID, err)
	}

	dirty := `
		INSERT INTO dirty_users (user_id, marked_at)
		VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET marked_at = now()
	`
	if _, err := tx.ExecContext(ctx, dirty, rating.UserID); err != nil {
		return fmt.Errorf("mark user %d dirty: %w", rating.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating tx: %w", err)
	}
	return nil
}

// GetUserRatings returns all of a user's ratings as a movie->score map.
// An empty map means the user has no rating history.
func (db *DB) GetUserRatings(ctx context.Context, userID int) (map[int]int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT movie_id, score FROM ratings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ratings for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	ratings := make(map[int]int)
	for rows.Next() {
		var movieID, score int
		if err := rows.Scan(&movieID, &score); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings[movieID] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

// GetUserScores returns a user's full score history. Used as input to
// models.ComputeTier.
func (db *DB) GetUserScores(ctx context.Context, userID int) ([]int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT score FROM ratings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query scores for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	var scores []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

// GetPositiveRatings returns, for each movie rated at or above minScore by
// any of the given users, the scores and the ids of the users who rated it.
// Used by the recommendation generator to collect candidate movies.
func (db *DB) GetPositiveRatings(ctx context.Context, userIDs []int, minScore int) (map[int][]models.Rating, error) {
	if len(userIDs) == 0 {
		return map[int][]models.Rating{}, nil
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT user_id, movie_id, score
		FROM ratings
		WHERE score >= ? AND user_id IN (` + placeholders(len(userIDs)) + `)
	`
	args := make([]interface{}, 0, len(userIDs)+1)
	args = append(args, minScore)
	for _, id := range userIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positive ratings: %w", err)
	}
	defer closeQuietly(rows)

	byMovie := make(map[int][]models.Rating)
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Score); err != nil {
			return nil, fmt.Errorf("scan positive rating: %w", err)
		}
		byMovie[r.MovieID] = append(byMovie[r.MovieID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positive ratings: %w", err)
	}
	return byMovie, nil
}

// GetDirtyUserIDs returns the ids of users who have rated since the last
// similarity batch, ascending.
func (db *DB) GetDirtyUserIDs(ctx context.Context) ([]int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM dirty_users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query dirty users: %w", err)
	}
	defer closeQuietly(rows)

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dirty user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dirty users: %w", err)
	}
	return ids, nil
}

// ClearDirtyUsers removes dirty marks set at or before the given cutoff.
// The batch captures the cutoff before it starts so that ratings arriving
// mid-run stay marked for the next run.
func (db *DB) ClearDirtyUsers(ctx context.Context, before time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM dirty_users WHERE marked_at <= ?`, before); err != nil {
		return fmt.Errorf("clear dirty users: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ..." with n placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, '?')
	}
	return string(out)
}
