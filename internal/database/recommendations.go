// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/camflix/recommender/internal/models"
)

// UpsertRecommendations writes a generated batch for one user in a single
// transaction. Each row upserts on (user_id, movie_id), so regenerating with
// unchanged inputs updates rows in place and never duplicates.
func (db *DB) UpsertRecommendations(ctx context.Context, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recommendations tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO recommendations
			(id, user_id, movie_id, source, confidence_score, predicted_rating,
			 reason, similar_users, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT (user_id, movie_id) DO UPDATE SET
			source = EXCLUDED.source,
			confidence_score = EXCLUDED.confidence_score,
			predicted_rating = EXCLUDED.predicted_rating,
			reason = EXCLUDED.reason,
			similar_users = EXCLUDED.similar_users,
			created_at = now(),
			expires_at = EXCLUDED.expires_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare recommendations upsert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range recs {
		rec := &recs[i]
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}

		similarUsers, err := json.Marshal(rec.SimilarUsers)
		if err != nil {
			return fmt.Errorf("marshal similar users for movie %d: %w", rec.MovieID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID.String(), rec.UserID, rec.MovieID, string(rec.Source),
			rec.ConfidenceScore, rec.PredictedRating, rec.Reason,
			string(similarUsers), rec.ExpiresAt); err != nil {
			return fmt.Errorf("upsert recommendation (%d, %d): %w", rec.UserID, rec.MovieID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recommendations tx: %w", err)
	}
	return nil
}

// GetRecommendations returns a user's stored recommendations ordered by
// confidence descending, up to limit.
func (db *DB) GetRecommendations(ctx context.Context, userID, limit int) ([]models.Recommendation, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT CAST(id AS VARCHAR), user_id, movie_id, source, confidence_score, predicted_rating,
		       reason, similar_users, is_seen, is_dismissed, user_feedback,
		       created_at, expires_at
		FROM recommendations
		WHERE user_id = ?
		ORDER BY confidence_score DESC, movie_id
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recommendations for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	var recs []models.Recommendation
	for rows.Next() {
		var (
			rec          models.Recommendation
			idStr        string
			source       string
			similarUsers string
			feedback     string
			expiresAt    *time.Time
		)
		if err := rows.Scan(&idStr, &rec.UserID, &rec.MovieID, &source,
			&rec.ConfidenceScore, &rec.PredictedRating, &rec.Reason,
			&similarUsers, &rec.IsSeen, &rec.IsDismissed, &feedback,
			&rec.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse recommendation id %q: %w", idStr, err)
		}
		rec.ID = id
		rec.Source = models.RecommendationSource(source)
		rec.UserFeedback = models.Feedback(feedback)
		rec.ExpiresAt = expiresAt

		if similarUsers != "" {
			if err := json.Unmarshal([]byte(similarUsers), &rec.SimilarUsers); err != nil {
				return nil, fmt.Errorf("unmarshal similar users: %w", err)
			}
		}

		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", err)
	}
	return recs, nil
}

// MarkRecommendationSeen flags a recommendation as seen by the user.
func (db *DB) MarkRecommendationSeen(ctx context.Context, userID, movieID int) error {
	return db.setRecommendationFlag(ctx, userID, movieID, "is_seen")
}

// MarkRecommendationDismissed flags a recommendation as dismissed.
func (db *DB) MarkRecommendationDismissed(ctx context.Context, userID, movieID int) error {
	return db.setRecommendationFlag(ctx, userID, movieID, "is_dismissed")
}

func (db *DB) setRecommendationFlag(ctx context.Context, userID, movieID int, column string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	// column is one of two compile-time constants, never user input
	query := fmt.Sprintf(
		`UPDATE recommendations SET %s = true WHERE user_id = ? AND movie_id = ?`, column)
	if _, err := db.conn.ExecContext(ctx, query, userID, movieID); err != nil {
		return fmt.Errorf("set %s (%d, %d): %w", column, userID, movieID, err)
	}
	return nil
}

// SetRecommendationFeedback records user feedback on a recommendation.
func (db *DB) SetRecommendationFeedback(ctx context.Context, userID, movieID int, feedback models.Feedback) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE recommendations SET user_feedback = ? WHERE user_id = ? AND movie_id = ?`,
		string(feedback), userID, movieID); err != nil {
		return fmt.Errorf("set feedback (%d, %d): %w", userID, movieID, err)
	}
	return nil
}

// PurgeRecommendationsBefore bulk-deletes recommendations created before the
// cutoff and returns how many rows were removed. This is the scheduled
// retention pass; rows younger than the cutoff are never touched.
func (db *DB) PurgeRecommendationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM recommendations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge recommendations: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return deleted, nil
}

// CountRecommendations returns the number of active (unexpired)
// recommendations stored for a user. A zero count marks the user as a
// regeneration target for the scheduled batch.
func (db *DB) CountRecommendations(ctx context.Context, userID int) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recommendations
		 WHERE user_id = ? AND (expires_at IS NULL OR expires_at > current_timestamp)`,
		userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recommendations for user %d: %w", userID, err)
	}
	return count, nil
}
