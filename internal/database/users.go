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

// UpsertUser inserts or updates a user row.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO users (id, username)
		VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`
	if _, err := db.conn.ExecContext(ctx, query, user.ID, user.Username); err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return nil
}

// GetUser returns the user with the given id, or ErrUserNotFound.
func (db *DB) GetUser(ctx context.Context, userID int) (*models.User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `SELECT id, username, created_at FROM users WHERE id = ?`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.Username, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}
	return &user, nil
}

// UserExists reports whether a user row exists.
func (db *DB) UserExists(ctx context.Context, userID int) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", userID, err)
	}
	return exists, nil
}

// GetRaterIDs returns the ids of all users with at least one rating,
// ascending. These are the candidates for similarity computation and
// recommendation regeneration.
func (db *DB) GetRaterIDs(ctx context.Context) ([]int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM ratings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query rater ids: %w", err)
	}
	defer closeQuietly(rows)

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rater id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rater ids: %w", err)
	}
	return ids, nil
}
