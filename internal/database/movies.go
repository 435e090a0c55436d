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

// UpsertMovie inserts or updates a catalog entry. The catalog is fed by the
// upstream TMDB sync; the engine itself only reads it.
func (db *DB) UpsertMovie(ctx context.Context, movie *models.Movie) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO movies (id, title, genres, release_year, popularity, vote_average, vote_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			genres = EXCLUDED.genres,
			release_year = EXCLUDED.release_year,
			popularity = EXCLUDED.popularity,
			vote_average = EXCLUDED.vote_average,
			vote_count = EXCLUDED.vote_count
	`
	_, err := db.conn.ExecContext(ctx, query,
		movie.ID, movie.Title, movie.Genres, movie.ReleaseYear,
		movie.Popularity, movie.VoteAverage, movie.VoteCount)
	if err != nil {
		return fmt.Errorf("upsert movie %d: %w", movie.ID, err)
	}
	return nil
}

// GetMovie returns the movie with the given id, or ErrMovieNotFound.
func (db *DB) GetMovie(ctx context.Context, movieID int) (*models.Movie, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, genres, release_year, popularity, vote_average, vote_count
		FROM movies WHERE id = ?
	`

	var m models.Movie
	err := db.conn.QueryRowContext(ctx, query, movieID).Scan(
		&m.ID, &m.Title, &m.Genres, &m.ReleaseYear,
		&m.Popularity, &m.VoteAverage, &m.VoteCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movie %d: %w", movieID, ErrMovieNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query movie %d: %w", movieID, err)
	}
	return &m, nil
}

// GetPopularMovies returns up to limit catalog entries ranked by popularity
// descending. This drives the cold-start recommendation path.
func (db *DB) GetPopularMovies(ctx context.Context, limit int) ([]models.Movie, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, genres, release_year, popularity, vote_average, vote_count
		FROM movies
		ORDER BY popularity DESC, id
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query popular movies: %w", err)
	}
	defer closeQuietly(rows)

	var movies []models.Movie
	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Genres, &m.ReleaseYear,
			&m.Popularity, &m.VoteAverage, &m.VoteCount); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}

// CountMovies returns the catalog size.
func (db *DB) CountMovies(ctx context.Context) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return count, nil
}
