// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

// Package models defines the core domain types shared across the recommender:
// ratings, movies, user similarities, and generated recommendations.
//
// These types mirror the relational schema owned by the database package.
// They carry no behavior beyond small derived helpers; all persistence and
// computation lives in the database, similarity, and recommend packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a minimal projection of a catalog user.
// The full account model (auth, profile, notification preferences) belongs
// to the web application and is out of scope here.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Movie is a catalog entry. The catalog is supplied by the upstream TMDB
// sync; the engine only reads it.
type Movie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Genres      string  `json:"genres,omitempty"`
	ReleaseYear int     `json:"release_year,omitempty"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average,omitempty"`
	VoteCount   int     `json:"vote_count,omitempty"`
}

// Rating is a user's score for a movie on the 0-100 scale.
// Unique per (user, movie); re-rating overwrites the previous score.
type Rating struct {
	UserID    int       `json:"user_id"`
	MovieID   int       `json:"movie_id"`
	Score     int       `json:"score"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPositive reports whether the rating counts as a positive signal (>= 70).
func (r Rating) IsPositive() bool {
	return r.Score >= 70
}

// SimilarityMethod identifies the algorithm that produced a similarity score.
type SimilarityMethod string

const (
	// MethodPearson is Pearson correlation over co-rated movies.
	MethodPearson SimilarityMethod = "pearson"

	// MethodMeanAbsDiff is the mean-absolute-difference fallback used when
	// one user's co-rated scores are constant and correlation is undefined.
	MethodMeanAbsDiff SimilarityMethod = "mean_abs_diff"
)

// UserSimilarity is a persisted pairwise similarity between two users.
//
// Invariants:
//   - UserA < UserB (canonical ordering; enforced before persistence)
//   - Score in [0, 1]
//   - CommonMovies >= 3
type UserSimilarity struct {
	UserA        int              `json:"user_a"`
	UserB        int              `json:"user_b"`
	Score        float64          `json:"similarity_score"`
	CommonMovies int              `json:"common_movies_count"`
	Method       SimilarityMethod `json:"calculation_method"`
	CalculatedAt time.Time        `json:"calculated_at"`
}

// Other returns the counterpart user id for a bidirectional lookup.
// Returns -1 if userID is not part of the pair.
func (s UserSimilarity) Other(userID int) int {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	default:
		return -1
	}
}

// RecommendationSource identifies how a recommendation was produced.
type RecommendationSource string

const (
	// SourceCollaborative marks recommendations derived from similar users.
	SourceCollaborative RecommendationSource = "collaborative"

	// SourcePopularity marks cold-start recommendations derived from
	// global catalog popularity.
	SourcePopularity RecommendationSource = "popularity"
)

// Feedback is optional user feedback on a recommendation.
type Feedback string

const (
	FeedbackHelpful       Feedback = "helpful"
	FeedbackNotHelpful    Feedback = "not_helpful"
	FeedbackAlreadySeen   Feedback = "already_seen"
	FeedbackNotInterested Feedback = "not_interested"
)

// Valid reports whether f is a recognized feedback value.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackHelpful, FeedbackNotHelpful, FeedbackAlreadySeen, FeedbackNotInterested:
		return true
	}
	return false
}

// Recommendation is a generated, persisted recommendation for one user/movie
// pair. Unique per (user, movie); regeneration upserts in place.
type Recommendation struct {
	ID              uuid.UUID            `json:"id"`
	UserID          int                  `json:"user_id"`
	MovieID         int                  `json:"movie_id"`
	Source          RecommendationSource `json:"source"`
	ConfidenceScore float64              `json:"confidence_score"`
	PredictedRating float64              `json:"predicted_rating"`
	Reason          string               `json:"reason"`
	SimilarUsers    []int                `json:"similar_users,omitempty"`
	IsSeen          bool                 `json:"is_seen"`
	IsDismissed     bool                 `json:"is_dismissed"`
	UserFeedback    Feedback             `json:"user_feedback,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
}

// IsActive reports whether the recommendation should still be surfaced:
// not expired, not dismissed, not already seen.
func (r Recommendation) IsActive(now time.Time) bool {
	if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
		return false
	}
	return !r.IsDismissed && !r.IsSeen
}
