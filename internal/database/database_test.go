// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/camflix/recommender/internal/models"
)

// newTestDB creates an in-memory database and registers cleanup.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func seedUser(t *testing.T, db *DB, id int, username string) {
	t.Helper()
	if err := db.UpsertUser(context.Background(), &models.User{ID: id, Username: username}); err != nil {
		t.Fatalf("UpsertUser(%d) error = %v", id, err)
	}
}

func seedMovie(t *testing.T, db *DB, id int, title string, popularity float64) {
	t.Helper()
	err := db.UpsertMovie(context.Background(), &models.Movie{
		ID:         id,
		Title:      title,
		Popularity: popularity,
	})
	if err != nil {
		t.Fatalf("UpsertMovie(%d) error = %v", id, err)
	}
}

func seedRating(t *testing.T, db *DB, userID, movieID, score int) {
	t.Helper()
	err := db.UpsertRating(context.Background(), &models.Rating{
		UserID:  userID,
		MovieID: movieID,
		Score:   score,
		Tier:    models.TierDecent,
	})
	if err != nil {
		t.Fatalf("UpsertRating(%d, %d) error = %v", userID, movieID, err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUser(context.Background(), 42)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(42) error = %v, want ErrUserNotFound", err)
	}
}

func TestGetMovieNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetMovie(context.Background(), 42)
	if !errors.Is(err, ErrMovieNotFound) {
		t.Errorf("GetMovie(42) error = %v, want ErrMovieNotFound", err)
	}
}

func TestUpsertRatingOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, 1, "alice")
	seedMovie(t, db, 10, "Movie Ten", 5.0)

	seedRating(t, db, 1, 10, 60)
	seedRating(t, db, 1, 10, 85)

	ratings, err := db.GetUserRatings(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserRatings() error = %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("len(ratings) = %d, want 1 (re-rating must overwrite)", len(ratings))
	}
	if ratings[10] != 85 {
		t.Errorf("ratings[10] = %d, want 85", ratings[10])
	}
}

func TestUpsertRatingMarksDirty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedRating(t, db, 7, 1, 90)

	dirty, err := db.GetDirtyUserIDs(ctx)
	if err != nil {
		t.Fatalf("GetDirtyUserIDs() error = %v", err)
	}
	if len(dirty) != 1 || dirty[0] != 7 {
		t.Errorf("dirty users = %v, want [7]", dirty)
	}

	if err := db.ClearDirtyUsers(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("ClearDirtyUsers() error = %v", err)
	}

	dirty, err = db.GetDirtyUserIDs(ctx)
	if err != nil {
		t.Fatalf("GetDirtyUserIDs() error = %v", err)
	}
	if len(dirty) != 0 {
		t.Errorf("dirty users after clear = %v, want empty", dirty)
	}
}

func TestClearDirtyUsersKeepsNewerMarks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedRating(t, db, 1, 1, 50)

	// A cutoff before the mark must not clear it.
	if err := db.ClearDirtyUsers(ctx, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("ClearDirtyUsers() error = %v", err)
	}

	dirty, err := db.GetDirtyUserIDs(ctx)
	if err != nil {
		t.Fatalf("GetDirtyUserIDs() error = %v", err)
	}
	if len(dirty) != 1 {
		t.Errorf("dirty users = %v, want the mark to survive an older cutoff", dirty)
	}
}

func TestUpsertSimilarityCanonicalOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Deliberately reversed argument order.
	err := db.UpsertSimilarity(ctx, &models.UserSimilarity{
		UserA:        9,
		UserB:        2,
		Score:        0.8,
		CommonMovies: 4,
		Method:       models.MethodPearson,
	})
	if err != nil {
		t.Fatalf("UpsertSimilarity() error = %v", err)
	}

	sim, err := db.GetSimilarity(ctx, 2, 9)
	if err != nil {
		t.Fatalf("GetSimilarity() error = %v", err)
	}
	if sim == nil {
		t.Fatal("GetSimilarity() = nil, want row")
	}
	if sim.UserA != 2 || sim.UserB != 9 {
		t.Errorf("stored pair = (%d, %d), want canonical (2, 9)", sim.UserA, sim.UserB)
	}

	// Lookup with either order finds the same row.
	rev, err := db.GetSimilarity(ctx, 9, 2)
	if err != nil {
		t.Fatalf("GetSimilarity(reversed) error = %v", err)
	}
	if rev == nil || rev.Score != sim.Score {
		t.Errorf("reversed lookup = %+v, want same row", rev)
	}
}

func TestUpsertSimilarityIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := db.UpsertSimilarity(ctx, &models.UserSimilarity{
			UserA: 1, UserB: 2, Score: 0.5 + float64(i)*0.1, CommonMovies: 3,
			Method: models.MethodPearson,
		})
		if err != nil {
			t.Fatalf("UpsertSimilarity() error = %v", err)
		}
	}

	count, err := db.CountSimilarities(ctx)
	if err != nil {
		t.Fatalf("CountSimilarities() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (upsert must not duplicate)", count)
	}

	sim, err := db.GetSimilarity(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetSimilarity() error = %v", err)
	}
	if sim.Score != 0.7 {
		t.Errorf("score = %f, want last written 0.7", sim.Score)
	}
}

func TestUpsertSimilarityRejectsSelfPair(t *testing.T) {
	db := newTestDB(t)

	err := db.UpsertSimilarity(context.Background(), &models.UserSimilarity{
		UserA: 5, UserB: 5, Score: 1.0,
	})
	if err == nil {
		t.Error("UpsertSimilarity(self pair) = nil, want error")
	}
}

func TestGetTopSimilarUsersBidirectional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// User 5 appears on both sides of stored pairs.
	pairs := []models.UserSimilarity{
		{UserA: 1, UserB: 5, Score: 0.9, CommonMovies: 5, Method: models.MethodPearson},
		{UserA: 5, UserB: 8, Score: 0.7, CommonMovies: 4, Method: models.MethodPearson},
		{UserA: 3, UserB: 5, Score: 0.95, CommonMovies: 6, Method: models.MethodPearson},
		{UserA: 1, UserB: 2, Score: 0.99, CommonMovies: 8, Method: models.MethodPearson},
	}
	for i := range pairs {
		if err := db.UpsertSimilarity(ctx, &pairs[i]); err != nil {
			t.Fatalf("UpsertSimilarity() error = %v", err)
		}
	}

	sims, err := db.GetTopSimilarUsers(ctx, 5, 2)
	if err != nil {
		t.Fatalf("GetTopSimilarUsers() error = %v", err)
	}
	if len(sims) != 2 {
		t.Fatalf("len(sims) = %d, want 2", len(sims))
	}
	if sims[0].Other(5) != 3 {
		t.Errorf("top similar = %d, want 3 (score 0.95)", sims[0].Other(5))
	}
	if sims[1].Other(5) != 1 {
		t.Errorf("second similar = %d, want 1 (score 0.9)", sims[1].Other(5))
	}
}

func TestUpsertRecommendationsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	recs := []models.Recommendation{
		{
			UserID: 1, MovieID: 10, Source: models.SourceCollaborative,
			ConfidenceScore: 0.82, PredictedRating: 82,
			Reason: "Recommended based on similar users", SimilarUsers: []int{2, 3},
		},
		{
			UserID: 1, MovieID: 11, Source: models.SourceCollaborative,
			ConfidenceScore: 0.74, PredictedRating: 74,
			Reason: "Recommended based on similar users", SimilarUsers: []int{3},
		},
	}

	if err := db.UpsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("UpsertRecommendations() error = %v", err)
	}
	// Second run with unchanged inputs must not add rows.
	if err := db.UpsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("UpsertRecommendations(rerun) error = %v", err)
	}

	stored, err := db.GetRecommendations(ctx, 1, 100)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("len(stored) = %d, want 2", len(stored))
	}

	// Ordered by confidence descending.
	if stored[0].MovieID != 10 || stored[1].MovieID != 11 {
		t.Errorf("order = [%d, %d], want [10, 11]", stored[0].MovieID, stored[1].MovieID)
	}
	if got := stored[0].SimilarUsers; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("SimilarUsers = %v, want [2 3]", got)
	}
}

func TestCountRecommendationsIgnoresExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	recs := []models.Recommendation{
		{UserID: 1, MovieID: 10, Source: models.SourceCollaborative, ConfidenceScore: 0.9, PredictedRating: 90, ExpiresAt: &past},
		{UserID: 1, MovieID: 11, Source: models.SourceCollaborative, ConfidenceScore: 0.8, PredictedRating: 80, ExpiresAt: &future},
		{UserID: 1, MovieID: 12, Source: models.SourcePopularity, ConfidenceScore: 0.5, PredictedRating: 50},
	}
	if err := db.UpsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("UpsertRecommendations() error = %v", err)
	}

	// The expired row is not active; the future-dated and open-ended rows are.
	count, err := db.CountRecommendations(ctx, 1)
	if err != nil {
		t.Fatalf("CountRecommendations() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	count, err = db.CountRecommendations(ctx, 2)
	if err != nil {
		t.Fatalf("CountRecommendations(no rows) error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for a user with no rows", count)
	}
}

func TestPurgeRecommendationsBoundary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	recs := []models.Recommendation{
		{UserID: 1, MovieID: 10, Source: models.SourcePopularity, ConfidenceScore: 0.5, PredictedRating: 50},
	}
	if err := db.UpsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("UpsertRecommendations() error = %v", err)
	}

	// Cutoff in the past: the fresh row survives.
	deleted, err := db.PurgeRecommendationsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeRecommendationsBefore() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 for rows inside the window", deleted)
	}

	// Cutoff in the future: the row is purged.
	deleted, err = db.PurgeRecommendationsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeRecommendationsBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	stored, err := db.GetRecommendations(ctx, 1, 100)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("len(stored) = %d, want 0 after purge", len(stored))
	}
}

func TestRecommendationFlagsAndFeedback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	recs := []models.Recommendation{
		{UserID: 4, MovieID: 20, Source: models.SourceCollaborative, ConfidenceScore: 0.9, PredictedRating: 90},
	}
	if err := db.UpsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("UpsertRecommendations() error = %v", err)
	}

	if err := db.MarkRecommendationSeen(ctx, 4, 20); err != nil {
		t.Fatalf("MarkRecommendationSeen() error = %v", err)
	}
	if err := db.SetRecommendationFeedback(ctx, 4, 20, models.FeedbackHelpful); err != nil {
		t.Fatalf("SetRecommendationFeedback() error = %v", err)
	}

	stored, err := db.GetRecommendations(ctx, 4, 10)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("len(stored) = %d, want 1", len(stored))
	}
	if !stored[0].IsSeen {
		t.Error("IsSeen = false, want true")
	}
	if stored[0].UserFeedback != models.FeedbackHelpful {
		t.Errorf("UserFeedback = %q, want helpful", stored[0].UserFeedback)
	}
}

func TestGetPopularMoviesOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedMovie(t, db, 1, "Low", 1.5)
	seedMovie(t, db, 2, "High", 99.0)
	seedMovie(t, db, 3, "Mid", 40.2)

	movies, err := db.GetPopularMovies(ctx, 2)
	if err != nil {
		t.Fatalf("GetPopularMovies() error = %v", err)
	}
	if len(movies) != 2 {
		t.Fatalf("len(movies) = %d, want 2", len(movies))
	}
	if movies[0].ID != 2 || movies[1].ID != 3 {
		t.Errorf("order = [%d, %d], want [2, 3]", movies[0].ID, movies[1].ID)
	}
}

func TestGetPositiveRatings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedRating(t, db, 1, 10, 90)
	seedRating(t, db, 2, 10, 75)
	seedRating(t, db, 2, 11, 50) // below threshold
	seedRating(t, db, 3, 11, 95) // user not in the query set

	byMovie, err := db.GetPositiveRatings(ctx, []int{1, 2}, 70)
	if err != nil {
		t.Fatalf("GetPositiveRatings() error = %v", err)
	}

	if len(byMovie[10]) != 2 {
		t.Errorf("movie 10 contributors = %d, want 2", len(byMovie[10]))
	}
	if len(byMovie[11]) != 0 {
		t.Errorf("movie 11 contributors = %d, want 0", len(byMovie[11]))
	}
}

func TestGetRaterIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedRating(t, db, 3, 1, 80)
	seedRating(t, db, 1, 1, 70)
	seedRating(t, db, 1, 2, 60)

	ids, err := db.GetRaterIDs(ctx)
	if err != nil {
		t.Fatalf("GetRaterIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v, want [1 3]", ids)
	}
}
