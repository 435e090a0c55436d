// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/camflix/recommender/internal/config"
	"github.com/camflix/recommender/internal/logging"
	"github.com/camflix/recommender/internal/metrics"
	"github.com/camflix/recommender/internal/models"
)

// ErrUnknownUser is returned when recommendations are requested for a user
// that does not exist.
var ErrUnknownUser = errors.New("unknown user")

// Store is the persistence surface the generator needs. *database.DB
// satisfies it.
type Store interface {
	UserExists(ctx context.Context, userID int) (bool, error)
	GetRaterIDs(ctx context.Context) ([]int, error)
	GetUserRatings(ctx context.Context, userID int) (map[int]int, error)
	GetTopSimilarUsers(ctx context.Context, userID, k int) ([]models.UserSimilarity, error)
	GetPositiveRatings(ctx context.Context, userIDs []int, minScore int) (map[int][]models.Rating, error)
	GetPopularMovies(ctx context.Context, limit int) ([]models.Movie, error)
	UpsertRecommendations(ctx context.Context, recs []models.Recommendation) error
	CountRecommendations(ctx context.Context, userID int) (int, error)
	PurgeRecommendationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Generator builds per-user recommendation sets from the similarity matrix.
//
// For a user with similarity data, candidates are movies their top-K similar
// users scored at or above the positive threshold, minus movies the user has
// already rated. Candidates backed by too few co-raters are dropped, the
// rest are ranked by average score across contributors. Users without any
// similarity data fall back to a global popularity list.
type Generator struct {
	store Store
	cfg   config.EngineConfig
}

// BatchResult summarizes one generation batch run.
type BatchResult struct {
	UsersProcessed int
	Skipped        int
	Generated      int
	Failures       int
	Duration       time.Duration
}

// New creates a recommendation generator.
func New(store Store, cfg config.EngineConfig) *Generator {
	return &Generator{store: store, cfg: cfg}
}

// candidate accumulates contributor scores for one movie.
type candidate struct {
	movieID int
	total   int
	raters  []int
}

func (c *candidate) average() float64 {
	return float64(c.total) / float64(len(c.raters))
}

// Generate builds and persists the recommendation set for one user, and
// returns the rows that were written. Re-running with unchanged inputs
// produces the same set; stored rows are updated, not duplicated.
func (g *Generator) Generate(ctx context.Context, userID int) ([]models.Recommendation, error) {
	exists, err := g.store.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user %d: %w", userID, err)
	}
	if !exists {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}

	similar, err := g.store.GetTopSimilarUsers(ctx, userID, g.cfg.TopKSimilar)
	if err != nil {
		return nil, fmt.Errorf("load similar users for %d: %w", userID, err)
	}

	var recs []models.Recommendation
	if len(similar) == 0 {
		recs, err = g.popularityFallback(ctx, userID)
	} else {
		recs, err = g.collaborative(ctx, userID, similar)
	}
	if err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return recs, nil
	}

	if err := g.store.UpsertRecommendations(ctx, recs); err != nil {
		return nil, fmt.Errorf("store recommendations for %d: %w", userID, err)
	}

	metrics.RecordRecommendationsGenerated(string(recs[0].Source), len(recs))
	return recs, nil
}

// collaborative derives recommendations from the positive ratings of the
// user's most similar peers.
func (g *Generator) collaborative(
	ctx context.Context,
	userID int,
	similar []models.UserSimilarity,
) ([]models.Recommendation, error) {
	rated, err := g.store.GetUserRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ratings for %d: %w", userID, err)
	}

	similarIDs := make([]int, len(similar))
	for i := range similar {
		similarIDs[i] = similar[i].Other(userID)
	}

	positive, err := g.store.GetPositiveRatings(ctx, similarIDs, g.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("load positive ratings: %w", err)
	}

	candidates := make([]*candidate, 0, len(positive))
	for movieID, ratings := range positive {
		if _, alreadyRated := rated[movieID]; alreadyRated {
			continue
		}
		if len(ratings) < g.cfg.MinCoRaters {
			continue
		}

		c := &candidate{movieID: movieID}
		for i := range ratings {
			c.total += ratings[i].Score
			c.raters = append(c.raters, ratings[i].UserID)
		}
		candidates = append(candidates, c)
	}

	// Rank by average contributor score; movie ID breaks ties so output
	// is stable across runs.
	sort.Slice(candidates, func(i, j int) bool {
		ai, aj := candidates[i].average(), candidates[j].average()
		if ai != aj {
			return ai > aj
		}
		return candidates[i].movieID < candidates[j].movieID
	})

	limit := g.cfg.BatchSize
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	expires := now.Add(g.cfg.Retention)

	recs := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		avg := c.average()
		sort.Ints(c.raters)
		recs[i] = models.Recommendation{
			UserID:          userID,
			MovieID:         c.movieID,
			Source:          models.SourceCollaborative,
			ConfidenceScore: avg / 100,
			PredictedRating: avg,
			Reason:          fmt.Sprintf("Liked by %d users with similar taste", len(c.raters)),
			SimilarUsers:    c.raters,
			CreatedAt:       now,
			ExpiresAt:       &expires,
		}
	}
	return recs, nil
}

// popularityFallback builds a cold-start set from globally popular movies
// the user has not rated.
func (g *Generator) popularityFallback(ctx context.Context, userID int) ([]models.Recommendation, error) {
	rated, err := g.store.GetUserRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ratings for %d: %w", userID, err)
	}

	// Over-fetch so exclusions still leave a full set.
	popular, err := g.store.GetPopularMovies(ctx, g.cfg.BatchSize+len(rated))
	if err != nil {
		return nil, fmt.Errorf("load popular movies: %w", err)
	}

	now := time.Now().UTC()
	expires := now.Add(g.cfg.Retention)

	recs := make([]models.Recommendation, 0, g.cfg.BatchSize)
	for i := range popular {
		if len(recs) == g.cfg.BatchSize {
			break
		}
		if _, alreadyRated := rated[popular[i].ID]; alreadyRated {
			continue
		}
		recs = append(recs, models.Recommendation{
			UserID:          userID,
			MovieID:         popular[i].ID,
			Source:          models.SourcePopularity,
			ConfidenceScore: 0.5,
			PredictedRating: popular[i].VoteAverage,
			Reason:          "Popular with CamFlix viewers",
			CreatedAt:       now,
			ExpiresAt:       &expires,
		})
	}
	return recs, nil
}

// GenerateAll regenerates recommendations for every rated user whose
// stored set is missing or fully expired. Users with active rows are
// skipped; they refresh when their rows expire or on explicit refresh.
// A failure for one user is logged and counted; the batch continues with
// the rest.
func (g *Generator) GenerateAll(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	log := logging.Ctx(ctx)

	userIDs, err := g.store.GetRaterIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rater ids: %w", err)
	}

	log.Info().Int("users", len(userIDs)).Msg("recommendation batch started")

	res := &BatchResult{}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		active, err := g.store.CountRecommendations(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Int("user_id", userID).
				Msg("recommendation count failed; regenerating")
		} else if active > 0 {
			res.Skipped++
			continue
		}

		recs, err := g.Generate(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Int("user_id", userID).Msg("generation failed")
			res.Failures++
			continue
		}
		res.UsersProcessed++
		res.Generated += len(recs)
	}

	res.Duration = time.Since(start)
	metrics.RecordRecommendationBatch(res.Duration, res.UsersProcessed, res.Failures)

	log.Info().
		Int("users_processed", res.UsersProcessed).
		Int("skipped", res.Skipped).
		Int("generated", res.Generated).
		Int("failures", res.Failures).
		Dur("duration", res.Duration).
		Msg("recommendation batch finished")

	return res, nil
}

// PurgeExpired removes recommendations older than the retention window and
// returns how many rows were deleted.
func (g *Generator) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := start.Add(-g.cfg.Retention)

	deleted, err := g.store.PurgeRecommendationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge recommendations: %w", err)
	}

	metrics.RecordCleanup(time.Since(start), deleted)

	logging.Ctx(ctx).Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("recommendation retention cleanup finished")

	return deleted, nil
}
