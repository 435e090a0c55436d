// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package similarity

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/camflix/recommender/internal/config"
	"github.com/camflix/recommender/internal/logging"
	"github.com/camflix/recommender/internal/metrics"
	"github.com/camflix/recommender/internal/models"
)

// Store is the persistence surface the engine needs. *database.DB satisfies it.
type Store interface {
	GetRaterIDs(ctx context.Context) ([]int, error)
	GetDirtyUserIDs(ctx context.Context) ([]int, error)
	GetUserRatings(ctx context.Context, userID int) (map[int]int, error)
	UpsertSimilarity(ctx context.Context, sim *models.UserSimilarity) error
	ClearDirtyUsers(ctx context.Context, before time.Time) error
}

// Engine computes pairwise user similarity from rating overlap.
//
// Scores are Pearson correlation over co-rated movies, mapped from [-1, 1]
// to [0, 1]. When either user's scores on the overlap are constant the
// correlation is undefined, and the engine falls back to mean absolute
// difference: sim = 1 - meanAbsDiff/100.
type Engine struct {
	store   Store
	cfg     config.EngineConfig
	limiter *rate.Limiter
}

// PairResult is the outcome of comparing two users' rating vectors.
type PairResult struct {
	Score        float64
	CommonMovies int
	Method       models.SimilarityMethod
}

// BatchResult summarizes one similarity batch run.
type BatchResult struct {
	DirtyUsers    int
	PairsComputed int
	PairsStored   int
	Failures      int
	Duration      time.Duration
}

// New creates a similarity engine. Workers <= 0 means one worker per CPU.
func New(store Store, cfg config.EngineConfig) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}

	limit := rate.Inf
	if cfg.UpsertRatePerSecond > 0 {
		limit = rate.Limit(cfg.UpsertRatePerSecond)
	}

	return &Engine{
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.UpsertRatePerSecond+1),
	}
}

// ComputePair compares two rating vectors (movieID -> score). The second
// return is false when the users share fewer than the configured minimum
// of co-rated movies and no score should be stored.
func (e *Engine) ComputePair(a, b map[int]int) (PairResult, bool) {
	common := make([]int, 0, len(a))
	for movieID := range a {
		if _, ok := b[movieID]; ok {
			common = append(common, movieID)
		}
	}

	if len(common) < e.cfg.MinCommonMovies {
		return PairResult{}, false
	}

	scoresA := make([]float64, len(common))
	scoresB := make([]float64, len(common))
	for i, movieID := range common {
		scoresA[i] = float64(a[movieID])
		scoresB[i] = float64(b[movieID])
	}

	score, method := pearson(scoresA, scoresB)
	return PairResult{
		Score:        clamp01(score),
		CommonMovies: len(common),
		Method:       method,
	}, true
}

// pearson computes (r+1)/2 over the two score vectors, falling back to
// mean absolute difference when either vector is constant.
func pearson(a, b []float64) (float64, models.SimilarityMethod) {
	n := float64(len(a))

	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / n
	meanB := sumB / n

	var num, denA, denB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}

	if denA == 0 || denB == 0 {
		return meanAbsDiff(a, b), models.MethodMeanAbsDiff
	}

	r := num / math.Sqrt(denA*denB)
	return (r + 1) / 2, models.MethodPearson
}

// meanAbsDiff maps average score distance to [0, 1] similarity on the
// 0-100 rating scale.
func meanAbsDiff(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return 1 - (sum/float64(len(a)))/100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Run recomputes similarities for every user with rating activity since the
// last batch. The dirty set is snapshotted at batch start; ratings arriving
// mid-batch keep their marks and are picked up next run.
func (e *Engine) Run(ctx context.Context) (*BatchResult, error) {
	start := time.Now()
	log := logging.Ctx(ctx)

	dirty, err := e.store.GetDirtyUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dirty users: %w", err)
	}
	metrics.SimilarityDirtyUsers.Set(float64(len(dirty)))

	if len(dirty) == 0 {
		log.Debug().Msg("similarity batch: no dirty users")
		return &BatchResult{Duration: time.Since(start)}, nil
	}

	raters, err := e.store.GetRaterIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rater ids: %w", err)
	}

	log.Info().
		Int("dirty_users", len(dirty)).
		Int("total_raters", len(raters)).
		Msg("similarity batch started")

	vectors, loadFailures := e.loadVectors(ctx, raters)

	dirtySet := make(map[int]struct{}, len(dirty))
	for _, id := range dirty {
		dirtySet[id] = struct{}{}
	}

	res := e.computePairs(ctx, dirty, dirtySet, raters, vectors)
	res.DirtyUsers = len(dirty)
	res.Failures += loadFailures

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.store.ClearDirtyUsers(ctx, start); err != nil {
		return nil, fmt.Errorf("clear dirty users: %w", err)
	}

	res.Duration = time.Since(start)
	metrics.RecordSimilarityBatch(res.Duration, res.PairsComputed, res.Failures)

	log.Info().
		Int("pairs_computed", res.PairsComputed).
		Int("pairs_stored", res.PairsStored).
		Int("failures", res.Failures).
		Dur("duration", res.Duration).
		Msg("similarity batch finished")

	return res, nil
}

// ComputeForUser recomputes one user's similarities against all raters,
// regardless of dirty state. Used for on-demand refresh.
func (e *Engine) ComputeForUser(ctx context.Context, userID int) (int, error) {
	target, err := e.store.GetUserRatings(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load ratings for user %d: %w", userID, err)
	}

	raters, err := e.store.GetRaterIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load rater ids: %w", err)
	}

	stored := 0
	for _, otherID := range raters {
		if otherID == userID {
			continue
		}

		other, err := e.store.GetUserRatings(ctx, otherID)
		if err != nil {
			return stored, fmt.Errorf("load ratings for user %d: %w", otherID, err)
		}

		pair, ok := e.ComputePair(target, other)
		if !ok {
			continue
		}

		if err := e.upsert(ctx, userID, otherID, pair); err != nil {
			return stored, err
		}
		stored++
	}

	return stored, nil
}

// loadVectors fetches the rating vector for each rater. A user whose load
// fails is skipped and counted; the batch proceeds without them.
func (e *Engine) loadVectors(ctx context.Context, raters []int) (map[int]map[int]int, int) {
	log := logging.Ctx(ctx)
	vectors := make(map[int]map[int]int, len(raters))
	failures := 0

	for _, id := range raters {
		ratings, err := e.store.GetUserRatings(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int("user_id", id).Msg("skipping user: ratings load failed")
			failures++
			continue
		}
		vectors[id] = ratings
	}
	return vectors, failures
}

// computePairs fans dirty users out over at most cfg.Workers goroutines.
// Each dirty user is compared against every rater; a pair of two dirty
// users is computed once, by the lower-ID side.
func (e *Engine) computePairs(
	ctx context.Context,
	dirty []int,
	dirtySet map[int]struct{},
	raters []int,
	vectors map[int]map[int]int,
) *BatchResult {
	res := &BatchResult{}

	var wg sync.WaitGroup
	var mu sync.Mutex

	// One chunk per worker; ChunkSize is a floor so a small dirty set
	// does not spawn a goroutine per user.
	chunkSize := (len(dirty) + e.cfg.Workers - 1) / e.cfg.Workers
	if chunkSize < e.cfg.ChunkSize {
		chunkSize = e.cfg.ChunkSize
	}
	for start := 0; start < len(dirty); start += chunkSize {
		end := start + chunkSize
		if end > len(dirty) {
			end = len(dirty)
		}

		wg.Add(1)
		go func(users []int) {
			defer wg.Done()

			var computed, stored, failures int
			for _, userID := range users {
				if ctx.Err() != nil {
					break
				}
				c, s, f := e.computeUserPairs(ctx, userID, dirtySet, raters, vectors)
				computed += c
				stored += s
				failures += f
			}

			mu.Lock()
			res.PairsComputed += computed
			res.PairsStored += stored
			res.Failures += failures
			mu.Unlock()
		}(dirty[start:end])
	}

	wg.Wait()
	return res
}

func (e *Engine) computeUserPairs(
	ctx context.Context,
	userID int,
	dirtySet map[int]struct{},
	raters []int,
	vectors map[int]map[int]int,
) (computed, stored, failures int) {
	log := logging.Ctx(ctx)

	target, ok := vectors[userID]
	if !ok {
		return 0, 0, 0
	}

	for _, otherID := range raters {
		if otherID == userID {
			continue
		}
		// Both dirty: the lower ID owns the pair.
		if _, otherDirty := dirtySet[otherID]; otherDirty && otherID < userID {
			continue
		}

		other, ok := vectors[otherID]
		if !ok {
			continue
		}

		pair, pairOK := e.ComputePair(target, other)
		computed++
		if !pairOK {
			continue
		}

		if err := e.upsert(ctx, userID, otherID, pair); err != nil {
			if ctx.Err() != nil {
				return computed, stored, failures
			}
			log.Warn().Err(err).
				Int("user_a", userID).
				Int("user_b", otherID).
				Msg("similarity upsert failed")
			failures++
			continue
		}
		stored++
	}

	return computed, stored, failures
}

func (e *Engine) upsert(ctx context.Context, userA, userB int, pair PairResult) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	err := e.store.UpsertSimilarity(ctx, &models.UserSimilarity{
		UserA:        userA,
		UserB:        userB,
		Score:        pair.Score,
		CommonMovies: pair.CommonMovies,
		Method:       pair.Method,
		CalculatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	metrics.RecordSimilarityStored(string(pair.Method))
	return nil
}
