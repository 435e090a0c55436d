// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package similarity

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camflix/recommender/internal/config"
	"github.com/camflix/recommender/internal/models"
)

// mockStore is an in-memory Store for engine tests.
type mockStore struct {
	mu       sync.Mutex
	ratings  map[int]map[int]int
	dirty    []int
	upserts  []models.UserSimilarity
	cleared  bool
	clearCut time.Time
}

func (m *mockStore) GetRaterIDs(_ context.Context) ([]int, error) {
	ids := make([]int, 0, len(m.ratings))
	for id := range m.ratings {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockStore) GetDirtyUserIDs(_ context.Context) ([]int, error) {
	return m.dirty, nil
}

func (m *mockStore) GetUserRatings(_ context.Context, userID int) (map[int]int, error) {
	r, ok := m.ratings[userID]
	if !ok {
		return nil, fmt.Errorf("no ratings for user %d", userID)
	}
	return r, nil
}

func (m *mockStore) UpsertSimilarity(_ context.Context, sim *models.UserSimilarity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, *sim)
	return nil
}

func (m *mockStore) ClearDirtyUsers(_ context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	m.clearCut = before
	return nil
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		MinCommonMovies:     3,
		TopKSimilar:         20,
		MinCoRaters:         2,
		MinScore:            70,
		Workers:             2,
		ChunkSize:           2,
		UpsertRatePerSecond: 0,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestComputePair(t *testing.T) {
	engine := New(&mockStore{}, testConfig())

	tests := []struct {
		name       string
		a, b       map[int]int
		wantOK     bool
		wantScore  float64
		wantCommon int
		wantMethod models.SimilarityMethod
	}{
		{
			name:       "strongly correlated tastes",
			a:          map[int]int{1: 80, 2: 90, 3: 40},
			b:          map[int]int{1: 85, 2: 95, 3: 35},
			wantOK:     true,
			wantScore:  0.9997,
			wantCommon: 3,
			wantMethod: models.MethodPearson,
		},
		{
			name:       "perfect negative correlation",
			a:          map[int]int{1: 10, 2: 50, 3: 90},
			b:          map[int]int{1: 90, 2: 50, 3: 10},
			wantOK:     true,
			wantScore:  0,
			wantCommon: 3,
			wantMethod: models.MethodPearson,
		},
		{
			name:       "constant vector falls back to mean distance",
			a:          map[int]int{1: 90, 2: 90, 3: 90},
			b:          map[int]int{1: 80, 2: 85, 3: 95},
			wantOK:     true,
			wantScore:  1 - (20.0/3.0)/100,
			wantCommon: 3,
			wantMethod: models.MethodMeanAbsDiff,
		},
		{
			name:       "identical constant vectors",
			a:          map[int]int{1: 70, 2: 70, 3: 70},
			b:          map[int]int{1: 70, 2: 70, 3: 70},
			wantOK:     true,
			wantScore:  1,
			wantCommon: 3,
			wantMethod: models.MethodMeanAbsDiff,
		},
		{
			name:   "too little overlap",
			a:      map[int]int{1: 80, 2: 90},
			b:      map[int]int{1: 85, 2: 95},
			wantOK: false,
		},
		{
			name:   "disjoint movie sets",
			a:      map[int]int{1: 80, 2: 90, 3: 40},
			b:      map[int]int{4: 85, 5: 95, 6: 35},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := engine.ComputePair(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !almostEqual(got.Score, tt.wantScore) {
				t.Errorf("Score = %f, want %f", got.Score, tt.wantScore)
			}
			if got.CommonMovies != tt.wantCommon {
				t.Errorf("CommonMovies = %d, want %d", got.CommonMovies, tt.wantCommon)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", got.Method, tt.wantMethod)
			}
		})
	}
}

func TestComputePairSymmetric(t *testing.T) {
	engine := New(&mockStore{}, testConfig())

	a := map[int]int{1: 80, 2: 90, 3: 40, 4: 65}
	b := map[int]int{1: 85, 2: 95, 3: 35, 5: 20}

	ab, okAB := engine.ComputePair(a, b)
	ba, okBA := engine.ComputePair(b, a)

	if okAB != okBA {
		t.Fatalf("ok mismatch: %v vs %v", okAB, okBA)
	}
	if !almostEqual(ab.Score, ba.Score) {
		t.Errorf("asymmetric score: %f vs %f", ab.Score, ba.Score)
	}
	if ab.CommonMovies != ba.CommonMovies {
		t.Errorf("asymmetric overlap: %d vs %d", ab.CommonMovies, ba.CommonMovies)
	}
}

func TestComputePairScoreRange(t *testing.T) {
	engine := New(&mockStore{}, testConfig())

	vectors := []map[int]int{
		{1: 0, 2: 100, 3: 0, 4: 100},
		{1: 100, 2: 0, 3: 100, 4: 0},
		{1: 50, 2: 50, 3: 50, 4: 50},
		{1: 0, 2: 0, 3: 0, 4: 100},
		{1: 33, 2: 67, 3: 12, 4: 98},
	}

	for i := range vectors {
		for j := range vectors {
			if i == j {
				continue
			}
			got, ok := engine.ComputePair(vectors[i], vectors[j])
			if !ok {
				continue
			}
			if got.Score < 0 || got.Score > 1 {
				t.Errorf("score out of range for pair (%d, %d): %f", i, j, got.Score)
			}
		}
	}
}

func TestRunComputesDirtyPairsOnce(t *testing.T) {
	store := &mockStore{
		ratings: map[int]map[int]int{
			1: {10: 80, 11: 90, 12: 40},
			2: {10: 85, 11: 95, 12: 35},
			3: {10: 20, 11: 30, 12: 70},
		},
		dirty: []int{1, 2},
	}
	engine := New(store, testConfig())

	res, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Pairs: (1,2) once despite both dirty, (1,3), (2,3).
	if res.PairsStored != 3 {
		t.Errorf("PairsStored = %d, want 3", res.PairsStored)
	}
	if res.DirtyUsers != 2 {
		t.Errorf("DirtyUsers = %d, want 2", res.DirtyUsers)
	}
	if res.Failures != 0 {
		t.Errorf("Failures = %d, want 0", res.Failures)
	}

	seen := make(map[[2]int]int)
	for _, up := range store.upserts {
		key := [2]int{up.UserA, up.UserB}
		if up.UserA > up.UserB {
			key = [2]int{up.UserB, up.UserA}
		}
		seen[key]++
	}
	for pair, count := range seen {
		if count != 1 {
			t.Errorf("pair %v stored %d times, want 1", pair, count)
		}
	}
	if len(seen) != 3 {
		t.Errorf("distinct pairs = %d, want 3", len(seen))
	}

	if !store.cleared {
		t.Error("dirty marks were not cleared after the batch")
	}
}

// concurrencyStore records the peak number of in-flight upserts.
type concurrencyStore struct {
	mockStore
	active atomic.Int32
	peak   atomic.Int32
}

func (c *concurrencyStore) UpsertSimilarity(ctx context.Context, sim *models.UserSimilarity) error {
	cur := c.active.Add(1)
	for {
		peak := c.peak.Load()
		if cur <= peak || c.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	c.active.Add(-1)
	return c.mockStore.UpsertSimilarity(ctx, sim)
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	ratings := make(map[int]map[int]int)
	dirty := make([]int, 0, 12)
	for id := 1; id <= 12; id++ {
		ratings[id] = map[int]int{10: 40 + id, 11: 90 - id, 12: 50 + 2*id}
		dirty = append(dirty, id)
	}

	tests := []struct {
		name     string
		workers  int
		wantPeak int32
	}{
		{name: "single worker is serial", workers: 1, wantPeak: 1},
		{name: "three workers", workers: 3, wantPeak: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &concurrencyStore{
				mockStore: mockStore{ratings: ratings, dirty: dirty},
			}
			cfg := testConfig()
			cfg.Workers = tt.workers
			cfg.ChunkSize = 1
			engine := New(store, cfg)

			res, err := engine.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.PairsStored != 66 {
				t.Errorf("PairsStored = %d, want 66", res.PairsStored)
			}
			if peak := store.peak.Load(); peak > tt.wantPeak {
				t.Errorf("peak concurrent upserts = %d, want <= %d", peak, tt.wantPeak)
			}
		})
	}
}

func TestRunNoDirtyUsers(t *testing.T) {
	store := &mockStore{
		ratings: map[int]map[int]int{1: {10: 80}},
	}
	engine := New(store, testConfig())

	res, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.PairsComputed != 0 || res.PairsStored != 0 {
		t.Errorf("result = %+v, want empty batch", res)
	}
	if store.cleared {
		t.Error("ClearDirtyUsers called on an empty batch")
	}
}

func TestRunSkipsThinOverlap(t *testing.T) {
	store := &mockStore{
		ratings: map[int]map[int]int{
			1: {10: 80, 11: 90},
			2: {10: 85, 11: 95},
		},
		dirty: []int{1},
	}
	engine := New(store, testConfig())

	res, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.PairsComputed != 1 {
		t.Errorf("PairsComputed = %d, want 1", res.PairsComputed)
	}
	if res.PairsStored != 0 {
		t.Errorf("PairsStored = %d, want 0 (only 2 common movies)", res.PairsStored)
	}
}

func TestComputeForUser(t *testing.T) {
	store := &mockStore{
		ratings: map[int]map[int]int{
			1: {10: 80, 11: 90, 12: 40},
			2: {10: 85, 11: 95, 12: 35},
			3: {99: 50},
		},
	}
	engine := New(store, testConfig())

	stored, err := engine.ComputeForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeForUser() error = %v", err)
	}
	if stored != 1 {
		t.Errorf("stored = %d, want 1 (user 3 has no overlap)", stored)
	}
}
