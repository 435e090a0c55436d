// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/camflix/recommender/internal/cache"
	"github.com/camflix/recommender/internal/database"
	"github.com/camflix/recommender/internal/logging"
	"github.com/camflix/recommender/internal/metrics"
	"github.com/camflix/recommender/internal/models"
	"github.com/camflix/recommender/internal/recommend"
)

// defaultRecommendationLimit bounds GET responses when no limit is given.
const defaultRecommendationLimit = 50

// maxRecommendationLimit caps the client-supplied limit parameter.
const maxRecommendationLimit = 200

// Store is the persistence surface the handlers need. *database.DB
// satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	UserExists(ctx context.Context, userID int) (bool, error)
	GetMovie(ctx context.Context, movieID int) (*models.Movie, error)
	GetUserScores(ctx context.Context, userID int) ([]int, error)
	UpsertRating(ctx context.Context, rating *models.Rating) error
	GetRecommendations(ctx context.Context, userID, limit int) ([]models.Recommendation, error)
	GetTopSimilarUsers(ctx context.Context, userID, k int) ([]models.UserSimilarity, error)
	MarkRecommendationSeen(ctx context.Context, userID, movieID int) error
	MarkRecommendationDismissed(ctx context.Context, userID, movieID int) error
	SetRecommendationFeedback(ctx context.Context, userID, movieID int, feedback models.Feedback) error
}

// RecommendGenerator is the on-demand generation surface. Satisfied by
// *recommend.Generator.
type RecommendGenerator interface {
	Generate(ctx context.Context, userID int) ([]models.Recommendation, error)
}

// SimilarityRefresher recomputes one user's similarity rows against all
// raters. Satisfied by *similarity.Engine.
type SimilarityRefresher interface {
	ComputeForUser(ctx context.Context, userID int) (int, error)
}

// Handler serves the recommendation API.
type Handler struct {
	store     Store
	generator RecommendGenerator
	refresher SimilarityRefresher
	topK      int
	validate  *validator.Validate
	responses *cache.Cache
}

// NewHandler creates the API handler. topK bounds the similarity endpoint's
// response size. refresher may be nil to skip the similarity recompute on
// explicit refresh; responses may be nil to disable read caching.
func NewHandler(store Store, generator RecommendGenerator, refresher SimilarityRefresher, topK int, responses *cache.Cache) *Handler {
	if topK <= 0 {
		topK = 20
	}
	return &Handler{
		store:     store,
		generator: generator,
		refresher: refresher,
		topK:      topK,
		validate:  validator.New(),
		responses: responses,
	}
}

func (h *Handler) cached(key string) (interface{}, bool) {
	if h.responses == nil {
		return nil, false
	}
	return h.responses.Get(key)
}

func (h *Handler) storeCached(key string, payload interface{}) {
	if h.responses != nil {
		h.responses.Set(key, payload)
	}
}

func (h *Handler) invalidate(userID int) {
	if h.responses != nil {
		h.responses.InvalidateUser(userID)
	}
}

// Health reports service liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("health check: database unreachable")
		respondError(w, r, http.StatusServiceUnavailable, "DATABASE_ERROR", "database unreachable")
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"}, start)
}

// GetRecommendations returns the stored, ranked recommendation set for a
// user. Supports an optional limit query parameter.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	limit := defaultRecommendationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRecommendationLimit {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be an integer between 1 and 200")
			return
		}
		limit = parsed
	}

	cacheKey := cache.UserKey(userID, "recommendations", strconv.Itoa(limit))
	if payload, ok := h.cached(cacheKey); ok {
		respondJSON(w, r, http.StatusOK, payload, start)
		return
	}

	exists, err := h.store.UserExists(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "user lookup failed")
		return
	}
	if !exists {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	recs, err := h.store.GetRecommendations(r.Context(), userID, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("user_id", userID).
			Msg("recommendation lookup failed")
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "recommendation lookup failed")
		return
	}

	payload := map[string]interface{}{
		"user_id":         userID,
		"count":           len(recs),
		"recommendations": recs,
	}
	h.storeCached(cacheKey, payload)
	respondJSON(w, r, http.StatusOK, payload, start)
}

// RefreshRecommendations recomputes a user's similarities, regenerates
// their recommendation set, and returns the fresh rows. Without the
// similarity pass a rated user whose pairs were never computed would fall
// back to popularity on an explicit refresh.
func (h *Handler) RefreshRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	exists, err := h.store.UserExists(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "user lookup failed")
		return
	}
	if !exists {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	if h.refresher != nil {
		if _, err := h.refresher.ComputeForUser(r.Context(), userID); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Int("user_id", userID).
				Msg("similarity recompute failed; generating from stored rows")
		}
	}

	recs, err := h.generator.Generate(r.Context(), userID)
	if err != nil {
		if errors.Is(err, recommend.ErrUnknownUser) {
			respondError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Int("user_id", userID).
			Msg("on-demand generation failed")
		respondError(w, r, http.StatusInternalServerError, "GENERATION_ERROR", "recommendation generation failed")
		return
	}

	h.invalidate(userID)

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"user_id":         userID,
		"count":           len(recs),
		"recommendations": recs,
	}, start)
}

// similarUserEntry is one row of the similarity endpoint response.
type similarUserEntry struct {
	UserID       int     `json:"user_id"`
	Score        float64 `json:"score"`
	CommonMovies int     `json:"common_movies"`
	Method       string  `json:"method"`
}

// GetSimilarUsers returns the top-K most similar users for a user.
func (h *Handler) GetSimilarUsers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	cacheKey := cache.UserKey(userID, "similarity")
	if payload, ok := h.cached(cacheKey); ok {
		respondJSON(w, r, http.StatusOK, payload, start)
		return
	}

	exists, err := h.store.UserExists(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "user lookup failed")
		return
	}
	if !exists {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	sims, err := h.store.GetTopSimilarUsers(r.Context(), userID, h.topK)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("user_id", userID).
			Msg("similarity lookup failed")
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "similarity lookup failed")
		return
	}

	entries := make([]similarUserEntry, len(sims))
	for i := range sims {
		entries[i] = similarUserEntry{
			UserID:       sims[i].Other(userID),
			Score:        sims[i].Score,
			CommonMovies: sims[i].CommonMovies,
			Method:       string(sims[i].Method),
		}
	}

	payload := map[string]interface{}{
		"user_id":       userID,
		"count":         len(entries),
		"similar_users": entries,
	}
	h.storeCached(cacheKey, payload)
	respondJSON(w, r, http.StatusOK, payload, start)
}

// ratingRequest is the POST /ratings body.
type ratingRequest struct {
	UserID  int `json:"user_id" validate:"required,min=1"`
	MovieID int `json:"movie_id" validate:"required,min=1"`
	Score   int `json:"score" validate:"min=0,max=100"`
}

// SubmitRating ingests a rating: validates the body, computes the tier from
// the user's rating history, and stores the rating. The write marks the
// user for similarity recompute.
func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	exists, err := h.store.UserExists(r.Context(), req.UserID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "user lookup failed")
		return
	}
	if !exists {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}

	if _, err := h.store.GetMovie(r.Context(), req.MovieID); err != nil {
		if errors.Is(err, database.ErrMovieNotFound) {
			respondError(w, r, http.StatusNotFound, "NOT_FOUND", "movie not found")
			return
		}
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "movie lookup failed")
		return
	}

	history, err := h.store.GetUserScores(r.Context(), req.UserID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "rating history lookup failed")
		return
	}

	rating := &models.Rating{
		UserID:  req.UserID,
		MovieID: req.MovieID,
		Score:   req.Score,
		Tier:    models.ComputeTier(req.Score, history),
	}
	if err := h.store.UpsertRating(r.Context(), rating); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Int("user_id", req.UserID).
			Int("movie_id", req.MovieID).
			Msg("rating upsert failed")
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "rating write failed")
		return
	}

	metrics.RatingsIngested.Inc()
	h.invalidate(req.UserID)

	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"user_id":  req.UserID,
		"movie_id": req.MovieID,
		"score":    req.Score,
		"tier":     rating.Tier,
	}, start)
}

// MarkSeen flags a recommendation as seen by the user.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, func(ctx context.Context, userID, movieID int) error {
		return h.store.MarkRecommendationSeen(ctx, userID, movieID)
	})
}

// Dismiss flags a recommendation as dismissed.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, func(ctx context.Context, userID, movieID int) error {
		return h.store.MarkRecommendationDismissed(ctx, userID, movieID)
	})
}

// feedbackRequest is the feedback endpoint body.
type feedbackRequest struct {
	Feedback string `json:"feedback" validate:"required"`
}

// SubmitFeedback records structured feedback on a recommendation.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, movieID, ok := h.pathPair(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
		return
	}

	feedback := models.Feedback(req.Feedback)
	if !feedback.Valid() {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			"feedback must be one of: helpful, not_helpful, already_seen, not_interested")
		return
	}

	if err := h.store.SetRecommendationFeedback(r.Context(), userID, movieID, feedback); err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "feedback write failed")
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"movie_id": movieID,
		"feedback": feedback,
	}, start)
}

func (h *Handler) setFlag(w http.ResponseWriter, r *http.Request, set func(context.Context, int, int) error) {
	start := time.Now()

	userID, movieID, ok := h.pathPair(w, r)
	if !ok {
		return
	}

	if err := set(r.Context(), userID, movieID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "recommendation update failed")
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"movie_id": movieID,
	}, start)
}

// pathUserID parses the {userID} route parameter, writing a validation
// error on failure.
func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID < 1 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "userID must be a positive integer")
		return 0, false
	}
	return userID, true
}

// pathPair parses {userID} and {movieID} route parameters.
func (h *Handler) pathPair(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return 0, 0, false
	}
	movieID, err := strconv.Atoi(chi.URLParam(r, "movieID"))
	if err != nil || movieID < 1 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "movieID must be a positive integer")
		return 0, 0, false
	}
	return userID, movieID, true
}
