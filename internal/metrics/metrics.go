// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the batch pipeline and the API surface:
// - Similarity batch throughput and duration
// - Recommendation generation per source (collaborative vs popularity)
// - Retention cleanup
// - Database query performance (DuckDB)
// - API endpoint latency and throughput

var (
	// Similarity Batch Metrics
	SimilarityBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "similarity_batch_duration_seconds",
			Help:    "Duration of similarity recompute batches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SimilarityPairsComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_pairs_computed_total",
			Help: "Total number of user pairs evaluated for similarity",
		},
	)

	SimilarityPairsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_pairs_stored_total",
			Help: "Total number of similarity scores written, by calculation method",
		},
		[]string{"method"}, // "pearson", "mean_abs_diff"
	)

	SimilarityDirtyUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "similarity_dirty_users",
			Help: "Number of users pending similarity recompute at batch start",
		},
	)

	SimilarityBatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_batch_errors_total",
			Help: "Total number of per-user failures during similarity batches",
		},
	)

	// Recommendation Metrics
	RecommendationBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_batch_duration_seconds",
			Help:    "Duration of recommendation generation batches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	RecommendationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_generated_total",
			Help: "Total number of recommendations written, by source",
		},
		[]string{"source"}, // "collaborative", "popularity"
	)

	RecommendationUsersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_users_processed_total",
			Help: "Total number of users a recommendation set was generated for",
		},
	)

	RecommendationBatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_batch_errors_total",
			Help: "Total number of per-user failures during recommendation batches",
		},
	)

	// Cleanup Metrics
	RecommendationsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_purged_total",
			Help: "Total number of recommendations removed by retention cleanup",
		},
	)

	CleanupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cleanup_duration_seconds",
			Help:    "Duration of retention cleanup runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RatingsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratings_ingested_total",
			Help: "Total number of ratings accepted via the API",
		},
	)
)

// RecordSimilarityBatch records the outcome of one similarity batch run.
func RecordSimilarityBatch(duration time.Duration, pairsComputed int, failures int) {
	SimilarityBatchDuration.Observe(duration.Seconds())
	SimilarityPairsComputed.Add(float64(pairsComputed))
	if failures > 0 {
		SimilarityBatchErrors.Add(float64(failures))
	}
}

// RecordSimilarityStored records a written similarity score by method.
func RecordSimilarityStored(method string) {
	SimilarityPairsStored.WithLabelValues(method).Inc()
}

// RecordRecommendationBatch records the outcome of one generation batch run.
func RecordRecommendationBatch(duration time.Duration, usersProcessed int, failures int) {
	RecommendationBatchDuration.Observe(duration.Seconds())
	RecommendationUsersProcessed.Add(float64(usersProcessed))
	if failures > 0 {
		RecommendationBatchErrors.Add(float64(failures))
	}
}

// RecordRecommendationsGenerated records written recommendations by source.
func RecordRecommendationsGenerated(source string, count int) {
	RecommendationsGenerated.WithLabelValues(source).Add(float64(count))
}

// RecordCleanup records a retention cleanup run.
func RecordCleanup(duration time.Duration, purged int64) {
	CleanupDuration.Observe(duration.Seconds())
	RecommendationsPurged.Add(float64(purged))
}

// RecordDBQuery records a database query with its outcome.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
}
