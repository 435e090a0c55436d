// CamFlix Recommender - Collaborative Filtering Batch Engine
// Copyright 2026 CamFlix
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/camflix/recommender

// Package api provides the HTTP API for the recommender, built on chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles middleware and handlers into the service's HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router from a handler and middleware factory.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	if middleware == nil {
		middleware = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: middleware}
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Route("/recommendations/user/{userID}", func(r chi.Router) {
			r.Get("/", router.handler.GetRecommendations)
			r.Post("/refresh", router.handler.RefreshRecommendations)

			r.Route("/movie/{movieID}", func(r chi.Router) {
				r.Post("/seen", router.handler.MarkSeen)
				r.Post("/dismiss", router.handler.Dismiss)
				r.Post("/feedback", router.handler.SubmitFeedback)
			})
		})

		r.Get("/similarity/user/{userID}", router.handler.GetSimilarUsers)
		r.Post("/ratings", router.handler.SubmitRating)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
