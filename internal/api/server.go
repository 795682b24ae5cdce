// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package api exposes the admin HTTP surface: pass triggers, the download
// ledger, and monitored playlist management. Pass triggers return
// immediately and run in the background; 409 means a pass for that user is
// already underway.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/logging"
)

// Server assembles the router over its collaborators.
type Server struct {
	cfg      config.ServerConfig
	handlers *Handlers
}

// NewServer builds the admin API server.
func NewServer(cfg config.ServerConfig, handlers *Handlers) *Server {
	return &Server{cfg: cfg, handlers: handlers}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handlers.HealthLive)
	r.Get("/readyz", s.handlers.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		window := s.cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, window))
		r.Use(s.authenticate)

		r.Post("/passes/download", s.handlers.TriggerDownloadPass)
		r.Post("/passes/cleanup", s.handlers.TriggerCleanupPass)
		r.Post("/downloads", s.handlers.ManualDownload)

		r.Get("/ledger", s.handlers.LedgerUsers)
		r.Get("/ledger/{user}", s.handlers.LedgerByUser)

		r.Get("/releases", s.handlers.FreshReleases)
		r.Put("/tracks/{id}/rating", s.handlers.RateTrack)

		r.Route("/monitored", func(r chi.Router) {
			r.Get("/", s.handlers.ListMonitored)
			r.Post("/", s.handlers.AddMonitored)
			r.Patch("/{id}", s.handlers.UpdateMonitored)
			r.Delete("/{id}", s.handlers.RemoveMonitored)
		})
	})

	return r
}

// authenticate enforces the static bearer token. An empty configured token
// leaves the API open, which is only sensible on a private network.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		logging.Warn().Msg("API auth token not set, admin endpoints are unauthenticated")
		return next
	}
	token := []byte(s.cfg.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), token) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
