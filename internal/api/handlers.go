// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/ledger"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/monitor"
	"github.com/cadenza-music/cadenza/internal/reconcile"
	"github.com/cadenza-music/cadenza/internal/sources"
)

// PassRunner is the slice of the reconciliation engine the API drives.
type PassRunner interface {
	DownloadPass(ctx context.Context, user string) (*reconcile.PassSummary, error)
	CleanupPass(ctx context.Context, user string) (*reconcile.PassSummary, error)
	Download(ctx context.Context, user string, recs []sources.Recommendation) (*reconcile.PassSummary, error)
	InFlight(user string) bool
	RegisterManagedPlaylist(name string)
}

// Extractor resolves a playlist URL into its current track list.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, []sources.Recommendation, error)
}

// ReleaseLister surfaces upcoming releases from a discovery source.
type ReleaseLister interface {
	FreshReleases(ctx context.Context) ([]sources.Release, error)
}

// Rater writes a rating back to the library server.
type Rater interface {
	SetRating(ctx context.Context, id string, rating int) error
}

// Handlers implements the admin endpoints.
type Handlers struct {
	engine    PassRunner
	extractor Extractor
	monitored *monitor.Store
	ledgerDir string

	// releases is nil when no source offers fresh releases.
	releases ReleaseLister
	rater    Rater

	// defaultUser receives passes triggered without an explicit user.
	defaultUser string

	// ready reports whether the library server answers; readyz surfaces it.
	ready func(ctx context.Context) error
}

// HandlersOptions wires the handlers' collaborators.
type HandlersOptions struct {
	Engine      PassRunner
	Extractor   Extractor
	Monitored   *monitor.Store
	LedgerDir   string
	DefaultUser string
	Ready       func(ctx context.Context) error
	Releases    ReleaseLister
	Rater       Rater
}

// NewHandlers builds the handler set.
func NewHandlers(opts HandlersOptions) *Handlers {
	return &Handlers{
		engine:      opts.Engine,
		extractor:   opts.Extractor,
		monitored:   opts.Monitored,
		ledgerDir:   opts.LedgerDir,
		defaultUser: opts.DefaultUser,
		ready:       opts.Ready,
		releases:    opts.Releases,
		rater:       opts.Rater,
	}
}

// HealthLive answers as long as the process is up.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady additionally checks the library server connection.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}

type passRequest struct {
	User string `json:"user"`
}

// TriggerDownloadPass starts a download pass in the background.
func (h *Handlers) TriggerDownloadPass(w http.ResponseWriter, r *http.Request) {
	h.triggerPass(w, r, "download", h.engine.DownloadPass)
}

// TriggerCleanupPass starts a cleanup pass in the background.
func (h *Handlers) TriggerCleanupPass(w http.ResponseWriter, r *http.Request) {
	h.triggerPass(w, r, "cleanup", h.engine.CleanupPass)
}

func (h *Handlers) triggerPass(w http.ResponseWriter, r *http.Request, kind string, run func(context.Context, string) (*reconcile.PassSummary, error)) {
	var req passRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	user := req.User
	if user == "" {
		user = h.defaultUser
	}
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "user is required")
		return
	}
	if h.engine.InFlight(user) {
		writeError(w, r, http.StatusConflict, "pass_in_flight", "a pass is already running for "+user)
		return
	}

	go func() {
		if _, err := run(context.Background(), user); err != nil && !errors.Is(err, reconcile.ErrPassInFlight) {
			logging.Error().Err(err).Str("user", user).Str("kind", kind).Msg("Triggered pass failed")
		}
	}()

	writeData(w, http.StatusAccepted, map[string]string{
		"user":   user,
		"kind":   kind,
		"status": "started",
	})
}

type manualDownloadRequest struct {
	User   string `json:"user"`
	URL    string `json:"url,omitempty"`
	Artist string `json:"artist,omitempty"`
	Title  string `json:"title,omitempty"`
	Album  string `json:"album,omitempty"`
}

// ManualDownload queues a one-off download: either a playlist URL, which
// is extracted before the pass starts, or a single artist and title.
func (h *Handlers) ManualDownload(w http.ResponseWriter, r *http.Request) {
	var req manualDownloadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	user := req.User
	if user == "" {
		user = h.defaultUser
	}
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "user is required")
		return
	}

	var recs []sources.Recommendation
	switch {
	case req.URL != "":
		name, extracted, err := h.extractor.Extract(r.Context(), req.URL)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "extraction_failed", err.Error())
			return
		}
		if name != "" {
			h.engine.RegisterManagedPlaylist(name)
		}
		recs = extracted
	case req.Artist != "" && req.Title != "":
		recs = []sources.Recommendation{{
			Artist: req.Artist,
			Title:  req.Title,
			Album:  req.Album,
			Source: sources.SourceManual,
		}}
	default:
		writeError(w, r, http.StatusBadRequest, "bad_request", "provide either url or artist and title")
		return
	}

	if h.engine.InFlight(user) {
		writeError(w, r, http.StatusConflict, "pass_in_flight", "a pass is already running for "+user)
		return
	}

	go func() {
		if _, err := h.engine.Download(context.Background(), user, recs); err != nil && !errors.Is(err, reconcile.ErrPassInFlight) {
			logging.Error().Err(err).Str("user", user).Msg("Manual download failed")
		}
	}()

	writeData(w, http.StatusAccepted, map[string]any{
		"user":   user,
		"tracks": len(recs),
		"status": "started",
	})
}

// LedgerUsers lists every user with a ledger file.
func (h *Handlers) LedgerUsers(w http.ResponseWriter, r *http.Request) {
	users, err := ledger.Discover(h.ledgerDir)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"users": users})
}

// LedgerByUser returns one user's tracked downloads grouped by source.
func (h *Handlers) LedgerByUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	data, err := ledger.NewStore(h.ledgerDir, user).Load()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeData(w, http.StatusOK, data)
}

// FreshReleases lists upcoming releases for the configured discovery
// account. 404 when no enabled source provides them.
func (h *Handlers) FreshReleases(w http.ResponseWriter, r *http.Request) {
	if h.releases == nil {
		writeError(w, r, http.StatusNotFound, "not_available", "no release source is enabled")
		return
	}
	releases, err := h.releases.FreshReleases(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "upstream_failed", err.Error())
		return
	}
	if releases == nil {
		releases = []sources.Release{}
	}
	writeData(w, http.StatusOK, releases)
}

type rateTrackRequest struct {
	Rating int `json:"rating"`
}

// RateTrack sets a track's rating on the library server. Rating 0 clears
// an existing rating.
func (h *Handlers) RateTrack(w http.ResponseWriter, r *http.Request) {
	var req rateTrackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "rating must be between 0 and 5")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.rater.SetRating(r.Context(), id, req.Rating); err != nil {
		writeError(w, r, http.StatusBadGateway, "upstream_failed", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "rating": req.Rating})
}

// ListMonitored returns every monitored playlist.
func (h *Handlers) ListMonitored(w http.ResponseWriter, r *http.Request) {
	entries, err := h.monitored.List()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if entries == nil {
		entries = []monitor.Entry{}
	}
	writeData(w, http.StatusOK, entries)
}

type addMonitoredRequest struct {
	URL               string `json:"url"`
	Username          string `json:"username"`
	PollIntervalHours int    `json:"poll_interval_hours"`
}

// AddMonitored registers a playlist URL for periodic syncing.
func (h *Handlers) AddMonitored(w http.ResponseWriter, r *http.Request) {
	var req addMonitoredRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	username := req.Username
	if username == "" {
		username = h.defaultUser
	}
	if req.URL == "" || username == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "url and username are required")
		return
	}

	entry, err := h.monitored.Add(req.URL, username, req.PollIntervalHours)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeData(w, http.StatusCreated, entry)
}

type updateMonitoredRequest struct {
	Enabled           *bool `json:"enabled,omitempty"`
	PollIntervalHours *int  `json:"poll_interval_hours,omitempty"`
}

// UpdateMonitored toggles or retunes one monitored playlist.
func (h *Handlers) UpdateMonitored(w http.ResponseWriter, r *http.Request) {
	var req updateMonitoredRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	entry, err := h.monitored.Update(chi.URLParam(r, "id"), func(e *monitor.Entry) {
		if req.Enabled != nil {
			e.Enabled = *req.Enabled
		}
		if req.PollIntervalHours != nil {
			e.PollIntervalHours = *req.PollIntervalHours
		}
	})
	if errors.Is(err, monitor.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeData(w, http.StatusOK, entry)
}

// RemoveMonitored stops syncing a playlist.
func (h *Handlers) RemoveMonitored(w http.ResponseWriter, r *http.Request) {
	err := h.monitored.Remove(chi.URLParam(r, "id"))
	if errors.Is(err, monitor.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "removed"})
}

// decodeBody parses an optional JSON body. A missing body leaves v zero.
func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.New("invalid JSON body: " + strings.TrimSpace(err.Error()))
}
