// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package reconcile runs the two lifecycle passes. The download pass turns
// recommendations into library files and playlist entries; the cleanup pass
// walks the download ledger and removes tracks nobody engaged with,
// releasing the ones that earned protection.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/events"
	"github.com/cadenza-music/cadenza/internal/ledger"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
	"github.com/cadenza-music/cadenza/internal/pathresolve"
	"github.com/cadenza-music/cadenza/internal/protect"
	"github.com/cadenza-music/cadenza/internal/sources"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// ErrPassInFlight is returned when a pass is requested for a user who
// already has one running.
var ErrPassInFlight = errors.New("a pass is already running for this user")

// Matcher finds the library track duplicating a recommendation, nil when
// nothing matches.
type Matcher interface {
	FindExisting(ctx context.Context, artist, title, album string) (*subsonic.Track, error)
}

// PathResolver maps a library track to a local filesystem path.
type PathResolver interface {
	Resolve(ctx context.Context, req pathresolve.Request) (string, error)
}

// Protector decides whether a tracked download has earned its place.
type Protector interface {
	Evaluate(ctx context.Context, trackID string) (*protect.Result, error)
}

// Playlists maintains engine-managed playlist membership.
type Playlists interface {
	SetMembership(ctx context.Context, name string, desiredIDs []string) error
	Members(ctx context.Context, name string) ([]string, error)
}

// Organizer files staged downloads into the library tree.
type Organizer interface {
	Organize(sourceDir string) (map[string]string, error)
}

// Fetcher retrieves one recommended track into destDir.
type Fetcher interface {
	Fetch(ctx context.Context, rec sources.Recommendation, destDir string) error
}

// Engine coordinates passes for all users against one library server.
type Engine struct {
	api       subsonic.API
	matcher   Matcher
	resolver  PathResolver
	protector Protector
	playlists Playlists
	organizer Organizer
	fetcher   Fetcher
	bus       *events.Bus

	providers []sources.Provider
	feedback  map[sources.Source]sources.FeedbackSubmitter

	ledgerDir string
	download  config.DownloadConfig
	cleanup   config.CleanupConfig

	// managed holds every playlist name the engine maintains, including
	// monitored playlist names registered at runtime.
	managedMu sync.Mutex
	managed   map[string]bool

	// inflight enforces one pass per user at a time.
	inflightMu sync.Mutex
	inflight   map[string]bool
}

// Options carries the engine's collaborators.
type Options struct {
	API       subsonic.API
	Matcher   Matcher
	Resolver  PathResolver
	Protector Protector
	Playlists Playlists
	Organizer Organizer
	Fetcher   Fetcher
	Bus       *events.Bus
	Providers []sources.Provider
	Feedback  map[sources.Source]sources.FeedbackSubmitter
	LedgerDir string
	Download  config.DownloadConfig
	Cleanup   config.CleanupConfig
}

// New builds the engine. The managed playlist set starts with the fixed
// per-source names; RegisterManagedPlaylist adds monitored ones.
func New(opts Options) *Engine {
	managed := make(map[string]bool)
	for _, name := range sources.ManagedPlaylists() {
		managed[name] = true
	}
	return &Engine{
		api:       opts.API,
		matcher:   opts.Matcher,
		resolver:  opts.Resolver,
		protector: opts.Protector,
		playlists: opts.Playlists,
		organizer: opts.Organizer,
		fetcher:   opts.Fetcher,
		bus:       opts.Bus,
		providers: opts.Providers,
		feedback:  opts.Feedback,
		ledgerDir: opts.LedgerDir,
		download:  opts.Download,
		cleanup:   opts.Cleanup,
		managed:   managed,
		inflight:  make(map[string]bool),
	}
}

// RegisterManagedPlaylist marks a playlist name as engine-managed so the
// cleanup pass prunes deleted tracks from it.
func (e *Engine) RegisterManagedPlaylist(name string) {
	if name == "" {
		return
	}
	e.managedMu.Lock()
	e.managed[name] = true
	e.managedMu.Unlock()
}

func (e *Engine) managedPlaylists() []string {
	e.managedMu.Lock()
	defer e.managedMu.Unlock()
	names := make([]string, 0, len(e.managed))
	for name := range e.managed {
		names = append(names, name)
	}
	return names
}

// acquire claims the per-user pass slot.
func (e *Engine) acquire(user, kind string) error {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if e.inflight[user] {
		metrics.PassesTotal.WithLabelValues(kind, "rejected").Inc()
		return ErrPassInFlight
	}
	e.inflight[user] = true
	return nil
}

// InFlight reports whether a pass is currently running for user.
func (e *Engine) InFlight(user string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	return e.inflight[user]
}

func (e *Engine) release(user string) {
	e.inflightMu.Lock()
	delete(e.inflight, user)
	e.inflightMu.Unlock()
}

func (e *Engine) ledgerFor(user string) *ledger.Store {
	return ledger.NewStore(e.ledgerDir, user)
}

// changeDetector is implemented by providers that can tell whether their
// feed moved since the last pass.
type changeDetector interface {
	HasPlaylistChanged(ctx context.Context) (bool, error)
}

// Collect fetches recommendations from every configured provider. A
// failing provider is logged and skipped so one service outage does not
// starve the rest. Providers whose feed is unchanged since the last pass
// are skipped entirely.
func (e *Engine) Collect(ctx context.Context) []sources.Recommendation {
	var all []sources.Recommendation
	for _, p := range e.providers {
		if cd, ok := p.(changeDetector); ok {
			changed, err := cd.HasPlaylistChanged(ctx)
			if err != nil {
				logging.Warn().
					Err(err).
					Str("source", string(p.Source())).
					Msg("Change detection failed, fetching anyway")
			} else if !changed {
				logging.Info().
					Str("source", string(p.Source())).
					Msg("Feed unchanged since last pass, skipping")
				continue
			}
		}
		recs, err := p.Fetch(ctx)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("source", string(p.Source())).
				Msg("Provider fetch failed")
			continue
		}
		all = append(all, recs...)
	}
	return all
}

// PassSummary reports what one pass did.
type PassSummary struct {
	ID         string        `json:"id"`
	User       string        `json:"user"`
	Kind       string        `json:"kind"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Deleted    int           `json:"deleted"`
	Protected  int           `json:"protected"`
	Retained   int           `json:"retained"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

func (e *Engine) publishPass(s *PassSummary, succeeded bool) {
	e.bus.Publish(events.TopicPassCompleted, events.PassEvent{
		PassID:     s.ID,
		User:       s.User,
		Kind:       s.Kind,
		Succeeded:  succeeded,
		Downloaded: s.Downloaded,
		Skipped:    s.Skipped,
		Deleted:    s.Deleted,
		Protected:  s.Protected,
		Errors:     s.Errors,
		Duration:   s.Duration,
		At:         time.Now().UTC(),
	})
}

func (e *Engine) publishTrack(topic, user string, source sources.Source, artist, title, trackID, reason string) {
	e.bus.Publish(topic, events.TrackEvent{
		User:    user,
		Source:  string(source),
		Artist:  artist,
		Title:   title,
		TrackID: trackID,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
}

// submitFeedback forwards a score to the entry's originating source when
// feedback is enabled and the source supports it.
func (e *Engine) submitFeedback(ctx context.Context, source sources.Source, mbid string, score int) {
	if !e.cleanup.SubmitFeedback || mbid == "" {
		return
	}
	submitter, ok := e.feedback[source]
	if !ok {
		return
	}
	if err := submitter.SubmitFeedback(ctx, mbid, score); err != nil {
		logging.Warn().
			Err(err).
			Str("source", string(source)).
			Str("mbid", mbid).
			Int("score", score).
			Msg("Feedback submission failed")
	}
}

// rescan kicks off a library scan and waits for it to settle.
func (e *Engine) rescan(ctx context.Context) error {
	if err := e.api.StartScan(ctx); err != nil {
		return err
	}
	for {
		status, err := e.api.GetScanStatus(ctx)
		if err != nil {
			return err
		}
		if !status.Scanning {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
