// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package monitor

import (
	"context"
	"time"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
	"github.com/cadenza-music/cadenza/internal/sources"
)

// Extractor resolves a playlist URL into its current track list.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, []sources.Recommendation, error)
}

// Poller wakes periodically and re-syncs every monitored playlist whose
// interval has elapsed. It implements suture.Service.
type Poller struct {
	store     *Store
	extractor Extractor
	sync      func(ctx context.Context, user string, recs []sources.Recommendation) (downloaded int, errs int, err error)
	register  func(playlistName string)
	cfg       config.MonitorConfig
}

// PollerOptions wires the poller's collaborators. Sync runs one download
// pass; Register marks a playlist name as engine-managed.
type PollerOptions struct {
	Store     *Store
	Extractor Extractor
	Sync      func(ctx context.Context, user string, recs []sources.Recommendation) (downloaded int, errs int, err error)
	Register  func(playlistName string)
	Config    config.MonitorConfig
}

// NewPoller builds the poller.
func NewPoller(opts PollerOptions) *Poller {
	return &Poller{
		store:     opts.Store,
		extractor: opts.Extractor,
		sync:      opts.Sync,
		register:  opts.Register,
		cfg:       opts.Config,
	}
}

// Serve implements suture.Service. One sweep runs immediately on start so
// a restart never postpones overdue playlists by a full interval.
func (p *Poller) Serve(ctx context.Context) error {
	interval := p.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	logging.Info().
		Dur("check_interval", interval).
		Int("default_poll_hours", p.cfg.DefaultPollHours).
		Msg("Monitored playlist poller started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (p *Poller) String() string { return "monitor-poller" }

// Sweep syncs every due playlist once. Each playlist is stamped as synced
// whether its sync worked or not; a broken playlist retries on its own
// interval instead of every tick.
func (p *Poller) Sweep(ctx context.Context) {
	entries, err := p.store.List()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list monitored playlists")
		return
	}

	now := time.Now().UTC()
	for i := range entries {
		if !entries[i].Due(now, p.cfg.DefaultPollHours) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}
		p.syncEntry(ctx, &entries[i])
	}
}

func (p *Poller) syncEntry(ctx context.Context, entry *Entry) {
	name, recs, err := p.extractor.Extract(ctx, entry.URL)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("id", entry.ID).
			Str("url", entry.URL).
			Msg("Monitored playlist extraction failed")
		metrics.MonitoredSyncs.WithLabelValues("error").Inc()
		p.stamp(entry, entry.LastTrackCount)
		return
	}

	if name != "" {
		p.register(name)
		if name != entry.Name {
			if _, err := p.store.Update(entry.ID, func(e *Entry) { e.Name = name }); err != nil {
				logging.Warn().Err(err).Str("id", entry.ID).Msg("Failed to record playlist name")
			}
		}
	}

	downloaded, errs, err := p.sync(ctx, entry.Username, recs)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("id", entry.ID).
			Msg("Monitored playlist sync failed")
		metrics.MonitoredSyncs.WithLabelValues("error").Inc()
		p.stamp(entry, len(recs))
		return
	}

	result := "ok"
	if errs > 0 {
		result = "error"
	}
	metrics.MonitoredSyncs.WithLabelValues(result).Inc()
	logging.Info().
		Str("id", entry.ID).
		Str("url", entry.URL).
		Str("user", entry.Username).
		Str("playlist", name).
		Int("tracks", len(recs)).
		Int("downloaded", downloaded).
		Int("errors", errs).
		Msg("Monitored playlist synced")
	p.stamp(entry, len(recs))
}

func (p *Poller) stamp(entry *Entry, trackCount int) {
	if err := p.store.MarkSynced(entry.ID, trackCount); err != nil {
		logging.Error().Err(err).Str("id", entry.ID).Msg("Failed to stamp monitored playlist")
	}
}
