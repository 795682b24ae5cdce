// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package introspect reads track signals that the Subsonic API cannot
// express for more than one account at a time: who rated a track, who
// starred it, and which playlists contain it, across every account on the
// server.
//
// Two implementations exist. DirectStore reads the server's SQLite record
// store and sees all accounts. APIOnly falls back to the Subsonic API and
// only sees the accounts it holds credentials for; protection decisions
// made through it are degraded and logged as such.
package introspect

import "context"

// Rating is one account's rating of a track.
type Rating struct {
	User  string
	Value int
}

// Signals aggregates every cross-account signal for one track.
type Signals struct {
	Ratings   []Rating
	StarredBy []string
	Playlists []string
}

// MaxRating returns the highest rating in the signal set, counting a star
// as a rating of five.
func (s *Signals) MaxRating() int {
	max := 0
	for _, r := range s.Ratings {
		if r.Value > max {
			max = r.Value
		}
	}
	if len(s.StarredBy) > 0 && max < 5 {
		max = 5
	}
	return max
}

// LibraryIntrospector answers cross-account questions about a track.
type LibraryIntrospector interface {
	// TrackSignals gathers ratings, stars and playlist memberships for a
	// track across all visible accounts.
	TrackSignals(ctx context.Context, trackID string) (*Signals, error)

	// StoredPath returns the track's path as the server recorded it, or ""
	// when the track is unknown.
	StoredPath(ctx context.Context, trackID string) (string, error)

	// FindByBasename returns the stored paths of tracks whose file name
	// matches base exactly.
	FindByBasename(ctx context.Context, base string) ([]string, error)

	// Mode identifies the implementation for logs and metrics, "direct" or
	// "api".
	Mode() string
}
