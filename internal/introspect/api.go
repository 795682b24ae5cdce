// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package introspect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// playlistIndexTTL bounds how stale the playlist membership index may get
// between rebuilds.
const playlistIndexTTL = time.Minute

// APIOnly answers introspection queries through the Subsonic API. It only
// sees the accounts it holds clients for, so protection decisions made
// through it can miss other users' ratings. The degradation is logged once
// at construction.
type APIOnly struct {
	accounts []accountClient

	mu         sync.Mutex
	index      map[string][]string // track ID -> playlist names
	indexBuilt time.Time
}

type accountClient struct {
	user string
	api  subsonic.API
}

// NewAPIOnly builds the fallback introspector over the given accounts.
// clients maps account name to an authenticated client; pass the primary
// account and, when configured, the administrative one.
func NewAPIOnly(clients map[string]subsonic.API) *APIOnly {
	a := &APIOnly{}
	for user, api := range clients {
		a.accounts = append(a.accounts, accountClient{user: user, api: api})
	}
	logging.Warn().
		Int("visible_accounts", len(a.accounts)).
		Msg("Record store unavailable, protection signals degraded to API visibility")
	return a
}

// Mode implements LibraryIntrospector.
func (a *APIOnly) Mode() string { return "api" }

// TrackSignals implements LibraryIntrospector. Ratings and stars come from
// a getSong call per account; playlist memberships from a cached index of
// every playlist visible to the accounts.
func (a *APIOnly) TrackSignals(ctx context.Context, trackID string) (*Signals, error) {
	signals := &Signals{}

	for _, acct := range a.accounts {
		track, err := acct.api.GetSong(ctx, trackID)
		if errors.Is(err, subsonic.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read signals as %s: %w", acct.user, err)
		}
		if track.UserRating > 0 {
			signals.Ratings = append(signals.Ratings, Rating{User: acct.user, Value: track.UserRating})
		}
		if track.IsStarred() {
			signals.StarredBy = append(signals.StarredBy, acct.user)
		}
	}

	names, err := a.playlistsContaining(ctx, trackID)
	if err != nil {
		return nil, err
	}
	signals.Playlists = names
	return signals, nil
}

// StoredPath implements LibraryIntrospector using the path the API reports.
func (a *APIOnly) StoredPath(ctx context.Context, trackID string) (string, error) {
	track, err := a.accounts[0].api.GetSong(ctx, trackID)
	if errors.Is(err, subsonic.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return track.Path, nil
}

// FindByBasename implements LibraryIntrospector. The API has no path
// lookup, so this reports nothing and path resolution moves on to its
// directory-scan strategies.
func (a *APIOnly) FindByBasename(context.Context, string) ([]string, error) {
	return nil, nil
}

// playlistsContaining reads the membership index, rebuilding it when stale.
func (a *APIOnly) playlistsContaining(ctx context.Context, trackID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.index == nil || time.Since(a.indexBuilt) > playlistIndexTTL {
		if err := a.rebuildIndex(ctx); err != nil {
			return nil, err
		}
	}
	return a.index[trackID], nil
}

// rebuildIndex walks every visible playlist once. Called with a.mu held.
func (a *APIOnly) rebuildIndex(ctx context.Context) error {
	index := make(map[string][]string)
	seen := make(map[string]struct{})

	for _, acct := range a.accounts {
		playlists, err := acct.api.GetPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("failed to list playlists as %s: %w", acct.user, err)
		}
		for _, pl := range playlists {
			if _, dup := seen[pl.ID]; dup {
				continue
			}
			seen[pl.ID] = struct{}{}

			full, err := acct.api.GetPlaylist(ctx, pl.ID)
			if err != nil {
				return fmt.Errorf("failed to read playlist %q: %w", pl.Name, err)
			}
			for _, entry := range full.Entry {
				index[entry.ID] = append(index[entry.ID], pl.Name)
			}
		}
	}

	a.index = index
	a.indexBuilt = time.Now()
	return nil
}
