// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package playlist keeps a named server playlist equal to a desired
// membership set. Playlists are addressed by exact name; the synchronizer
// creates them on first use.
package playlist

import (
	"context"
	"fmt"

	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// Synchronizer reconciles server playlists against desired contents using
// one account's API client.
type Synchronizer struct {
	api subsonic.API
}

// NewSynchronizer wraps the given client.
func NewSynchronizer(api subsonic.API) *Synchronizer {
	return &Synchronizer{api: api}
}

// SetMembership makes the playlist named name contain exactly desiredIDs,
// in order. A missing playlist is created; an existing one is emptied in a
// single request and refilled, because the server reindexes entries after
// every mutation. Calling it again with the same set is a no-op on content.
func (s *Synchronizer) SetMembership(ctx context.Context, name string, desiredIDs []string) error {
	existing, err := s.findByName(ctx, name)
	if err != nil {
		return err
	}

	if existing == nil {
		if err := s.api.CreatePlaylist(ctx, name, desiredIDs); err != nil {
			return fmt.Errorf("failed to create playlist %q: %w", name, err)
		}
		logging.Info().
			Str("playlist", name).
			Int("tracks", len(desiredIDs)).
			Msg("Created playlist")
		return nil
	}

	full, err := s.api.GetPlaylist(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to read playlist %q: %w", name, err)
	}

	if sameMembers(full.Entry, desiredIDs) {
		return nil
	}

	if len(full.Entry) > 0 {
		indexes := make([]int, len(full.Entry))
		for i := range indexes {
			indexes[i] = i
		}
		if err := s.api.RemovePlaylistEntries(ctx, existing.ID, indexes); err != nil {
			return fmt.Errorf("failed to clear playlist %q: %w", name, err)
		}
	}
	if err := s.api.AddPlaylistTracks(ctx, existing.ID, desiredIDs); err != nil {
		return fmt.Errorf("failed to fill playlist %q: %w", name, err)
	}

	logging.Info().
		Str("playlist", name).
		Int("before", len(full.Entry)).
		Int("after", len(desiredIDs)).
		Msg("Playlist membership updated")
	return nil
}

// Members returns the track IDs currently in the named playlist, or nil
// when the playlist does not exist.
func (s *Synchronizer) Members(ctx context.Context, name string) ([]string, error) {
	existing, err := s.findByName(ctx, name)
	if err != nil || existing == nil {
		return nil, err
	}
	full, err := s.api.GetPlaylist(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist %q: %w", name, err)
	}
	ids := make([]string, len(full.Entry))
	for i, entry := range full.Entry {
		ids[i] = entry.ID
	}
	return ids, nil
}

// findByName locates a playlist by exact name, nil when absent.
func (s *Synchronizer) findByName(ctx context.Context, name string) (*subsonic.Playlist, error) {
	playlists, err := s.api.GetPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	for i := range playlists {
		if playlists[i].Name == name {
			return &playlists[i], nil
		}
	}
	return nil, nil
}

// sameMembers compares current entries to the desired ID sequence.
func sameMembers(entries []subsonic.Track, desired []string) bool {
	if len(entries) != len(desired) {
		return false
	}
	for i, entry := range entries {
		if entry.ID != desired[i] {
			return false
		}
	}
	return true
}
