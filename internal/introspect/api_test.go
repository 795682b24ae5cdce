// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package introspect

import (
	"context"
	"fmt"
	"testing"

	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// fakeAPI is a minimal in-memory Subsonic server for introspection tests.
type fakeAPI struct {
	songs     map[string]*subsonic.Track
	playlists []subsonic.PlaylistWithEntries
}

func (f *fakeAPI) GetSong(_ context.Context, id string) (*subsonic.Track, error) {
	if t, ok := f.songs[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("getSong %s: %w", id, subsonic.ErrNotFound)
}

func (f *fakeAPI) GetPlaylists(context.Context) ([]subsonic.Playlist, error) {
	out := make([]subsonic.Playlist, len(f.playlists))
	for i, pl := range f.playlists {
		out[i] = pl.Playlist
	}
	return out, nil
}

func (f *fakeAPI) GetPlaylist(_ context.Context, id string) (*subsonic.PlaylistWithEntries, error) {
	for i := range f.playlists {
		if f.playlists[i].ID == id {
			return &f.playlists[i], nil
		}
	}
	return nil, subsonic.ErrNotFound
}

func (f *fakeAPI) Search(context.Context, string, int) ([]subsonic.Track, error) { return nil, nil }
func (f *fakeAPI) CreatePlaylist(context.Context, string, []string) error       { return nil }
func (f *fakeAPI) AddPlaylistTracks(context.Context, string, []string) error    { return nil }
func (f *fakeAPI) RemovePlaylistEntries(context.Context, string, []int) error   { return nil }
func (f *fakeAPI) SetRating(context.Context, string, int) error                 { return nil }
func (f *fakeAPI) StartScan(context.Context) error                              { return nil }
func (f *fakeAPI) GetScanStatus(context.Context) (*subsonic.ScanStatus, error) {
	return &subsonic.ScanStatus{}, nil
}
func (f *fakeAPI) Ping(context.Context) error { return nil }

func TestAPIOnlyTrackSignals(t *testing.T) {
	primary := &fakeAPI{
		songs: map[string]*subsonic.Track{
			"t1": {ID: "t1", UserRating: 4},
		},
		playlists: []subsonic.PlaylistWithEntries{{
			Playlist: subsonic.Playlist{ID: "p1", Name: "Road Trip"},
			Entry:    []subsonic.Track{{ID: "t1"}},
		}},
	}
	admin := &fakeAPI{
		songs: map[string]*subsonic.Track{
			"t1": {ID: "t1", Starred: "2026-01-01T00:00:00Z"},
		},
	}

	intro := NewAPIOnly(map[string]subsonic.API{"alice": primary, "admin": admin})
	if intro.Mode() != "api" {
		t.Errorf("Mode = %q", intro.Mode())
	}

	signals, err := intro.TrackSignals(context.Background(), "t1")
	if err != nil {
		t.Fatalf("TrackSignals: %v", err)
	}
	if len(signals.Ratings) != 1 || signals.Ratings[0].Value != 4 {
		t.Errorf("ratings = %+v", signals.Ratings)
	}
	if len(signals.StarredBy) != 1 {
		t.Errorf("starredBy = %v", signals.StarredBy)
	}
	if len(signals.Playlists) != 1 || signals.Playlists[0] != "Road Trip" {
		t.Errorf("playlists = %v", signals.Playlists)
	}
	if signals.MaxRating() != 5 {
		t.Errorf("MaxRating = %d, a star counts as five", signals.MaxRating())
	}
}

func TestAPIOnlyUnknownTrack(t *testing.T) {
	intro := NewAPIOnly(map[string]subsonic.API{"alice": &fakeAPI{}})

	signals, err := intro.TrackSignals(context.Background(), "gone")
	if err != nil {
		t.Fatalf("TrackSignals: %v", err)
	}
	if len(signals.Ratings) != 0 || len(signals.StarredBy) != 0 {
		t.Errorf("expected no signals, got %+v", signals)
	}

	path, err := intro.StoredPath(context.Background(), "gone")
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("path = %q", path)
	}
}
