// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/config"
)

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		url      string
		platform Platform
		id       string
	}{
		{"https://www.deezer.com/playlist/1234567", PlatformDeezer, "1234567"},
		{"https://www.deezer.com/en/playlist/987", PlatformDeezer, "987"},
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", PlatformSpotify, "37i9dQZF1DXcBWIGoYBM5M"},
		{"https://tidal.com/browse/playlist/aaaa1111-bb22-cc33-dd44-eeee55556666", PlatformTidal, "aaaa1111-bb22-cc33-dd44-eeee55556666"},
		{"https://www.youtube.com/playlist?list=PLx0sYbCqOb8Q", PlatformYouTube, "PLx0sYbCqOb8Q"},
		{"https://music.youtube.com/watch?v=abc&list=RDCLAK5uy", PlatformYouTube, "RDCLAK5uy"},
		{"https://example.com/whatever", PlatformUnknown, ""},
	}
	for _, tc := range cases {
		platform, id := DetectPlatform(tc.url)
		if platform != tc.platform || id != tc.id {
			t.Errorf("DetectPlatform(%q) = (%q, %q), want (%q, %q)",
				tc.url, platform, id, tc.platform, tc.id)
		}
	}
}

func TestExtractDeezerPaginated(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/playlist/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "Road Trip",
			"tracks": map[string]any{
				"data": []any{
					map[string]any{
						"title":  "Headlong",
						"artist": map[string]any{"name": "Queen"},
						"album":  map[string]any{"title": "Innuendo"},
					},
				},
				"next": srv.URL + "/playlist/42/tracks?index=1",
			},
		})
	})
	mux.HandleFunc("/playlist/42/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{
					"title":  "Creep",
					"artist": map[string]any{"name": "Radiohead"},
					"album":  map[string]any{"title": "Pablo Honey"},
				},
			},
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	p := NewPlaylistExtractor(config.SpotifyConfig{})
	p.deezerBase = srv.URL

	name, tracks, err := p.Extract(context.Background(), "https://www.deezer.com/playlist/42")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if name != "Road Trip" {
		t.Errorf("name = %q", name)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 across pages", len(tracks))
	}
	if tracks[1].Artist != "Radiohead" || tracks[1].Source != SourcePlaylist || tracks[1].PlaylistName != "Road Trip" {
		t.Errorf("track = %+v", tracks[1])
	}
}

func TestExtractSpotify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	})
	mux.HandleFunc("/v1/playlists/abc123", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "Focus",
			"tracks": map[string]any{
				"items": []any{
					map[string]any{"track": map[string]any{
						"name": "Weightless",
						"artists": []any{
							map[string]any{"name": "Marconi Union"},
							map[string]any{"name": "Jon Hopkins"},
						},
						"album": map[string]any{"name": "Weightless"},
					}},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewPlaylistExtractor(config.SpotifyConfig{ClientID: "cid", ClientSecret: "csecret"})
	p.spotifyBase = srv.URL
	p.spotifyAuthBase = srv.URL

	name, tracks, err := p.Extract(context.Background(), "https://open.spotify.com/playlist/abc123")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if name != "Focus" || len(tracks) != 1 {
		t.Fatalf("name = %q, tracks = %+v", name, tracks)
	}
	if tracks[0].Artist != "Marconi Union, Jon Hopkins" {
		t.Errorf("artist = %q, multi-artist credits joined", tracks[0].Artist)
	}
}

func TestExtractSpotifyWithoutCredentials(t *testing.T) {
	p := NewPlaylistExtractor(config.SpotifyConfig{})
	if _, _, err := p.Extract(context.Background(), "https://open.spotify.com/playlist/abc123"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestExtractUnsupportedPlatform(t *testing.T) {
	p := NewPlaylistExtractor(config.SpotifyConfig{})
	if _, _, err := p.Extract(context.Background(), "https://www.youtube.com/playlist?list=PL123"); err == nil {
		t.Fatal("expected unsupported-platform error")
	}
	if _, _, err := p.Extract(context.Background(), "https://nowhere.invalid/x"); err == nil {
		t.Fatal("expected unrecognized-URL error")
	}
}
