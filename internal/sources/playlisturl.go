// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// Platform is a playlist hosting service recognized in URLs.
type Platform string

// Recognized platforms. YouTube and Tidal are detected so callers can give
// a precise error; only Deezer and Spotify extraction is implemented.
const (
	PlatformDeezer  Platform = "deezer"
	PlatformSpotify Platform = "spotify"
	PlatformYouTube Platform = "youtube"
	PlatformTidal   Platform = "tidal"
	PlatformUnknown Platform = ""
)

var (
	deezerPlaylistRe  = regexp.MustCompile(`deezer\.com/(?:[a-z]{2}/)?playlist/(\d+)`)
	spotifyPlaylistRe = regexp.MustCompile(`open\.spotify\.com/playlist/([A-Za-z0-9]+)`)
	tidalPlaylistRe   = regexp.MustCompile(`tidal\.com/(?:browse/)?playlist/([0-9a-f-]+)`)
)

// DetectPlatform classifies a playlist URL and extracts its playlist ID.
func DetectPlatform(rawURL string) (Platform, string) {
	if m := deezerPlaylistRe.FindStringSubmatch(rawURL); m != nil {
		return PlatformDeezer, m[1]
	}
	if m := spotifyPlaylistRe.FindStringSubmatch(rawURL); m != nil {
		return PlatformSpotify, m[1]
	}
	if m := tidalPlaylistRe.FindStringSubmatch(rawURL); m != nil {
		return PlatformTidal, m[1]
	}
	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(u.Hostname())
		if strings.Contains(host, "youtube.com") || host == "youtu.be" || strings.Contains(host, "music.youtube.com") {
			if list := u.Query().Get("list"); list != "" {
				return PlatformYouTube, list
			}
		}
	}
	return PlatformUnknown, ""
}

// PlaylistExtractor turns public playlist URLs into recommendation lists.
type PlaylistExtractor struct {
	client        *resty.Client
	spotifyID     string
	spotifySecret string

	deezerBase      string
	spotifyBase     string
	spotifyAuthBase string
}

// NewPlaylistExtractor creates the extractor. Spotify credentials may be
// empty; Spotify URLs then fail with a configuration error.
func NewPlaylistExtractor(spotify config.SpotifyConfig) *PlaylistExtractor {
	return &PlaylistExtractor{
		client:          resty.New().SetTimeout(30 * time.Second),
		spotifyID:       spotify.ClientID,
		spotifySecret:   spotify.ClientSecret,
		deezerBase:      "https://api.deezer.com",
		spotifyBase:     "https://api.spotify.com",
		spotifyAuthBase: "https://accounts.spotify.com",
	}
}

// Extract fetches the playlist behind rawURL. It returns the playlist's
// title and its tracks tagged Source=Playlist.
func (p *PlaylistExtractor) Extract(ctx context.Context, rawURL string) (string, []Recommendation, error) {
	platform, id := DetectPlatform(rawURL)

	var (
		name   string
		tracks []Recommendation
		err    error
	)
	switch platform {
	case PlatformDeezer:
		name, tracks, err = p.extractDeezer(ctx, id)
	case PlatformSpotify:
		name, tracks, err = p.extractSpotify(ctx, id)
	case PlatformYouTube, PlatformTidal:
		return "", nil, fmt.Errorf("playlist platform %s is recognized but not supported", platform)
	default:
		return "", nil, fmt.Errorf("unrecognized playlist URL %q", rawURL)
	}
	if err != nil {
		return "", nil, err
	}

	for i := range tracks {
		tracks[i].Source = SourcePlaylist
		tracks[i].PlaylistName = name
	}
	metrics.SourceRecommendations.WithLabelValues(string(SourcePlaylist)).Add(float64(len(tracks)))
	return name, tracks, nil
}

// deezerPage is one page of a Deezer playlist's track listing.
type deezerPage struct {
	Data []struct {
		Title  string `json:"title"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			Title string `json:"title"`
		} `json:"album"`
	} `json:"data"`
	Next string `json:"next"`
}

func (p *PlaylistExtractor) extractDeezer(ctx context.Context, id string) (string, []Recommendation, error) {
	var payload struct {
		Title  string     `json:"title"`
		Tracks deezerPage `json:"tracks"`
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(p.deezerBase + "/playlist/" + id)
	if err != nil {
		return "", nil, fmt.Errorf("deezer playlist %s: %w", id, err)
	}
	if resp.IsError() {
		return "", nil, fmt.Errorf("deezer playlist %s: HTTP %d", id, resp.StatusCode())
	}

	name := payload.Title
	if name == "" {
		name = "Deezer Playlist " + id
	}

	var tracks []Recommendation
	page := payload.Tracks
	for {
		for _, t := range page.Data {
			tracks = append(tracks, Recommendation{
				Artist: t.Artist.Name,
				Title:  t.Title,
				Album:  t.Album.Title,
			})
		}
		if page.Next == "" {
			break
		}
		next := page.Next
		page = deezerPage{}
		resp, err := p.client.R().SetContext(ctx).SetResult(&page).Get(next)
		if err != nil {
			return "", nil, fmt.Errorf("deezer playlist %s page: %w", id, err)
		}
		if resp.IsError() {
			return "", nil, fmt.Errorf("deezer playlist %s page: HTTP %d", id, resp.StatusCode())
		}
	}
	return name, tracks, nil
}

func (p *PlaylistExtractor) spotifyToken(ctx context.Context) (string, error) {
	if p.spotifyID == "" || p.spotifySecret == "" {
		return "", fmt.Errorf("spotify client credentials not configured")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBasicAuth(p.spotifyID, p.spotifySecret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody("grant_type=client_credentials").
		SetResult(&payload).
		Post(p.spotifyAuthBase + "/api/token")
	if err != nil {
		return "", fmt.Errorf("spotify token: %w", err)
	}
	if resp.IsError() || payload.AccessToken == "" {
		return "", fmt.Errorf("spotify token: HTTP %d", resp.StatusCode())
	}
	return payload.AccessToken, nil
}

// spotifyTracksPage is one page of Spotify playlist items.
type spotifyTracksPage struct {
	Items []struct {
		Track struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name string `json:"name"`
			} `json:"album"`
		} `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

func (p *PlaylistExtractor) extractSpotify(ctx context.Context, id string) (string, []Recommendation, error) {
	token, err := p.spotifyToken(ctx)
	if err != nil {
		return "", nil, err
	}

	var payload struct {
		Name   string            `json:"name"`
		Tracks spotifyTracksPage `json:"tracks"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&payload).
		Get(p.spotifyBase + "/v1/playlists/" + id)
	if err != nil {
		return "", nil, fmt.Errorf("spotify playlist %s: %w", id, err)
	}
	if resp.IsError() {
		return "", nil, fmt.Errorf("spotify playlist %s: HTTP %d", id, resp.StatusCode())
	}

	name := payload.Name
	if name == "" {
		name = "Spotify Playlist " + id
	}

	var tracks []Recommendation
	page := payload.Tracks
	for {
		for _, item := range page.Items {
			if item.Track.Name == "" || len(item.Track.Artists) == 0 {
				continue
			}
			artists := make([]string, 0, len(item.Track.Artists))
			for _, a := range item.Track.Artists {
				if a.Name != "" {
					artists = append(artists, a.Name)
				}
			}
			tracks = append(tracks, Recommendation{
				Artist: strings.Join(artists, ", "),
				Title:  item.Track.Name,
				Album:  item.Track.Album.Name,
			})
		}
		if page.Next == "" {
			break
		}
		next := page.Next
		page = spotifyTracksPage{}
		resp, err := p.client.R().SetContext(ctx).SetAuthToken(token).SetResult(&page).Get(next)
		if err != nil {
			return "", nil, fmt.Errorf("spotify playlist %s page: %w", id, err)
		}
		if resp.IsError() {
			return "", nil, fmt.Errorf("spotify playlist %s page: HTTP %d", id, resp.StatusCode())
		}
	}
	return name, tracks, nil
}
