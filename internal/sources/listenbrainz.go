// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// ListenBrainz fetches the user's Weekly Exploration playlist and resolves
// its recording MBIDs through MusicBrainz. It also submits listen feedback
// and serves scrobbles and fresh releases to other components.
type ListenBrainz struct {
	client    *resty.Client
	user      string
	statePath string
	mb        *MusicBrainz
}

// jspfPlaylist mirrors the JSPF wrapper ListenBrainz serves playlists in.
type jspfPlaylist struct {
	Playlist struct {
		Title      string `json:"title"`
		Identifier string `json:"identifier"`
		Track      []struct {
			Identifier []string `json:"identifier"`
			Creator    string   `json:"creator"`
			Title      string   `json:"title"`
		} `json:"track"`
	} `json:"playlist"`
}

// NewListenBrainz creates the provider. mb is required; recommendations
// arrive as bare MBIDs and need resolution before matching.
func NewListenBrainz(cfg config.ListenBrainzConfig, mb *MusicBrainz) *ListenBrainz {
	return &ListenBrainz{
		client: resty.New().
			SetBaseURL(cfg.URL).
			SetHeader("Authorization", "Token "+cfg.Token).
			SetTimeout(30 * time.Second),
		user:      cfg.User,
		statePath: cfg.PlaylistStatePath,
		mb:        mb,
	}
}

// Source implements Provider.
func (lb *ListenBrainz) Source() Source { return SourceListenBrainz }

// HasPlaylistChanged reports whether the Weekly Exploration playlist title
// differs from the one remembered in the state file, and remembers the new
// title when it does. An unchanged playlist means the weekly pass already
// ran for the current edition.
func (lb *ListenBrainz) HasPlaylistChanged(ctx context.Context) (bool, error) {
	current, _, err := lb.latestWeeklyPlaylist(ctx)
	if err != nil {
		return false, err
	}

	last := ""
	if data, err := os.ReadFile(lb.statePath); err == nil {
		last = strings.TrimSpace(string(data))
	}
	if current == last {
		return false, nil
	}

	if err := os.WriteFile(lb.statePath, []byte(current), 0o644); err != nil {
		logging.Warn().Err(err).Str("path", lb.statePath).Msg("Failed to save playlist state")
	}
	return true, nil
}

// Fetch implements Provider: it loads the current Weekly Exploration
// playlist and resolves every track through MusicBrainz. Tracks whose
// metadata cannot be resolved are skipped with a warning.
func (lb *ListenBrainz) Fetch(ctx context.Context) ([]Recommendation, error) {
	_, mbid, err := lb.latestWeeklyPlaylist(ctx)
	if err != nil {
		return nil, err
	}

	var playlist jspfPlaylist
	resp, err := lb.client.R().
		SetContext(ctx).
		SetResult(&playlist).
		Get("/1/playlist/" + mbid)
	if err != nil {
		return nil, fmt.Errorf("listenbrainz playlist %s: %w", mbid, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listenbrainz playlist %s: HTTP %d", mbid, resp.StatusCode())
	}

	var recs []Recommendation
	for _, track := range playlist.Playlist.Track {
		if len(track.Identifier) == 0 {
			continue
		}
		recordingMBID := lastSegment(track.Identifier[0])

		rec, err := lb.mb.Recording(ctx, recordingMBID)
		if err != nil {
			logging.Warn().Err(err).
				Str("recording_mbid", recordingMBID).
				Str("creator", track.Creator).
				Str("title", track.Title).
				Msg("Skipping unresolvable recommendation")
			continue
		}
		recs = append(recs, Recommendation{
			Artist:        rec.Artist,
			Title:         rec.Title,
			Album:         rec.Album,
			ReleaseDate:   rec.ReleaseDate,
			RecordingMBID: recordingMBID,
			Source:        SourceListenBrainz,
		})
	}

	metrics.SourceRecommendations.WithLabelValues(string(SourceListenBrainz)).Add(float64(len(recs)))
	return recs, nil
}

// SubmitFeedback implements FeedbackSubmitter.
func (lb *ListenBrainz) SubmitFeedback(ctx context.Context, recordingMBID string, score int) error {
	resp, err := lb.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"recording_mbid": recordingMBID,
			"score":          score,
		}).
		Post("/1/feedback/recording-feedback")
	if err != nil {
		return fmt.Errorf("listenbrainz feedback: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("listenbrainz feedback: HTTP %d", resp.StatusCode())
	}
	logging.Debug().
		Str("recording_mbid", recordingMBID).
		Int("score", score).
		Msg("Feedback submitted")
	return nil
}

// Scrobble is one recent listen, in the shape LLM prompting expects.
type Scrobble struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
}

// WeeklyScrobbles returns the user's listens from the past seven days,
// capped at count.
func (lb *ListenBrainz) WeeklyScrobbles(ctx context.Context, count int) ([]Scrobble, error) {
	if count <= 0 {
		count = 100
	}
	var payload struct {
		Payload struct {
			Listens []struct {
				TrackMetadata struct {
					ArtistName string `json:"artist_name"`
					TrackName  string `json:"track_name"`
				} `json:"track_metadata"`
			} `json:"listens"`
		} `json:"payload"`
	}

	minTS := time.Now().Add(-7 * 24 * time.Hour).Unix()
	resp, err := lb.client.R().
		SetContext(ctx).
		SetResult(&payload).
		SetQueryParams(map[string]string{
			"min_ts": strconv.FormatInt(minTS, 10),
			"count":  strconv.Itoa(count),
		}).
		Get("/1/user/" + lb.user + "/listens")
	if err != nil {
		return nil, fmt.Errorf("listenbrainz listens: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listenbrainz listens: HTTP %d", resp.StatusCode())
	}

	scrobbles := make([]Scrobble, 0, len(payload.Payload.Listens))
	for _, l := range payload.Payload.Listens {
		scrobbles = append(scrobbles, Scrobble{
			Artist: l.TrackMetadata.ArtistName,
			Track:  l.TrackMetadata.TrackName,
		})
	}
	return scrobbles, nil
}

// Release is one entry from the fresh releases feed.
type Release struct {
	Artist      string `json:"artist_credit_name"`
	Album       string `json:"release_name"`
	ReleaseDate string `json:"release_date"`
}

// FreshReleases lists releases ListenBrainz considers fresh for the user.
func (lb *ListenBrainz) FreshReleases(ctx context.Context) ([]Release, error) {
	var payload struct {
		Payload struct {
			Releases []Release `json:"releases"`
		} `json:"payload"`
	}

	resp, err := lb.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/1/user/" + lb.user + "/fresh_releases")
	if err != nil {
		return nil, fmt.Errorf("listenbrainz fresh releases: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listenbrainz fresh releases: HTTP %d", resp.StatusCode())
	}
	return payload.Payload.Releases, nil
}

// latestWeeklyPlaylist finds the current Weekly Exploration playlist and
// returns its title and MBID.
func (lb *ListenBrainz) latestWeeklyPlaylist(ctx context.Context) (title, mbid string, err error) {
	var listing struct {
		Playlists []jspfPlaylist `json:"playlists"`
	}

	resp, err := lb.client.R().
		SetContext(ctx).
		SetResult(&listing).
		Get("/1/user/" + lb.user + "/playlists/recommendations")
	if err != nil {
		return "", "", fmt.Errorf("listenbrainz recommendation playlists: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("listenbrainz recommendation playlists: HTTP %d", resp.StatusCode())
	}

	prefix := "Weekly Exploration for " + lb.user
	for _, pl := range listing.Playlists {
		if strings.HasPrefix(pl.Playlist.Title, prefix) {
			return pl.Playlist.Title, lastSegment(pl.Playlist.Identifier), nil
		}
	}
	return "", "", fmt.Errorf("weekly exploration playlist not found for %s", lb.user)
}

// lastSegment returns the final path element of a URL-style identifier.
func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
