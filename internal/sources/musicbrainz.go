// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/cadenza-music/cadenza/internal/config"
)

// mbUserAgent identifies the client per MusicBrainz API etiquette.
const mbUserAgent = "cadenza/1.0 (https://github.com/cadenza-music/cadenza)"

// Recording is the metadata MusicBrainz holds for a recording MBID.
type Recording struct {
	Artist      string
	Title       string
	Album       string
	ReleaseDate string
	ReleaseMBID string
}

// MusicBrainz resolves recording MBIDs to track metadata. All lookups share
// one global rate budget; the limiter serializes requests across every
// worker so the public API's one-request-per-second etiquette holds no
// matter how wide the download pass fans out.
type MusicBrainz struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewMusicBrainz creates the client.
func NewMusicBrainz(cfg config.MusicBrainzConfig) *MusicBrainz {
	interval := cfg.RateInterval
	if interval <= 0 {
		interval = 1100 * time.Millisecond
	}
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("User-Agent", mbUserAgent).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && r.StatusCode() == 503
		})
	return &MusicBrainz{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Recording looks up one recording MBID, blocking on the shared rate budget
// first.
func (m *MusicBrainz) Recording(ctx context.Context, mbid string) (*Recording, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var payload struct {
		Title        string `json:"title"`
		ArtistCredit []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
		Releases []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Date  string `json:"date"`
		} `json:"releases"`
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetResult(&payload).
		SetQueryParams(map[string]string{
			"fmt": "json",
			"inc": "artist-credits+releases",
		}).
		Get("/recording/" + mbid)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz recording %s: %w", mbid, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("musicbrainz recording %s: HTTP %d", mbid, resp.StatusCode())
	}
	if len(payload.ArtistCredit) == 0 || payload.Title == "" {
		return nil, fmt.Errorf("musicbrainz recording %s: incomplete metadata", mbid)
	}

	rec := &Recording{
		Artist: payload.ArtistCredit[0].Name,
		Title:  payload.Title,
		Album:  "Unknown Album",
	}
	if len(payload.Releases) > 0 {
		rec.Album = payload.Releases[0].Title
		rec.ReleaseDate = payload.Releases[0].Date
		rec.ReleaseMBID = payload.Releases[0].ID
	}
	return rec, nil
}
