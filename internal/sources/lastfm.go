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

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// lastFMStationBase serves the recommendation station. It is the player
// endpoint, not the documented API; the documented API has no
// recommendations method.
const lastFMStationBase = "https://www.last.fm"

// LastFM fetches the user's recommendation station.
type LastFM struct {
	client   *resty.Client
	username string
	limit    int
}

// NewLastFM creates the provider.
func NewLastFM(cfg config.LastFMConfig) *LastFM {
	return &LastFM{
		client: resty.New().
			SetBaseURL(lastFMStationBase).
			SetHeader("Referer", "https://www.last.fm/").
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36").
			SetTimeout(30 * time.Second),
		username: cfg.Username,
		limit:    100,
	}
}

// Source implements Provider.
func (l *LastFM) Source() Source { return SourceLastFM }

// Fetch implements Provider. The station endpoint carries no album data;
// recommendations are returned album-less and the matcher scores them
// without an album signal.
func (l *LastFM) Fetch(ctx context.Context) ([]Recommendation, error) {
	var payload struct {
		Playlist []struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"playlist"`
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/player/station/user/" + l.username + "/recommended")
	if err != nil {
		return nil, fmt.Errorf("lastfm recommendations: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("lastfm recommendations: HTTP %d", resp.StatusCode())
	}

	var recs []Recommendation
	for _, track := range payload.Playlist {
		if len(track.Artists) == 0 || track.Name == "" {
			continue
		}
		recs = append(recs, Recommendation{
			Artist: track.Artists[0].Name,
			Title:  track.Name,
			Source: SourceLastFM,
		})
		if len(recs) >= l.limit {
			break
		}
	}

	metrics.SourceRecommendations.WithLabelValues(string(SourceLastFM)).Add(float64(len(recs)))
	return recs, nil
}
