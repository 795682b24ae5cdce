// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package library answers the one question every ingest pass asks first:
// is this recommendation already in the library? It searches the server
// three ways, scores the candidate pool with configurable weights and
// accepts the best candidate above a threshold.
package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
	"github.com/cadenza-music/cadenza/internal/normalize"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// Searcher is the slice of the Subsonic API the matcher needs.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]subsonic.Track, error)
}

// Matcher scores library tracks against a recommendation.
type Matcher struct {
	api Searcher
	cfg config.MatcherConfig
}

// NewMatcher creates a matcher using the given weights.
func NewMatcher(api Searcher, cfg config.MatcherConfig) *Matcher {
	return &Matcher{api: api, cfg: cfg}
}

// FindExisting returns the library track that duplicates the given
// recommendation, or nil when nothing scores at or above the accept
// threshold. album may be empty; it then neither boosts nor penalizes.
//
// An exact normalized artist and title match scores at least
// artist_exact + title_exact before any album adjustment, so with default
// weights it always clears the threshold.
func (m *Matcher) FindExisting(ctx context.Context, artist, title, album string) (*subsonic.Track, error) {
	normTitle := normalize.String(title)
	normArtist := normalize.String(artist)

	queries := []string{
		normTitle,
		strings.TrimSpace(normArtist + " " + normTitle),
		strings.TrimSpace(artist + " " + title),
	}

	candidates, err := m.collect(ctx, queries)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		metrics.MatcherDecisions.WithLabelValues("no_candidates").Inc()
		return nil, nil
	}

	var (
		best      *subsonic.Track
		bestScore int
	)
	for i := range candidates {
		score := m.score(&candidates[i], normArtist, normTitle, album)
		if best == nil || score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}

	if bestScore < m.cfg.AcceptThreshold {
		logging.Debug().
			Str("artist", artist).
			Str("title", title).
			Int("best_score", bestScore).
			Msg("No library match above threshold")
		metrics.MatcherDecisions.WithLabelValues("below_threshold").Inc()
		return nil, nil
	}

	logging.Debug().
		Str("artist", artist).
		Str("title", title).
		Str("matched_id", best.ID).
		Int("score", bestScore).
		Msg("Found existing library track")
	metrics.MatcherDecisions.WithLabelValues("matched").Inc()
	return best, nil
}

// collect runs each query and unions the results, deduplicating by track ID.
// An empty query (blank title after normalization) is skipped.
func (m *Matcher) collect(ctx context.Context, queries []string) ([]subsonic.Track, error) {
	seen := make(map[string]struct{})
	var out []subsonic.Track

	for _, q := range queries {
		if q == "" {
			continue
		}
		tracks, err := m.api.Search(ctx, q, m.cfg.CandidatesPerQuery)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q, err)
		}
		for _, t := range tracks {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}

// score rates one candidate. normArtist and normTitle are pre-normalized;
// album is the raw query album (empty means unknown).
func (m *Matcher) score(t *subsonic.Track, normArtist, normTitle, album string) int {
	score := 0

	candTitle := normalize.String(t.Title)
	switch {
	case candTitle == normTitle:
		score += m.cfg.TitleExact
	case contains(candTitle, normTitle):
		score += m.cfg.TitleContains
	}

	candArtist := normalize.String(t.Artist)
	switch {
	case candArtist == normArtist:
		score += m.cfg.ArtistExact
	case contains(candArtist, normArtist):
		score += m.cfg.ArtistContains
	default:
		score += m.cfg.ArtistToken * sharedTokens(normArtist, candArtist)
	}

	if album != "" && t.Album != "" {
		normAlbum := normalize.String(album)
		candAlbum := normalize.String(t.Album)
		switch {
		case candAlbum == normAlbum:
			score += m.cfg.AlbumExact
		case contains(candAlbum, normAlbum):
			score += m.cfg.AlbumPartial
		default:
			// Same song on the wrong release is almost always a different
			// recording; the penalty keeps it from shadowing a real match.
			score += m.cfg.AlbumMismatchPenalty
		}
	}

	return score
}

// contains reports a non-trivial substring relationship in either direction.
func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// sharedTokens counts artist name tokens present in both strings.
func sharedTokens(a, b string) int {
	bTokens := make(map[string]struct{})
	for _, tok := range normalize.ArtistTokens(b) {
		bTokens[tok] = struct{}{}
	}
	n := 0
	for _, tok := range normalize.ArtistTokens(a) {
		if _, ok := bTokens[tok]; ok {
			n++
		}
	}
	return n
}
