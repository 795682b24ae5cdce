// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package library

import (
	"context"
	"errors"
	"testing"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

type fakeSearcher struct {
	tracks  []subsonic.Track
	queries []string
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]subsonic.Track, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks, nil
}

func defaultMatcher(s Searcher) *Matcher {
	return NewMatcher(s, config.MatcherConfig{
		TitleExact:           100,
		TitleContains:        60,
		ArtistExact:          100,
		ArtistContains:       60,
		ArtistToken:          30,
		AlbumExact:           50,
		AlbumPartial:         25,
		AlbumMismatchPenalty: -200,
		AcceptThreshold:      60,
		CandidatesPerQuery:   20,
	})
}

func TestFindExistingExactMatch(t *testing.T) {
	fake := &fakeSearcher{tracks: []subsonic.Track{
		{ID: "t1", Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"},
	}}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(), "Queen", "Bohemian Rhapsody", "")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got == nil || got.ID != "t1" {
		t.Fatalf("got %+v, want track t1", got)
	}
}

func TestFindExistingFeaturedArtist(t *testing.T) {
	// The library tags the primary artist only; the recommendation carries
	// the full credit and a parenthetical in the title.
	fake := &fakeSearcher{tracks: []subsonic.Track{
		{ID: "t1", Title: "Let Me Love You", Artist: "DJ Snake", Album: "Encore"},
	}}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(),
		"DJ Snake feat. Justin Bieber", "Let Me Love You (feat. Justin Bieber)", "")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got == nil || got.ID != "t1" {
		t.Fatalf("got %+v, want track t1", got)
	}
}

func TestFindExistingAlbumMismatchLoses(t *testing.T) {
	// Same title and artist on the wrong album must never shadow the track
	// from the requested album.
	fake := &fakeSearcher{tracks: []subsonic.Track{
		{ID: "live", Title: "Creep", Artist: "Radiohead", Album: "Live in Prague"},
		{ID: "studio", Title: "Creep", Artist: "Radiohead", Album: "Pablo Honey"},
	}}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(), "Radiohead", "Creep", "Pablo Honey")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got == nil || got.ID != "studio" {
		t.Fatalf("got %+v, want studio recording", got)
	}
}

func TestFindExistingAlbumMismatchRejectsExact(t *testing.T) {
	// With default weights an exact artist+title hit scores 200; a -200
	// album mismatch drags it to 0, below the threshold.
	fake := &fakeSearcher{tracks: []subsonic.Track{
		{ID: "live", Title: "Creep", Artist: "Radiohead", Album: "Live in Prague"},
	}}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(), "Radiohead", "Creep", "Pablo Honey")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want no match", got)
	}
}

func TestFindExistingBelowThreshold(t *testing.T) {
	fake := &fakeSearcher{tracks: []subsonic.Track{
		{ID: "t1", Title: "Completely Different", Artist: "Someone Else", Album: "X"},
	}}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(), "Queen", "Bohemian Rhapsody", "")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want no match", got)
	}
}

func TestFindExistingNoCandidates(t *testing.T) {
	fake := &fakeSearcher{}
	m := defaultMatcher(fake)

	got, err := m.FindExisting(context.Background(), "Queen", "Bohemian Rhapsody", "")
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
	// Three query variants: title, normalized artist+title, raw artist+title.
	if len(fake.queries) != 3 {
		t.Errorf("issued %d queries, want 3: %v", len(fake.queries), fake.queries)
	}
}

func TestFindExistingSearchError(t *testing.T) {
	fake := &fakeSearcher{err: errors.New("boom")}
	m := defaultMatcher(fake)

	if _, err := m.FindExisting(context.Background(), "Queen", "Bohemian Rhapsody", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestSharedTokens(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"simon garfunkel", "simon & garfunkel", 2},
		{"queen", "queen", 1},
		{"daft punk", "justice", 0},
	}
	for _, tc := range cases {
		if got := sharedTokens(tc.a, tc.b); got != tc.want {
			t.Errorf("sharedTokens(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
