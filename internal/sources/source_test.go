// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package sources

import (
	"sort"
	"testing"
)

func TestTargetPlaylist(t *testing.T) {
	cases := []struct {
		rec  Recommendation
		want string
	}{
		{Recommendation{Source: SourceListenBrainz}, "ListenBrainz Weekly"},
		{Recommendation{Source: SourceLastFM}, "Last.fm Weekly"},
		{Recommendation{Source: SourceLLM}, "AI Weekly"},
		{Recommendation{Source: SourceManual}, "Manual Downloads"},
		{Recommendation{Source: SourcePlaylist, PlaylistName: "Road Trip"}, "Road Trip"},
	}
	for _, tc := range cases {
		if got := tc.rec.TargetPlaylist(); got != tc.want {
			t.Errorf("TargetPlaylist(%s) = %q, want %q", tc.rec.Source, got, tc.want)
		}
	}
}

func TestManagedPlaylists(t *testing.T) {
	got := ManagedPlaylists()
	sort.Strings(got)
	want := []string{"AI Weekly", "Last.fm Weekly", "ListenBrainz Weekly", "Manual Downloads"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestSourceComment(t *testing.T) {
	if got := SourceListenBrainz.Comment(); got != "Downloaded by Cadenza (ListenBrainz)" {
		t.Errorf("Comment = %q", got)
	}
}
