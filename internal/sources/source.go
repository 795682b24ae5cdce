// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package sources turns external discovery services into a uniform stream
// of track recommendations. Each provider knows its own protocol; the rest
// of the engine only sees Recommendation values tagged with their Source.
package sources

import "context"

// Source identifies where a recommendation came from. The value is also
// the key under which downloads are recorded in the ledger.
type Source string

// Known sources.
const (
	SourceListenBrainz Source = "ListenBrainz"
	SourceLastFM       Source = "Last.fm"
	SourceLLM          Source = "LLM"
	SourceManual       Source = "Manual"
	SourcePlaylist     Source = "Playlist"
)

// Recommendation is one suggested track.
type Recommendation struct {
	Artist        string
	Title         string
	Album         string
	RecordingMBID string
	ReleaseDate   string
	Source        Source

	// PlaylistName carries the originating playlist's title for
	// Source == SourcePlaylist; empty otherwise.
	PlaylistName string
}

// Provider fetches recommendations from one service.
type Provider interface {
	Source() Source
	Fetch(ctx context.Context) ([]Recommendation, error)
}

// FeedbackSubmitter accepts listen feedback for a recording. Scores follow
// the ListenBrainz convention: 1 love, -1 hate, 0 clears.
type FeedbackSubmitter interface {
	SubmitFeedback(ctx context.Context, recordingMBID string, score int) error
}

// profile is the static per-source dispatch data.
type profile struct {
	playlistName string
	comment      string
}

var profiles = map[Source]profile{
	SourceListenBrainz: {playlistName: "ListenBrainz Weekly", comment: "Downloaded by Cadenza (ListenBrainz)"},
	SourceLastFM:       {playlistName: "Last.fm Weekly", comment: "Downloaded by Cadenza (Last.fm)"},
	SourceLLM:          {playlistName: "AI Weekly", comment: "Downloaded by Cadenza (AI)"},
	SourceManual:       {playlistName: "Manual Downloads", comment: "Downloaded by Cadenza (Manual)"},
	SourcePlaylist:     {playlistName: "", comment: "Downloaded by Cadenza (Playlist)"},
}

// TargetPlaylist returns the engine-managed playlist this recommendation
// belongs in. For the playlist source the name follows the originating
// playlist when known.
func (r Recommendation) TargetPlaylist() string {
	if r.Source == SourcePlaylist && r.PlaylistName != "" {
		return r.PlaylistName
	}
	return profiles[r.Source].playlistName
}

// Comment is the marker written into downloaded files' comment tag.
func (s Source) Comment() string {
	return profiles[s].comment
}

// ManagedPlaylists lists every playlist name the engine maintains for its
// fixed sources. Monitored playlist names are added at runtime.
func ManagedPlaylists() []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.playlistName != "" {
			names = append(names, p.playlistName)
		}
	}
	return names
}
