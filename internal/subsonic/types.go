// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package subsonic

// Track is a track as known to the library server. It is always fetched
// fresh; nothing in Cadenza caches Track values across reconciliation passes.
type Track struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Album         string `json:"album"`
	Artist        string `json:"artist"`
	Path          string `json:"path"`
	Comment       string `json:"comment"`
	UserRating    int    `json:"userRating"`
	Starred       string `json:"starred"` // RFC 3339 timestamp when starred, empty otherwise
	MusicBrainzID string `json:"musicBrainzId"`
	AlbumID       string `json:"albumId"`
	Track         int    `json:"track"`
}

// IsStarred reports whether the track carries a starred/favorite flag.
func (t Track) IsStarred() bool { return t.Starred != "" }

// Playlist is a playlist header as returned by getPlaylists.
type Playlist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	SongCount int    `json:"songCount"`
}

// PlaylistWithEntries is a playlist with its member tracks, from getPlaylist.
type PlaylistWithEntries struct {
	Playlist
	Entry []Track `json:"entry"`
}

// ScanStatus is the library scanner state from startScan/getScanStatus.
type ScanStatus struct {
	Scanning bool  `json:"scanning"`
	Count    int64 `json:"count"`
}

// envelope is the outer "subsonic-response" wrapper common to every endpoint.
type envelope struct {
	Response struct {
		Status  string `json:"status"` // "ok" or "failed"
		Version string `json:"version"`

		Error *apiError `json:"error"`

		SearchResult3 *struct {
			Song []Track `json:"song"`
		} `json:"searchResult3"`

		Song *Track `json:"song"`

		Playlists *struct {
			Playlist []Playlist `json:"playlist"`
		} `json:"playlists"`

		Playlist *PlaylistWithEntries `json:"playlist"`

		ScanStatus *ScanStatus `json:"scanStatus"`
	} `json:"subsonic-response"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Subsonic API error codes we dispatch on. The full table lives in the
// Subsonic API spec; only these change client behavior.
const (
	codeGeneric       = 0
	codeParamMissing  = 10
	codeWrongCreds    = 40
	codeNotAuthorized = 50
	codeNotFound      = 70
)
