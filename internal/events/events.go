// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package events carries the engine's lifecycle notifications over an
// in-process Watermill pub/sub. Reconciliation passes publish what happened
// to each track; subscribers feed metrics and logs without coupling the
// pass logic to either.
package events

import (
	"time"
)

// Topics.
const (
	TopicTrackDownloaded = "track.downloaded"
	TopicTrackSkipped    = "track.skipped"
	TopicTrackDeleted    = "track.deleted"
	TopicTrackProtected  = "track.protected"
	TopicPassCompleted   = "pass.completed"
)

// TrackEvent describes one track-level outcome during a pass.
type TrackEvent struct {
	User    string    `json:"user"`
	Source  string    `json:"source"`
	Artist  string    `json:"artist"`
	Title   string    `json:"title"`
	TrackID string    `json:"track_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// PassEvent summarizes a completed reconciliation pass.
type PassEvent struct {
	PassID     string        `json:"pass_id"`
	User       string        `json:"user"`
	Kind       string        `json:"kind"` // "download" or "cleanup"
	Succeeded  bool          `json:"succeeded"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Deleted    int           `json:"deleted"`
	Protected  int           `json:"protected"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
	At         time.Time     `json:"at"`
}
