// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package monitor

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "monitored.json"))
}

func TestAddAndList(t *testing.T) {
	s := newTestStore(t)

	entry, err := s.Add("https://www.deezer.com/en/playlist/1234567", "alice", 12)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated ID")
	}
	if entry.Platform != "deezer" {
		t.Errorf("Platform = %q, want deezer", entry.Platform)
	}
	if !entry.Enabled {
		t.Error("new entries should start enabled")
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAddRejectsUnknownURL(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("https://example.com/playlist/9", "alice", 0); err == nil {
		t.Fatal("expected error for unrecognized URL")
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	url := "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"
	if _, err := s.Add(url, "alice", 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(url, "alice", 0); err == nil {
		t.Fatal("expected duplicate error")
	}
	// Same URL for a different user is fine.
	if _, err := s.Add(url, "bob", 0); err != nil {
		t.Fatalf("Add for bob: %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Add("https://www.deezer.com/playlist/42", "alice", 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Remove(entry.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(entry.ID); err == nil {
		t.Fatal("expected not-found error on second remove")
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want empty", entries)
	}
}

func TestMarkSynced(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Add("https://www.deezer.com/playlist/42", "alice", 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.MarkSynced(entry.ID, 37); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries[0].LastSynced == nil {
		t.Fatal("LastSynced not set")
	}
	if entries[0].LastTrackCount != 37 {
		t.Errorf("LastTrackCount = %d, want 37", entries[0].LastTrackCount)
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	hoursAgo := func(h int) *time.Time {
		ts := now.Add(-time.Duration(h) * time.Hour)
		return &ts
	}

	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"never synced", Entry{Enabled: true}, true},
		{"disabled", Entry{Enabled: false}, false},
		{"overdue with own interval", Entry{Enabled: true, PollIntervalHours: 6, LastSynced: hoursAgo(7)}, true},
		{"not due yet", Entry{Enabled: true, PollIntervalHours: 6, LastSynced: hoursAgo(5)}, false},
		{"default interval applies", Entry{Enabled: true, LastSynced: hoursAgo(25)}, true},
		{"default interval not elapsed", Entry{Enabled: true, LastSynced: hoursAgo(23)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Due(now, 24); got != tt.want {
				t.Errorf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}
