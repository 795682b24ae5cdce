// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/sources"
)

type fakeExtractor struct {
	name  string
	recs  []sources.Recommendation
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string) (string, []sources.Recommendation, error) {
	f.calls++
	return f.name, f.recs, f.err
}

func TestSweepSyncsDueEntries(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "monitored.json"))
	due, err := store.Add("https://www.deezer.com/playlist/1", "alice", 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	fresh, err := store.Add("https://www.deezer.com/playlist/2", "alice", 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.MarkSynced(fresh.ID, 0); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	extractor := &fakeExtractor{
		name: "Friday Finds",
		recs: []sources.Recommendation{
			{Artist: "Caribou", Title: "Odessa", Source: sources.SourcePlaylist, PlaylistName: "Friday Finds"},
		},
	}
	var syncedUser string
	var syncedCount int
	var registered []string

	p := NewPoller(PollerOptions{
		Store:     store,
		Extractor: extractor,
		Sync: func(_ context.Context, user string, recs []sources.Recommendation) (int, int, error) {
			syncedUser = user
			syncedCount = len(recs)
			return len(recs), 0, nil
		},
		Register: func(name string) { registered = append(registered, name) },
		Config:   config.MonitorConfig{DefaultPollHours: 24},
	})

	p.Sweep(context.Background())

	if extractor.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1 (only the due entry)", extractor.calls)
	}
	if syncedUser != "alice" || syncedCount != 1 {
		t.Fatalf("sync got user=%q count=%d", syncedUser, syncedCount)
	}
	if len(registered) != 1 || registered[0] != "Friday Finds" {
		t.Fatalf("registered = %v", registered)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i := range entries {
		if entries[i].ID == due.ID {
			if entries[i].LastSynced == nil {
				t.Error("due entry not stamped after sync")
			}
			if entries[i].Name != "Friday Finds" {
				t.Errorf("Name = %q, want extracted playlist name", entries[i].Name)
			}
			if entries[i].LastTrackCount != 1 {
				t.Errorf("LastTrackCount = %d, want 1", entries[i].LastTrackCount)
			}
		}
	}
}

func TestSweepStampsFailedExtractions(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "monitored.json"))
	if _, err := store.Add("https://www.deezer.com/playlist/1", "alice", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	p := NewPoller(PollerOptions{
		Store:     store,
		Extractor: &fakeExtractor{err: errors.New("deezer returned 500")},
		Sync: func(context.Context, string, []sources.Recommendation) (int, int, error) {
			t.Fatal("sync should not run when extraction fails")
			return 0, 0, nil
		},
		Register: func(string) {},
		Config:   config.MonitorConfig{DefaultPollHours: 1},
	})

	p.Sweep(context.Background())

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries[0].LastSynced == nil {
		t.Fatal("failed entry must still be stamped so it waits out its interval")
	}
	if time.Since(*entries[0].LastSynced) > time.Minute {
		t.Errorf("stamp not recent: %v", entries[0].LastSynced)
	}
}
