// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAddAndLoad(t *testing.T) {
	store := NewStore(t.TempDir(), "alice")

	entry := Entry{
		Artist:      "Queen",
		Title:       "Bohemian Rhapsody",
		Album:       "A Night at the Opera",
		NavidromeID: "t1",
		FilePath:    "/music/Queen/A Night at the Opera/01.mp3",
	}
	if err := store.Add("listenbrainz", entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ledger, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := ledger["listenbrainz"]
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].NavidromeID != "t1" {
		t.Errorf("NavidromeID = %q", entries[0].NavidromeID)
	}
	if entries[0].DownloadedAt.IsZero() {
		t.Error("DownloadedAt not stamped")
	}
}

func TestAddUpsertRefreshesLocation(t *testing.T) {
	store := NewStore(t.TempDir(), "alice")

	first := Entry{
		Artist:       "Queen",
		Title:        "Bohemian Rhapsody",
		NavidromeID:  "old",
		FilePath:     "/old/path.mp3",
		DownloadedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Add("listenbrainz", first); err != nil {
		t.Fatal(err)
	}

	// Re-download after a library move: same track, different case, new
	// location. The original download time must survive.
	second := Entry{
		Artist:      "QUEEN",
		Title:       "bohemian rhapsody",
		NavidromeID: "new",
		FilePath:    "/new/path.mp3",
	}
	if err := store.Add("listenbrainz", second); err != nil {
		t.Fatal(err)
	}

	ledger, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	entries := ledger["listenbrainz"]
	if len(entries) != 1 {
		t.Fatalf("upsert created a duplicate: %d entries", len(entries))
	}
	if entries[0].NavidromeID != "new" || entries[0].FilePath != "/new/path.mp3" {
		t.Errorf("location not refreshed: %+v", entries[0])
	}
	if !entries[0].DownloadedAt.Equal(first.DownloadedAt) {
		t.Errorf("DownloadedAt changed to %v", entries[0].DownloadedAt)
	}
	if entries[0].Artist != "Queen" {
		t.Errorf("original casing lost: %q", entries[0].Artist)
	}
}

func TestAddUpsertKeepsPinnedIDWhenRematchFails(t *testing.T) {
	store := NewStore(t.TempDir(), "alice")

	first := Entry{
		Artist:        "Queen",
		Title:         "Bohemian Rhapsody",
		NavidromeID:   "t1",
		FilePath:      "/music/Queen/01.mp3",
		RecordingMBID: "mbid-1",
	}
	if err := store.Add("listenbrainz", first); err != nil {
		t.Fatal(err)
	}

	// Re-add after a scan where the post-scan match came back empty. The
	// pinned server ID and path must not be erased by the blanks.
	second := Entry{
		Artist:   "Queen",
		Title:    "Bohemian Rhapsody",
		FilePath: "",
	}
	if err := store.Add("listenbrainz", second); err != nil {
		t.Fatal(err)
	}

	ledger, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	entries := ledger["listenbrainz"]
	if len(entries) != 1 {
		t.Fatalf("upsert created a duplicate: %d entries", len(entries))
	}
	if entries[0].NavidromeID != "t1" || entries[0].FilePath != "/music/Queen/01.mp3" {
		t.Errorf("pinned location erased: %+v", entries[0])
	}
	if entries[0].RecordingMBID != "mbid-1" {
		t.Errorf("RecordingMBID erased: %q", entries[0].RecordingMBID)
	}
}

func TestRemove(t *testing.T) {
	store := NewStore(t.TempDir(), "alice")

	for _, title := range []string{"One", "Two"} {
		if err := store.Add("lastfm", Entry{Artist: "Metallica", Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Remove("lastfm", "METALLICA", "one"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	ledger, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	entries := ledger["lastfm"]
	if len(entries) != 1 || entries[0].Title != "Two" {
		t.Errorf("unexpected entries after remove: %+v", entries)
	}

	// Removing the last entry drops the source key entirely.
	if err := store.Remove("lastfm", "Metallica", "Two"); err != nil {
		t.Fatal(err)
	}
	ledger, err = store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ledger["lastfm"]; ok {
		t.Error("empty source key not dropped")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	store := NewStore(t.TempDir(), "alice")
	if err := store.Remove("lastfm", "Nobody", "Nothing"); err != nil {
		t.Fatalf("Remove on empty ledger: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("no-op remove should not create the ledger file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir(), "ghost")
	ledger, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("got %v, want empty ledger", ledger)
	}
}

func TestAtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "alice")
	if err := store.Add("manual", Entry{Artist: "A", Title: "B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alice.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, user := range []string{"bob", "alice"} {
		if err := NewStore(dir, user).Add("manual", Entry{Artist: "A", Title: "B"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	users, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("users = %v", users)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	users, err := Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if users != nil {
		t.Errorf("users = %v, want nil", users)
	}
}
