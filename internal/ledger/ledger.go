// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package ledger persists the per-user record of which tracks the engine
// downloaded, from which source, and where they landed on disk. The cleanup
// pass is driven entirely by this record: only tracks the engine itself
// brought in are ever candidates for deletion.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// Entry is one downloaded track. NavidromeID and FilePath may be empty when
// the post-download resolution failed; the cleanup pass re-resolves them.
type Entry struct {
	Artist        string    `json:"artist"`
	Title         string    `json:"title"`
	Album         string    `json:"album,omitempty"`
	NavidromeID   string    `json:"navidrome_id,omitempty"`
	FilePath      string    `json:"file_path,omitempty"`
	RecordingMBID string    `json:"recording_mbid,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	DownloadedAt  time.Time `json:"downloaded_at"`
}

// Store reads and writes one user's ledger file. Writes go through a
// temp-file rename so a crash never leaves a truncated ledger.
type Store struct {
	mu   sync.Mutex
	path string
	user string
}

// NewStore opens the ledger for user under dir. The file is created lazily
// on the first write.
func NewStore(dir, user string) *Store {
	return &Store{
		path: filepath.Join(dir, user+".json"),
		user: user,
	}
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// User returns the account this ledger belongs to.
func (s *Store) User() string { return s.user }

// Load reads the full ledger, keyed by source name. A missing file is an
// empty ledger, not an error.
func (s *Store) Load() (map[string][]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (map[string][]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string][]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", s.path, err)
	}

	ledger := map[string][]Entry{}
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", s.path, err)
	}
	return ledger, nil
}

// Add upserts an entry under source. Identity is (source, artist, title)
// compared case-insensitively; when the track is already recorded its
// location fields are refreshed from the non-empty incoming values,
// preserving the original download time and any previously pinned ID.
func (s *Store) Add(source string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.load()
	if err != nil {
		return err
	}

	entries := ledger[source]
	replaced := false
	for i := range entries {
		if sameTrack(&entries[i], entry.Artist, entry.Title) {
			if entry.NavidromeID != "" {
				entries[i].NavidromeID = entry.NavidromeID
			}
			if entry.FilePath != "" {
				entries[i].FilePath = entry.FilePath
			}
			if entry.RecordingMBID != "" {
				entries[i].RecordingMBID = entry.RecordingMBID
			}
			replaced = true
			break
		}
	}
	if !replaced {
		if entry.DownloadedAt.IsZero() {
			entry.DownloadedAt = time.Now().UTC()
		}
		entries = append(entries, entry)
	}
	ledger[source] = entries

	return s.save(ledger)
}

// Remove deletes the entry for (source, artist, title). Removing an entry
// that is not present is a no-op.
func (s *Store) Remove(source, artist, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.load()
	if err != nil {
		return err
	}

	entries := ledger[source]
	kept := entries[:0]
	for i := range entries {
		if !sameTrack(&entries[i], artist, title) {
			kept = append(kept, entries[i])
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	if len(kept) == 0 {
		delete(ledger, source)
	} else {
		ledger[source] = kept
	}

	return s.save(ledger)
}

// save writes the ledger atomically and updates the per-source gauges.
func (s *Store) save(ledger map[string][]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	for source, entries := range ledger {
		metrics.LedgerEntries.WithLabelValues(s.user, source).Set(float64(len(entries)))
	}
	return nil
}

// Sources lists the source names present in the ledger, sorted for stable
// pass ordering.
func (s *Store) Sources() ([]string, error) {
	ledger, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ledger))
	for name := range ledger {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func sameTrack(e *Entry, artist, title string) bool {
	return strings.EqualFold(e.Artist, artist) && strings.EqualFold(e.Title, title)
}

// Discover lists the users that have a ledger file under dir.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger directory: %w", err)
	}

	var users []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		users = append(users, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(users)
	if len(users) > 0 {
		logging.Debug().Strs("users", users).Msg("Discovered ledger files")
	}
	return users, nil
}
