// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package monitor keeps external playlists in sync on a schedule. A JSON
// document lists the monitored playlist URLs; a supervised poller wakes
// periodically and re-downloads the ones whose interval has elapsed.
package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cadenza-music/cadenza/internal/sources"
)

// ErrNotFound is returned when no entry carries the requested ID.
var ErrNotFound = errors.New("monitored playlist not found")

// Entry is one monitored playlist.
type Entry struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	Name              string     `json:"name"`
	Platform          string     `json:"platform"`
	Username          string     `json:"username"`
	PollIntervalHours int        `json:"poll_interval_hours"`
	Enabled           bool       `json:"enabled"`
	AddedAt           time.Time  `json:"added_at"`
	LastSynced        *time.Time `json:"last_synced,omitempty"`
	LastTrackCount    int        `json:"last_track_count"`
}

// Due reports whether the entry's poll interval has elapsed. defaultHours
// applies when the entry carries no interval of its own.
func (e *Entry) Due(now time.Time, defaultHours int) bool {
	if !e.Enabled {
		return false
	}
	if e.LastSynced == nil {
		return true
	}
	hours := e.PollIntervalHours
	if hours <= 0 {
		hours = defaultHours
	}
	return now.Sub(*e.LastSynced) >= time.Duration(hours)*time.Hour
}

// Store persists monitored playlist entries to one JSON file. Writes are
// atomic via temp-file rename.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore opens the store at path. The file is created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all entries. A missing file is an empty list.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add validates the URL, fills in identity and defaults, and appends the
// entry. The stored entry is returned with its generated ID.
func (s *Store) Add(rawURL, username string, pollHours int) (*Entry, error) {
	platform, _ := sources.DetectPlatform(rawURL)
	if platform == sources.PlatformUnknown {
		return nil, fmt.Errorf("unrecognized playlist URL %q", rawURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].URL == rawURL && entries[i].Username == username {
			return nil, fmt.Errorf("playlist %q is already monitored for %s", rawURL, username)
		}
	}

	entry := Entry{
		ID:                uuid.NewString(),
		URL:               rawURL,
		Platform:          string(platform),
		Username:          username,
		PollIntervalHours: pollHours,
		Enabled:           true,
		AddedAt:           time.Now().UTC(),
	}
	entries = append(entries, entry)
	if err := s.save(entries); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update applies fn to the entry with the given ID and persists the result.
func (s *Store) Update(id string, fn func(*Entry)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			fn(&entries[i])
			if err := s.save(entries); err != nil {
				return nil, err
			}
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Remove deletes the entry with the given ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for i := range entries {
		if entries[i].ID != id {
			kept = append(kept, entries[i])
		}
	}
	if len(kept) == len(entries) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.save(kept)
}

// MarkSynced stamps the entry as synced now, regardless of how the sync
// went; a failing playlist retries on its next interval instead of hot-
// looping every poller tick.
func (s *Store) MarkSynced(id string, trackCount int) error {
	_, err := s.Update(id, func(e *Entry) {
		now := time.Now().UTC()
		e.LastSynced = &now
		e.LastTrackCount = trackCount
	})
	return err
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monitored playlists: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse monitored playlists: %w", err)
	}
	return entries, nil
}

func (s *Store) save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create monitor directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode monitored playlists: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write monitored playlists: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace monitored playlists: %w", err)
	}
	return nil
}
