// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cadenza-music/cadenza/internal/events"
	"github.com/cadenza-music/cadenza/internal/ledger"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/pathresolve"
	"github.com/cadenza-music/cadenza/internal/sources"
	"github.com/cadenza-music/cadenza/internal/subsonic"
)

// CleanupPass walks user's ledger and decides each tracked download's
// fate. Protected tracks graduate: the file stays and the ledger entry is
// dropped. Unprotected tracks are deleted from disk, pruned from managed
// playlists, and reported back to their source as negative feedback when
// the user explicitly rated them down. Entries whose file cannot be
// located are retained for the next pass.
func (e *Engine) CleanupPass(ctx context.Context, user string) (*PassSummary, error) {
	if err := e.acquire(user, "cleanup"); err != nil {
		return nil, err
	}
	defer e.release(user)

	start := time.Now()
	sum := &PassSummary{ID: uuid.NewString(), User: user, Kind: "cleanup"}
	store := e.ledgerFor(user)

	data, err := store.Load()
	if err != nil {
		sum.Duration = time.Since(start)
		e.publishPass(sum, false)
		return sum, err
	}

	logging.Info().
		Str("user", user).
		Int("sources", len(data)).
		Msg("Cleanup pass started")

	var deleted []string
	for source, entries := range data {
		for i := range entries {
			e.cleanupEntry(ctx, store, sources.Source(source), &entries[i], sum, &deleted)
		}
	}

	if len(deleted) > 0 {
		e.pruneManagedPlaylists(ctx, deleted, sum)
		if e.cleanup.RescanAfter {
			if err := e.rescan(ctx); err != nil {
				logging.Warn().Err(err).Msg("Library rescan failed after cleanup")
				sum.Errors++
			}
		}
	}

	sum.Duration = time.Since(start)
	e.publishPass(sum, sum.Errors == 0)
	return sum, nil
}

func (e *Engine) cleanupEntry(ctx context.Context, store *ledger.Store, source sources.Source, entry *ledger.Entry, sum *PassSummary, deleted *[]string) {
	user := store.User()

	track, err := e.lookup(ctx, entry)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("artist", entry.Artist).
			Str("title", entry.Title).
			Msg("Failed to look up tracked download")
		sum.Errors++
		return
	}
	if track == nil {
		// Gone from the library entirely, nothing left to manage.
		e.dropEntry(store, source, entry)
		sum.Skipped++
		e.publishTrack(events.TopicTrackSkipped, user, source,
			entry.Artist, entry.Title, entry.NavidromeID, "no longer in library")
		return
	}

	result, err := e.protector.Evaluate(ctx, track.ID)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("track_id", track.ID).
			Msg("Protection evaluation failed")
		sum.Errors++
		return
	}

	if result.Protected {
		e.dropEntry(store, source, entry)
		sum.Protected++
		reason := ""
		if len(result.Reasons) > 0 {
			reason = result.Reasons[0]
		}
		e.publishTrack(events.TopicTrackProtected, user, source,
			entry.Artist, entry.Title, track.ID, reason)
		e.submitFeedback(ctx, source, entry.RecordingMBID, 1)
		return
	}

	path, err := e.resolver.Resolve(ctx, pathresolve.Request{
		TrackID: track.ID,
		Path:    track.Path,
		Artist:  entry.Artist,
		Title:   entry.Title,
		Album:   entry.Album,
	})
	if err != nil {
		sum.Errors++
		return
	}
	if path == "" {
		// Keep the entry so a later pass can try again once the path
		// becomes resolvable.
		sum.Retained++
		logging.Warn().
			Str("artist", entry.Artist).
			Str("title", entry.Title).
			Str("server_path", track.Path).
			Msg("Cannot locate file on disk, retaining ledger entry")
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Error().Err(err).Str("path", path).Msg("Failed to delete file")
		sum.Errors++
		return
	}
	// Best effort: a now-empty album directory has nothing left to offer.
	_ = os.Remove(filepath.Dir(path))

	e.dropEntry(store, source, entry)
	*deleted = append(*deleted, track.ID)
	sum.Deleted++
	e.publishTrack(events.TopicTrackDeleted, user, source,
		entry.Artist, entry.Title, track.ID, "no engagement")

	if e.cleanup.NegativeFeedbackRating > 0 &&
		result.MaxRating > 0 &&
		result.MaxRating <= e.cleanup.NegativeFeedbackRating {
		e.submitFeedback(ctx, source, entry.RecordingMBID, -1)
	}
}

// lookup finds the library track for a ledger entry. Entries written
// before the server indexed the file carry no ID; those fall back to a
// fresh match. nil with no error means the track left the library.
func (e *Engine) lookup(ctx context.Context, entry *ledger.Entry) (*subsonic.Track, error) {
	if entry.NavidromeID != "" {
		track, err := e.api.GetSong(ctx, entry.NavidromeID)
		if errors.Is(err, subsonic.ErrNotFound) {
			return nil, nil
		}
		return track, err
	}
	return e.matcher.FindExisting(ctx, entry.Artist, entry.Title, entry.Album)
}

func (e *Engine) dropEntry(store *ledger.Store, source sources.Source, entry *ledger.Entry) {
	if err := store.Remove(string(source), entry.Artist, entry.Title); err != nil {
		logging.Error().
			Err(err).
			Str("user", store.User()).
			Str("artist", entry.Artist).
			Str("title", entry.Title).
			Msg("Failed to drop ledger entry")
	}
}

// pruneManagedPlaylists removes freshly deleted tracks from every playlist
// the engine maintains. Playlists the user built stay untouched.
func (e *Engine) pruneManagedPlaylists(ctx context.Context, deleted []string, sum *PassSummary) {
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}

	for _, name := range e.managedPlaylists() {
		current, err := e.playlists.Members(ctx, name)
		if err != nil {
			logging.Warn().Err(err).Str("playlist", name).Msg("Failed to read managed playlist")
			sum.Errors++
			continue
		}
		if current == nil {
			continue
		}

		desired := current[:0:0]
		for _, id := range current {
			if !gone[id] {
				desired = append(desired, id)
			}
		}
		if len(desired) == len(current) {
			continue
		}
		if err := e.playlists.SetMembership(ctx, name, desired); err != nil {
			logging.Warn().Err(err).Str("playlist", name).Msg("Failed to prune managed playlist")
			sum.Errors++
		}
	}
}
