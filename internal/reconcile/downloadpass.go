// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cadenza-music/cadenza/internal/events"
	"github.com/cadenza-music/cadenza/internal/ledger"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/sources"
)

// trackResult is the per-recommendation outcome of the fetch phase.
type trackResult struct {
	rec sources.Recommendation

	// existingID is set when the library already had the track.
	existingID string

	// filePath is the organized location of a fresh download.
	filePath string

	err error
}

// DownloadPass collects recommendations from every configured provider and
// runs the download pass for user.
func (e *Engine) DownloadPass(ctx context.Context, user string) (*PassSummary, error) {
	return e.Download(ctx, user, e.Collect(ctx))
}

// Download runs the download pass for user over an explicit recommendation
// list. Duplicate recommendations collapse first-wins on artist and title.
// Only ErrPassInFlight fails the pass outright; per-track trouble is
// counted and the rest of the list still runs.
func (e *Engine) Download(ctx context.Context, user string, recs []sources.Recommendation) (*PassSummary, error) {
	if err := e.acquire(user, "download"); err != nil {
		return nil, err
	}
	defer e.release(user)

	start := time.Now()
	sum := &PassSummary{ID: uuid.NewString(), User: user, Kind: "download"}
	recs = dedupe(recs)

	logging.Info().
		Str("user", user).
		Int("recommendations", len(recs)).
		Msg("Download pass started")

	// Staging is keyed by the pass ID: concurrent passes for different
	// users never share a tree.
	staging := filepath.Join(e.download.TempDir, "pass-"+sum.ID)
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logging.Warn().Err(err).Str("dir", staging).Msg("Failed to remove staging directory")
		}
	}()

	results := make([]trackResult, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.download.Workers)
	for i := range recs {
		i := i
		g.Go(func() error {
			results[i] = e.fetchOne(gctx, recs[i], filepath.Join(staging, fmt.Sprintf("track-%03d", i)))
			return nil
		})
	}
	_ = g.Wait()

	fetched := 0
	for i := range results {
		if results[i].err == nil && results[i].filePath != "" {
			fetched++
		}
	}

	// Fresh files are invisible to the server until it rescans; the IDs
	// are needed for the ledger and playlist membership.
	if fetched > 0 {
		if err := e.rescan(ctx); err != nil {
			logging.Warn().Err(err).Msg("Library rescan failed after downloads")
			sum.Errors++
		}
	}

	store := e.ledgerFor(user)
	newByPlaylist := make(map[string][]string)
	for i := range results {
		res := &results[i]
		switch {
		case res.err != nil:
			sum.Errors++
			e.publishTrack(events.TopicTrackSkipped, user, res.rec.Source,
				res.rec.Artist, res.rec.Title, "", res.err.Error())

		case res.existingID != "":
			sum.Skipped++
			e.publishTrack(events.TopicTrackSkipped, user, res.rec.Source,
				res.rec.Artist, res.rec.Title, res.existingID, "already in library")
			name := res.rec.TargetPlaylist()
			newByPlaylist[name] = append(newByPlaylist[name], res.existingID)

		default:
			id := e.recordDownload(ctx, store, res)
			sum.Downloaded++
			e.publishTrack(events.TopicTrackDownloaded, user, res.rec.Source,
				res.rec.Artist, res.rec.Title, id, "")
			if id != "" {
				name := res.rec.TargetPlaylist()
				newByPlaylist[name] = append(newByPlaylist[name], id)
			}
		}
	}

	if err := e.syncPlaylists(ctx, store, newByPlaylist); err != nil {
		logging.Warn().Err(err).Str("user", user).Msg("Playlist sync failed")
		sum.Errors++
	}

	sum.Duration = time.Since(start)
	e.publishPass(sum, sum.Errors == 0)
	return sum, nil
}

// fetchOne matches one recommendation against the library and downloads it
// when absent. Fresh files are organized into the library tree immediately.
func (e *Engine) fetchOne(ctx context.Context, rec sources.Recommendation, dest string) trackResult {
	res := trackResult{rec: rec}

	existing, err := e.matcher.FindExisting(ctx, rec.Artist, rec.Title, rec.Album)
	if err != nil {
		res.err = fmt.Errorf("failed to check library for %s - %s: %w", rec.Artist, rec.Title, err)
		return res
	}
	if existing != nil {
		res.existingID = existing.ID
		return res
	}

	if err := e.fetcher.Fetch(ctx, rec, dest); err != nil {
		res.err = err
		return res
	}

	moved, err := e.organizer.Organize(dest)
	if err != nil {
		res.err = fmt.Errorf("failed to organize download for %s - %s: %w", rec.Artist, rec.Title, err)
		return res
	}
	for _, path := range moved {
		res.filePath = path
		break
	}
	if res.filePath == "" {
		res.err = fmt.Errorf("download engine produced no audio file for %s - %s", rec.Artist, rec.Title)
	}
	return res
}

// recordDownload writes the ledger entry for a fresh download, matching
// the post-scan library to pin the server ID when possible.
func (e *Engine) recordDownload(ctx context.Context, store *ledger.Store, res *trackResult) string {
	entry := ledger.Entry{
		Artist:        res.rec.Artist,
		Title:         res.rec.Title,
		Album:         res.rec.Album,
		FilePath:      res.filePath,
		RecordingMBID: res.rec.RecordingMBID,
		Comment:       res.rec.Source.Comment(),
		DownloadedAt:  time.Now().UTC(),
	}

	track, err := e.matcher.FindExisting(ctx, res.rec.Artist, res.rec.Title, res.rec.Album)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("artist", res.rec.Artist).
			Str("title", res.rec.Title).
			Msg("Post-scan match failed; ledger entry has no server ID")
	} else if track != nil {
		entry.NavidromeID = track.ID
	}

	if err := store.Add(string(res.rec.Source), entry); err != nil {
		logging.Error().Err(err).Str("user", store.User()).Msg("Failed to record download in ledger")
	}
	return entry.NavidromeID
}

// syncPlaylists refreshes each touched playlist: this pass's tracks plus
// whatever members the user added by hand. Members from earlier passes
// that are still in the ledger roll off, matching the weekly cadence of
// the discovery sources.
func (e *Engine) syncPlaylists(ctx context.Context, store *ledger.Store, newByPlaylist map[string][]string) error {
	if len(newByPlaylist) == 0 {
		return nil
	}

	tracked, err := trackedIDs(store)
	if err != nil {
		return err
	}

	var firstErr error
	for name, ids := range newByPlaylist {
		e.RegisterManagedPlaylist(name)

		current, err := e.playlists.Members(ctx, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		seen := make(map[string]bool, len(ids))
		desired := make([]string, 0, len(ids)+len(current))
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				desired = append(desired, id)
			}
		}
		for _, id := range current {
			if !seen[id] && !tracked[id] {
				seen[id] = true
				desired = append(desired, id)
			}
		}

		if err := e.playlists.SetMembership(ctx, name, desired); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// trackedIDs collects every server ID the ledger knows about.
func trackedIDs(store *ledger.Store) (map[string]bool, error) {
	data, err := store.Load()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, entries := range data {
		for i := range entries {
			if entries[i].NavidromeID != "" {
				ids[entries[i].NavidromeID] = true
			}
		}
	}
	return ids, nil
}

// dedupe collapses recommendations that name the same artist and title,
// keeping the first occurrence.
func dedupe(recs []sources.Recommendation) []sources.Recommendation {
	seen := make(map[string]bool, len(recs))
	out := recs[:0:0]
	for _, rec := range recs {
		key := strings.ToLower(strings.TrimSpace(rec.Artist)) + "\x00" + strings.ToLower(strings.TrimSpace(rec.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}
