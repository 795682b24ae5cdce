// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package subsonic

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// BreakerClient wraps a Client with a circuit breaker so a dead or drowning
// library server sheds load quickly instead of stacking timeouts across all
// reconciliation workers.
//
// Only transient failures count toward tripping the breaker: ErrNotFound and
// ErrRejected are authoritative answers, not signs of an unhealthy server.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewBreakerClient wraps client with a circuit breaker.
// Opens after a 60% failure rate over at least 10 requests; allows 3 probes
// in half-open state; recovers after 2 minutes.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "subsonic-" + client.User()

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logging.Warn().
					Str("breaker", cbName).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("opening subsonic circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Authoritative answers are healthy server behavior.
			return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("subsonic circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute funnels a client call through the breaker and updates metrics.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return result, err
}

func cast[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with circuit breaker protection.
func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.Ping(ctx) })
	return err
}

// Search issues a search3 query with circuit breaker protection.
func (b *BreakerClient) Search(ctx context.Context, query string, count int) ([]Track, error) {
	return cast[[]Track](b.execute(func() (any, error) { return b.client.Search(ctx, query, count) }))
}

// GetSong fetches one track with circuit breaker protection.
func (b *BreakerClient) GetSong(ctx context.Context, id string) (*Track, error) {
	return cast[*Track](b.execute(func() (any, error) { return b.client.GetSong(ctx, id) }))
}

// GetPlaylists lists playlists with circuit breaker protection.
func (b *BreakerClient) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	return cast[[]Playlist](b.execute(func() (any, error) { return b.client.GetPlaylists(ctx) }))
}

// GetPlaylist fetches playlist entries with circuit breaker protection.
func (b *BreakerClient) GetPlaylist(ctx context.Context, id string) (*PlaylistWithEntries, error) {
	return cast[*PlaylistWithEntries](b.execute(func() (any, error) { return b.client.GetPlaylist(ctx, id) }))
}

// CreatePlaylist creates a playlist with circuit breaker protection.
func (b *BreakerClient) CreatePlaylist(ctx context.Context, name string, songIDs []string) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.CreatePlaylist(ctx, name, songIDs) })
	return err
}

// AddPlaylistTracks appends songs with circuit breaker protection.
func (b *BreakerClient) AddPlaylistTracks(ctx context.Context, playlistID string, songIDs []string) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.AddPlaylistTracks(ctx, playlistID, songIDs) })
	return err
}

// RemovePlaylistEntries removes entries with circuit breaker protection.
func (b *BreakerClient) RemovePlaylistEntries(ctx context.Context, playlistID string, indexes []int) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.RemovePlaylistEntries(ctx, playlistID, indexes) })
	return err
}

// SetRating sets a rating with circuit breaker protection.
func (b *BreakerClient) SetRating(ctx context.Context, id string, rating int) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.SetRating(ctx, id, rating) })
	return err
}

// StartScan triggers a rescan with circuit breaker protection.
func (b *BreakerClient) StartScan(ctx context.Context) error {
	_, err := b.execute(func() (any, error) { return nil, b.client.StartScan(ctx) })
	return err
}

// GetScanStatus reads scanner state with circuit breaker protection.
func (b *BreakerClient) GetScanStatus(ctx context.Context) (*ScanStatus, error) {
	return cast[*ScanStatus](b.execute(func() (any, error) { return b.client.GetScanStatus(ctx) }))
}
