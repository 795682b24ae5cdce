// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package subsonic implements the client for the library server's
// Subsonic-compatible REST API (Navidrome in the reference deployment).
//
// Resilience:
//   - Bounded retry with exponential backoff on transient failures
//     (connection errors, timeouts, HTTP 5xx and 429 with Retry-After)
//   - Fail-fast on authoritative rejections (4xx, Subsonic error payloads)
//   - Optional circuit breaker wrapper (see breaker.go)
//
// Authentication follows the Subsonic salted-token scheme: every request
// carries a fresh random salt and md5(password + salt).
//
// Thread safety: the client is safe for concurrent use; each request builds
// its own parameter set.
package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // mandated by the Subsonic auth scheme
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// maxErrorBodySize bounds how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// API is the library-server surface the reconciliation engine depends on.
// Implemented by *Client and *BreakerClient; faked in tests.
type API interface {
	Search(ctx context.Context, query string, count int) ([]Track, error)
	GetSong(ctx context.Context, id string) (*Track, error)
	GetPlaylists(ctx context.Context) ([]Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*PlaylistWithEntries, error)
	CreatePlaylist(ctx context.Context, name string, songIDs []string) error
	AddPlaylistTracks(ctx context.Context, playlistID string, songIDs []string) error
	RemovePlaylistEntries(ctx context.Context, playlistID string, indexes []int) error
	SetRating(ctx context.Context, id string, rating int) error
	StartScan(ctx context.Context) error
	GetScanStatus(ctx context.Context) (*ScanStatus, error)
	Ping(ctx context.Context) error
}

// Client talks to one Subsonic-compatible server as one account.
type Client struct {
	baseURL    string
	user       string
	password   string
	clientName string
	apiVersion string

	httpClient     *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// Option mutates a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithAccount returns a client identical to c but authenticated as a
// different account. Used by the degraded protection fallback to inspect the
// administrative account's signals.
func (c *Client) WithAccount(user, password string) *Client {
	clone := *c
	clone.user = user
	clone.password = password
	return &clone
}

// User returns the account name this client authenticates as.
func (c *Client) User() string { return c.user }

// NewClient creates a Subsonic client from configuration.
func NewClient(cfg *config.NavidromeConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:        cfg.URL,
		user:           cfg.User,
		password:       cfg.Password,
		clientName:     cfg.ClientName,
		apiVersion:     cfg.APIVersion,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
	if c.clientName == "" {
		c.clientName = "cadenza"
	}
	if c.apiVersion == "" {
		c.apiVersion = "1.16.1"
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// authParams generates the per-request salted token.
func (c *Client) authParams() url.Values {
	salt := make([]byte, 6)
	_, _ = rand.Read(salt)
	saltHex := hex.EncodeToString(salt)
	sum := md5.Sum([]byte(c.password + saltHex)) //nolint:gosec // Subsonic auth scheme

	params := url.Values{}
	params.Set("u", c.user)
	params.Set("t", hex.EncodeToString(sum[:]))
	params.Set("s", saltHex)
	params.Set("v", c.apiVersion)
	params.Set("c", c.clientName)
	params.Set("f", "json")
	return params
}

// call performs one endpoint request with auth, retry, status checking and
// envelope decoding. params may be nil. The returned envelope has already
// passed status == "ok" validation.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	auth := c.authParams()
	if params != nil {
		for k, vs := range params {
			for _, v := range vs {
				auth.Add(k, v)
			}
		}
	}
	reqURL := fmt.Sprintf("%s/rest/%s.view?%s", c.baseURL, endpoint, auth.Encode())

	start := time.Now()
	resp, err := c.doWithRetry(ctx, endpoint, reqURL)
	metrics.SubsonicRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		transient := resp.StatusCode >= 500
		class := "rejected"
		if transient {
			class = "transient"
		}
		metrics.SubsonicRequestErrors.WithLabelValues(endpoint, class).Inc()
		return nil, &requestError{
			endpoint:  endpoint,
			transient: transient,
			err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		metrics.SubsonicRequestErrors.WithLabelValues(endpoint, "decode").Inc()
		return nil, &requestError{endpoint: endpoint, err: fmt.Errorf("decode: %w", err)}
	}

	if env.Response.Status != "ok" {
		apiErr := env.Response.Error
		if apiErr == nil {
			apiErr = &apiError{Code: codeGeneric, Message: "unknown error"}
		}
		metrics.SubsonicRequestErrors.WithLabelValues(endpoint, "rejected").Inc()
		return nil, apiErrorToGo(endpoint, apiErr)
	}

	return &env, nil
}

// doWithRetry retries transient transport failures with exponential backoff.
// Authoritative 4xx responses are returned immediately for the caller to
// classify; retry only covers connection errors, 5xx and 429.
func (c *Client) doWithRetry(ctx context.Context, endpoint, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if err != nil {
			lastErr = &requestError{endpoint: endpoint, transient: true, err: err}
		} else {
			// Retryable HTTP status; honor Retry-After when present.
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			lastErr = &requestError{
				endpoint:  endpoint,
				transient: true,
				err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			}
			_ = resp.Body.Close()
		}

		if attempt == c.maxRetries {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	metrics.SubsonicRequestErrors.WithLabelValues(endpoint, "transient").Inc()
	return nil, lastErr
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// Search issues a full-text search3 query and returns up to count songs.
func (c *Client) Search(ctx context.Context, query string, count int) ([]Track, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("songCount", strconv.Itoa(count))
	params.Set("artistCount", "0")
	params.Set("albumCount", "0")

	env, err := c.call(ctx, "search3", params)
	if err != nil {
		return nil, err
	}
	if env.Response.SearchResult3 == nil {
		return nil, nil
	}
	return env.Response.SearchResult3.Song, nil
}

// GetSong fetches one track by ID. Returns ErrNotFound if the server no
// longer knows the ID.
func (c *Client) GetSong(ctx context.Context, id string) (*Track, error) {
	params := url.Values{}
	params.Set("id", id)

	env, err := c.call(ctx, "getSong", params)
	if err != nil {
		return nil, err
	}
	if env.Response.Song == nil {
		return nil, fmt.Errorf("getSong %s: %w", id, ErrNotFound)
	}
	return env.Response.Song, nil
}

// GetPlaylists lists the playlists visible to this account.
func (c *Client) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	env, err := c.call(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	if env.Response.Playlists == nil {
		return nil, nil
	}
	return env.Response.Playlists.Playlist, nil
}

// GetPlaylist fetches a playlist with its entries.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*PlaylistWithEntries, error) {
	params := url.Values{}
	params.Set("id", id)

	env, err := c.call(ctx, "getPlaylist", params)
	if err != nil {
		return nil, err
	}
	if env.Response.Playlist == nil {
		return nil, fmt.Errorf("getPlaylist %s: %w", id, ErrNotFound)
	}
	return env.Response.Playlist, nil
}

// CreatePlaylist creates a playlist with the given members.
func (c *Client) CreatePlaylist(ctx context.Context, name string, songIDs []string) error {
	params := url.Values{}
	params.Set("name", name)
	for _, id := range songIDs {
		params.Add("songId", id)
	}
	_, err := c.call(ctx, "createPlaylist", params)
	return err
}

// AddPlaylistTracks appends songs to an existing playlist.
func (c *Client) AddPlaylistTracks(ctx context.Context, playlistID string, songIDs []string) error {
	if len(songIDs) == 0 {
		return nil
	}
	params := url.Values{}
	params.Set("playlistId", playlistID)
	for _, id := range songIDs {
		params.Add("songIdToAdd", id)
	}
	_, err := c.call(ctx, "updatePlaylist", params)
	return err
}

// RemovePlaylistEntries removes playlist entries by index. Indexes refer to
// the playlist as it exists at call time; callers must send them in a single
// request (the server reindexes after every mutation).
func (c *Client) RemovePlaylistEntries(ctx context.Context, playlistID string, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}
	params := url.Values{}
	params.Set("playlistId", playlistID)
	for _, idx := range indexes {
		params.Add("songIndexToRemove", strconv.Itoa(idx))
	}
	_, err := c.call(ctx, "updatePlaylist", params)
	return err
}

// SetRating sets this account's rating (0-5) for a track.
func (c *Client) SetRating(ctx context.Context, id string, rating int) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("rating", strconv.Itoa(rating))
	_, err := c.call(ctx, "setRating", params)
	return err
}

// StartScan asks the server to rescan its library.
func (c *Client) StartScan(ctx context.Context) error {
	_, err := c.call(ctx, "startScan", nil)
	return err
}

// GetScanStatus reports whether a scan is in progress.
func (c *Client) GetScanStatus(ctx context.Context) (*ScanStatus, error) {
	env, err := c.call(ctx, "getScanStatus", nil)
	if err != nil {
		return nil, err
	}
	if env.Response.ScanStatus == nil {
		return &ScanStatus{}, nil
	}
	return env.Response.ScanStatus, nil
}

// AwaitScan polls getScanStatus until the scan completes or ctx expires.
// Best effort: errors are returned but callers typically only log them.
func (c *Client) AwaitScan(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	for {
		status, err := c.GetScanStatus(ctx)
		if err != nil {
			return err
		}
		if !status.Scanning {
			return nil
		}
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
