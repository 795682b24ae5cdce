// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package subsonic

import (
	"context"
	"crypto/md5" //nolint:gosec // verifying the Subsonic auth scheme
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cadenza-music/cadenza/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.NavidromeConfig{
		URL:            srv.URL,
		User:           "alice",
		Password:       "secret",
		Timeout:        5 * time.Second,
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	}
	return NewClient(cfg), srv
}

func okBody(inner string) string {
	return `{"subsonic-response":{"status":"ok","version":"1.16.1"` + inner + `}}`
}

func TestAuthParams(t *testing.T) {
	var captured url.Values
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		_, _ = w.Write([]byte(okBody("")))
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if captured.Get("u") != "alice" {
		t.Errorf("u = %q, want alice", captured.Get("u"))
	}
	salt := captured.Get("s")
	if salt == "" {
		t.Fatal("missing salt")
	}
	sum := md5.Sum([]byte("secret" + salt)) //nolint:gosec
	if captured.Get("t") != hex.EncodeToString(sum[:]) {
		t.Error("token is not md5(password+salt)")
	}
	if captured.Get("f") != "json" {
		t.Errorf("f = %q, want json", captured.Get("f"))
	}
}

func TestSearch(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "let me love you" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(okBody(`,"searchResult3":{"song":[
			{"id":"t1","title":"Let Me Love You","artist":"DJ Snake","album":"Encore","path":"DJ Snake/Encore/01.mp3","userRating":4,"starred":"2026-01-01T00:00:00Z"},
			{"id":"t2","title":"Other","artist":"Nobody","album":"X","path":"a/b/c.mp3"}
		]}`)))
	})

	tracks, err := client.Search(context.Background(), "let me love you", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].ID != "t1" || tracks[0].UserRating != 4 || !tracks[0].IsStarred() {
		t.Errorf("unexpected first track: %+v", tracks[0])
	}
	if tracks[1].IsStarred() {
		t.Error("second track should not be starred")
	}
}

func TestGetSongNotFound(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subsonic-response":{"status":"failed","version":"1.16.1","error":{"code":70,"message":"Song not found"}}}`))
	})

	_, err := client.GetSong(context.Background(), "gone")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if IsTransient(err) {
		t.Error("not-found must not be transient")
	}
}

func TestAuthRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"subsonic-response":{"status":"failed","version":"1.16.1","error":{"code":40,"message":"Wrong username or password"}}}`))
	})

	err := client.Ping(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, authoritative rejection must not retry", got)
	}
}

func TestTransientRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(okBody("")))
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping should succeed after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestTransientRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("exhausted retries should surface a transient error, got %v", err)
	}
	// RetryAttempts=2 means 3 total attempts.
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestUpdatePlaylistParams(t *testing.T) {
	var captured url.Values
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		_, _ = w.Write([]byte(okBody("")))
	})

	ctx := context.Background()
	if err := client.RemovePlaylistEntries(ctx, "pl1", []int{4, 2, 0}); err != nil {
		t.Fatal(err)
	}
	if got := captured["songIndexToRemove"]; len(got) != 3 || got[0] != "4" {
		t.Errorf("songIndexToRemove = %v", got)
	}

	if err := client.AddPlaylistTracks(ctx, "pl1", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if got := captured["songIdToAdd"]; len(got) != 2 || got[1] != "b" {
		t.Errorf("songIdToAdd = %v", got)
	}
}

func TestNoopPlaylistMutations(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(okBody("")))
	})

	ctx := context.Background()
	if err := client.AddPlaylistTracks(ctx, "pl1", nil); err != nil {
		t.Fatal(err)
	}
	if err := client.RemovePlaylistEntries(ctx, "pl1", nil); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 0 {
		t.Error("empty mutations must not hit the server")
	}
}

func TestWithAccount(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okBody("")))
	})

	admin := client.WithAccount("admin", "adminpass")
	if admin.User() != "admin" {
		t.Errorf("User() = %q", admin.User())
	}
	if client.User() != "alice" {
		t.Error("WithAccount must not mutate the original client")
	}
}
