// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package pathresolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/introspect"
)

type fakeIntrospector struct {
	storedPaths map[string]string
	byBasename  map[string][]string
}

func (f *fakeIntrospector) StoredPath(_ context.Context, id string) (string, error) {
	return f.storedPaths[id], nil
}

func (f *fakeIntrospector) FindByBasename(_ context.Context, base string) ([]string, error) {
	return f.byBasename[base], nil
}

func (f *fakeIntrospector) TrackSignals(context.Context, string) (*introspect.Signals, error) {
	return &introspect.Signals{}, nil
}

func (f *fakeIntrospector) Mode() string { return "fake" }

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not real audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newResolver(t *testing.T, root string, prefixes []string) *Resolver {
	t.Helper()
	return New(config.LibraryConfig{Path: root, MountPrefixes: prefixes}, nil)
}

func TestResolveVerbatimRelative(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Queen", "01.mp3"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{Path: "Queen/01.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "Queen", "01.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveMountPrefix(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Queen", "01.mp3"))
	r := newResolver(t, root, []string{"/music/"})

	got, err := r.Resolve(context.Background(), Request{Path: "/music/Queen/01.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "Queen", "01.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveDirectoryScanSingleFile(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Queen", "Innuendo", "whatever.flac"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{
		Path:   "other/location/gone.mp3",
		Artist: "Queen",
		Album:  "Innuendo",
		Title:  "The Show Must Go On",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "Queen", "Innuendo", "whatever.flac") {
		t.Errorf("got %q", got)
	}
}

func TestResolveDirectoryScanByTitle(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Queen", "Innuendo", "03 - Headlong.mp3"))
	touch(t, filepath.Join(root, "Queen", "Innuendo", "12 - The Show Must Go On.mp3"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{
		Artist: "Queen",
		Album:  "Innuendo",
		Title:  "The Show Must Go On",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "Queen", "Innuendo", "12 - The Show Must Go On.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveCaseInsensitiveArtistDir(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "QUEEN", "lone.mp3"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{Artist: "Queen", Title: "Lone"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "QUEEN", "lone.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveLegacySeparatorSwap(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "d", "Queen Headlong.mp3"))
	touch(t, filepath.Join(root, "d", "other.mp3"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{Path: "d/Queen - Headlong.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "d", "Queen Headlong.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveLegacyTrackNumberStrip(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "d", "Headlong.mp3"))
	touch(t, filepath.Join(root, "d", "other.mp3"))
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{Path: "d/03 - Headlong.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "d", "Headlong.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveStoredPathRewrite(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Queen", "01.mp3"))
	intro := &fakeIntrospector{storedPaths: map[string]string{
		"t1": "/data/music/Queen/01.mp3",
	}}
	r := New(config.LibraryConfig{Path: root, MountPrefixes: []string{"/data/music/"}}, intro)

	// The API-reported path is stale; the record store knows the real one.
	got, err := r.Resolve(context.Background(), Request{TrackID: "t1", Path: "old/gone.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "Queen", "01.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveUniqueBasename(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "moved", "song.mp3"))
	intro := &fakeIntrospector{byBasename: map[string][]string{
		"song.mp3": {"moved/song.mp3"},
	}}
	r := New(config.LibraryConfig{Path: root}, intro)

	got, err := r.Resolve(context.Background(), Request{TrackID: "t1", Path: "old/song.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "moved", "song.mp3") {
		t.Errorf("got %q", got)
	}
}

func TestResolveAmbiguousBasenameRejected(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "song.mp3"))
	touch(t, filepath.Join(root, "b", "song.mp3"))
	intro := &fakeIntrospector{byBasename: map[string][]string{
		"song.mp3": {"a/song.mp3", "b/song.mp3"},
	}}
	r := New(config.LibraryConfig{Path: root}, intro)

	got, err := r.Resolve(context.Background(), Request{TrackID: "t1", Path: "old/song.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("ambiguous basename must not resolve, got %q", got)
	}
}

func TestResolveMissingReturnsEmpty(t *testing.T) {
	r := newResolver(t, t.TempDir(), []string{"/music/"})

	got, err := r.Resolve(context.Background(), Request{
		Path:   "/music/Nobody/Nothing.mp3",
		Artist: "Nobody",
		Title:  "Nothing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("got %q, want empty for unresolvable track", got)
	}
}

func TestResolveSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Queen", "01.mp3"), 0o755); err != nil {
		t.Fatal(err)
	}
	r := newResolver(t, root, nil)

	got, err := r.Resolve(context.Background(), Request{Path: "Queen/01.mp3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("resolved a directory: %q", got)
	}
}
