// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package pathresolve turns the path a library server reports for a track
// into a file that actually exists under the locally mounted library root.
// The server may run in a container with a different mount point, the
// library may have been reorganized, or the file may simply be gone.
//
// Resolution runs an ordered strategy list; the first strategy that lands
// on an existing regular file wins. A track that no strategy can place
// resolves to the empty string without error so the caller can decide what
// a missing file means for its pass.
package pathresolve

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/introspect"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/normalize"
)

// audioExtensions are the file types the directory-scan strategies consider.
var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".ogg": true, ".opus": true,
	".m4a": true, ".aac": true, ".wav": true, ".wma": true,
}

// trackNumberPrefix matches a leading "NN - " or "NN-" track number.
var trackNumberPrefix = regexp.MustCompile(`^\d{1,2}\s*-\s*`)

// Request carries everything known about the track being located.
type Request struct {
	TrackID string
	Path    string // path as the server reported it, possibly foreign
	Artist  string
	Title   string
	Album   string
}

// Strategy attempts one way of locating the file. It returns "" when the
// strategy does not apply or found nothing; errors are reserved for lookup
// failures worth surfacing.
type Strategy func(ctx context.Context, req Request) (string, error)

// Resolver runs the strategy chain for one library root.
type Resolver struct {
	root       string
	prefixes   []string
	intro      introspect.LibraryIntrospector
	strategies []Strategy
}

// New builds the resolver. intro may be nil; the introspector-backed
// strategies are then skipped.
func New(cfg config.LibraryConfig, intro introspect.LibraryIntrospector) *Resolver {
	r := &Resolver{
		root:     cfg.Path,
		prefixes: cfg.MountPrefixes,
		intro:    intro,
	}
	r.strategies = []Strategy{
		r.verbatim,
		r.stripMountPrefix,
		r.storedPath,
		r.uniqueBasename,
		r.directoryScan,
		r.legacyNaming,
	}
	return r
}

// Resolve returns the local path of the track's file, or "" when no
// strategy can place it.
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, error) {
	for _, strategy := range r.strategies {
		path, err := strategy(ctx, req)
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}
	}
	logging.Debug().
		Str("track_id", req.TrackID).
		Str("reported_path", req.Path).
		Msg("Track file not resolvable under library root")
	return "", nil
}

// verbatim trusts the reported path, joined under the root when relative.
func (r *Resolver) verbatim(_ context.Context, req Request) (string, error) {
	if req.Path == "" {
		return "", nil
	}
	return r.existingFile(r.localize(req.Path)), nil
}

// stripMountPrefix rewrites paths reported from inside another mount
// namespace using the configured prefix list.
func (r *Resolver) stripMountPrefix(_ context.Context, req Request) (string, error) {
	for _, prefix := range r.prefixes {
		if rest, ok := strings.CutPrefix(req.Path, prefix); ok {
			if p := r.existingFile(filepath.Join(r.root, rest)); p != "" {
				return p, nil
			}
		}
	}
	return "", nil
}

// storedPath asks the record store for the path it holds for the track and
// runs it through the same localization and prefix rewrites.
func (r *Resolver) storedPath(ctx context.Context, req Request) (string, error) {
	if r.intro == nil || req.TrackID == "" {
		return "", nil
	}
	stored, err := r.intro.StoredPath(ctx, req.TrackID)
	if err != nil || stored == "" || stored == req.Path {
		return "", err
	}
	if p := r.existingFile(r.localize(stored)); p != "" {
		return p, nil
	}
	for _, prefix := range r.prefixes {
		if rest, ok := strings.CutPrefix(stored, prefix); ok {
			if p := r.existingFile(filepath.Join(r.root, rest)); p != "" {
				return p, nil
			}
		}
	}
	return "", nil
}

// uniqueBasename accepts a record-store path match on file name alone, but
// only when it is unambiguous.
func (r *Resolver) uniqueBasename(ctx context.Context, req Request) (string, error) {
	if r.intro == nil || req.Path == "" {
		return "", nil
	}
	matches, err := r.intro.FindByBasename(ctx, filepath.Base(req.Path))
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", nil
	}
	return r.existingFile(r.localize(matches[0])), nil
}

// directoryScan guesses the track's directory from artist and album names
// and looks for its file there. A lone audio file is accepted outright;
// with several, the name must contain the normalized title and the
// embedded tag must agree.
func (r *Resolver) directoryScan(_ context.Context, req Request) (string, error) {
	if req.Artist == "" {
		return "", nil
	}

	dirs := []string{}
	if req.Album != "" {
		dirs = append(dirs, filepath.Join(r.root, req.Artist, req.Album))
	}
	dirs = append(dirs, filepath.Join(r.root, req.Artist))

	for _, dir := range dirs {
		resolved := r.caseInsensitiveDir(dir)
		if resolved == "" {
			continue
		}
		if p := r.scanDir(resolved, req.Title); p != "" {
			return p, nil
		}
	}
	return "", nil
}

// scanDir picks the track's file out of one directory.
func (r *Resolver) scanDir(dir, title string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var audio []string
	for _, e := range entries {
		if e.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		audio = append(audio, filepath.Join(dir, e.Name()))
	}

	if len(audio) == 1 {
		return audio[0]
	}

	normTitle := normalize.String(title)
	if normTitle == "" {
		return ""
	}
	for _, path := range audio {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if !strings.Contains(normalize.String(name), normTitle) {
			continue
		}
		if tagTitleMatches(path, normTitle) {
			return path
		}
	}
	return ""
}

// legacyNaming tries naming-convention variants of the reported path left
// behind by older organizers: separator swaps, stripped track numbers,
// case-folded directories and underscore-truncated artist folders.
func (r *Resolver) legacyNaming(_ context.Context, req Request) (string, error) {
	if req.Path == "" {
		return "", nil
	}

	local := r.localize(req.Path)
	dir := filepath.Dir(local)
	base := filepath.Base(local)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	variants := []string{
		strings.ReplaceAll(stem, " - ", " ") + ext,
		strings.ReplaceAll(stem, " ", " - ") + ext,
		trackNumberPrefix.ReplaceAllString(stem, "") + ext,
	}
	if i := strings.IndexByte(req.Artist, '_'); i > 0 {
		variants = append(variants, strings.TrimSpace(req.Artist[:i])+" - "+req.Title+ext)
	}

	searchDirs := []string{dir}
	if ci := r.caseInsensitiveDir(dir); ci != "" && ci != dir {
		searchDirs = append(searchDirs, ci)
	}

	for _, d := range searchDirs {
		for _, v := range variants {
			if v == base {
				continue
			}
			if p := r.existingFile(filepath.Join(d, v)); p != "" {
				return p, nil
			}
		}
		// Same file name under a differently-cased directory.
		if d != dir {
			if p := r.existingFile(filepath.Join(d, base)); p != "" {
				return p, nil
			}
		}
	}
	return "", nil
}

// localize joins a server-reported path under the library root unless it is
// already absolute.
func (r *Resolver) localize(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.root, path)
}

// existingFile returns path when it names a regular file, "" otherwise.
func (r *Resolver) existingFile(path string) string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}

// caseInsensitiveDir finds an existing directory matching dir with any
// casing of its final element. Returns "" when none exists.
func (r *Resolver) caseInsensitiveDir(dir string) string {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}

	parent := filepath.Dir(dir)
	want := strings.ToLower(filepath.Base(dir))
	entries, err := os.ReadDir(parent)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(parent, e.Name())
		}
	}
	return ""
}

// tagTitleMatches opens the file's embedded metadata and compares titles.
// Unreadable tags count as a match; the file name check already passed.
func tagTitleMatches(path, normTitle string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil || meta.Title() == "" {
		return true
	}
	tagged := normalize.String(meta.Title())
	return tagged == normTitle || strings.Contains(tagged, normTitle) || strings.Contains(normTitle, tagged)
}
