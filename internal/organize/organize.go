// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package organize files freshly downloaded tracks into the library's
// Artist/Album layout using their embedded tags. Files whose tags cannot
// name a destination land under an "Unorganized" folder instead of being
// lost or left behind.
package organize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"

	"github.com/cadenza-music/cadenza/internal/logging"
)

// fallbackDir receives files with unusable tags.
const fallbackDir = "Unorganized"

// invalidPathChars are characters stripped from tag values before they
// become path elements.
var invalidPathChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// audioExtensions are the file types moved into the library.
var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".ogg": true, ".opus": true,
	".m4a": true, ".aac": true, ".wav": true, ".wma": true,
}

// artworkNames are sidecar files deleted rather than moved.
var artworkNames = map[string]bool{
	"cover.jpg": true, "cover.png": true, "folder.jpg": true,
	"folder.png": true, "artwork.jpg": true, "artwork.png": true,
}

// Organizer moves files from a download staging area into the library.
type Organizer struct {
	libraryRoot string
}

// New creates an organizer targeting libraryRoot.
func New(libraryRoot string) *Organizer {
	return &Organizer{libraryRoot: libraryRoot}
}

// Organize moves every audio file under sourceDir into the library and
// returns old path to new path for each moved file. Sidecar artwork is
// deleted and emptied directories are pruned. Individual file failures are
// logged and skipped; the error return covers walking sourceDir itself.
func (o *Organizer) Organize(sourceDir string) (map[string]string, error) {
	moved := make(map[string]string)

	err := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := strings.ToLower(d.Name())
		if artworkNames[name] {
			if rmErr := os.Remove(path); rmErr != nil {
				logging.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove artwork")
			}
			return nil
		}
		if !audioExtensions[filepath.Ext(name)] {
			return nil
		}

		dest, moveErr := o.place(path)
		if moveErr != nil {
			logging.Warn().Err(moveErr).Str("path", path).Msg("Failed to organize file")
			return nil
		}
		moved[path] = dest
		return nil
	})
	if err != nil {
		return moved, fmt.Errorf("failed to walk %s: %w", sourceDir, err)
	}

	if err := RemoveEmptyFolders(sourceDir); err != nil {
		logging.Warn().Err(err).Str("dir", sourceDir).Msg("Failed to prune staging directories")
	}
	return moved, nil
}

// place decides the destination for one file and moves it there.
func (o *Organizer) place(path string) (string, error) {
	artist, album := readTags(path)

	var destDir string
	if artist == "" {
		destDir = filepath.Join(o.libraryRoot, fallbackDir)
	} else if album == "" {
		destDir = filepath.Join(o.libraryRoot, artist)
	} else {
		destDir = filepath.Join(o.libraryRoot, artist, album)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	dest := availableName(filepath.Join(destDir, filepath.Base(path)))
	if err := moveFile(path, dest); err != nil {
		return "", err
	}

	logging.Debug().Str("from", path).Str("to", dest).Msg("Organized file")
	return dest, nil
}

// readTags returns sanitized artist and album path elements, empty when the
// tag is missing or unreadable.
func readTags(path string) (artist, album string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}

	artist = meta.AlbumArtist()
	if artist == "" {
		artist = meta.Artist()
	}
	return Sanitize(artist), Sanitize(meta.Album())
}

// Sanitize makes a tag value safe as a single path element.
func Sanitize(s string) string {
	s = invalidPathChars.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")
	return s
}

// availableName appends " (n)" before the extension until the name is free.
func availableName(dest string) string {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames, falling back to copy and delete across filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to copy to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", dest, err)
	}
	return os.Remove(src)
}

// RemoveEmptyFolders deletes every empty directory under root, deepest
// first. root itself is kept.
func RemoveEmptyFolders(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Children sort after parents; delete in reverse.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return nil
}
