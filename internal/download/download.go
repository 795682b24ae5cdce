// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package download shells out to an external download engine. The engine
// is expected to be installed alongside Cadenza and to drop its output
// into the directory it is pointed at; everything after that (tagging,
// organizing, matching) happens elsewhere.
package download

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/sources"
)

// Fetcher retrieves one recommended track into destDir.
type Fetcher interface {
	Fetch(ctx context.Context, rec sources.Recommendation, destDir string) error
}

// Command runs a downloader binary per track. Supported methods are
// "streamrip" and "deemix"; both take a search query and an output
// directory.
type Command struct {
	method string

	// runner is swapped out in tests.
	runner func(ctx context.Context, name string, args ...string) error
}

// NewCommand builds the fetcher for the configured method.
func NewCommand(cfg config.DownloadConfig) (*Command, error) {
	switch cfg.Method {
	case "streamrip", "deemix":
	default:
		return nil, fmt.Errorf("unsupported download method %q", cfg.Method)
	}
	return &Command{method: cfg.Method, runner: runCommand}, nil
}

// Fetch downloads rec into destDir using the configured engine.
func (c *Command) Fetch(ctx context.Context, rec sources.Recommendation, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	query := strings.TrimSpace(rec.Artist + " " + rec.Title)
	var name string
	var args []string
	switch c.method {
	case "streamrip":
		name = "rip"
		args = []string{"--quiet", "--folder", destDir, "search", "--first", "deezer", "track", query}
	case "deemix":
		name = "deemix"
		args = []string{"--portable", "--path", destDir, "search:" + query}
	}

	logging.Debug().
		Str("method", c.method).
		Str("artist", rec.Artist).
		Str("title", rec.Title).
		Msg("Fetching track")

	if err := c.runner(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to fetch %q via %s: %w", query, c.method, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
