// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package protect decides whether a downloaded track has earned its place
// in the library. Any positive signal from any account protects: a rating
// at or above the threshold, a star, or membership in a playlist that the
// engine itself does not manage.
package protect

import (
	"context"
	"fmt"

	"github.com/cadenza-music/cadenza/internal/introspect"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// Result explains a protection decision. Reasons are ordered: ratings
// first, then stars, then playlist memberships.
type Result struct {
	Protected bool
	Reasons   []string
	MaxRating int
}

// Evaluator applies the protection rules over an introspector's signals.
type Evaluator struct {
	intro introspect.LibraryIntrospector

	// protectRating is the minimum rating that protects (default 4).
	protectRating int

	// managed holds the playlist names the engine itself maintains;
	// membership in those never protects.
	managed map[string]bool
}

// NewEvaluator builds an evaluator. managedPlaylists lists the engine's own
// playlist names, excluded from the membership signal.
func NewEvaluator(intro introspect.LibraryIntrospector, protectRating int, managedPlaylists []string) *Evaluator {
	managed := make(map[string]bool, len(managedPlaylists))
	for _, name := range managedPlaylists {
		managed[name] = true
	}
	if protectRating <= 0 {
		protectRating = 4
	}
	return &Evaluator{intro: intro, protectRating: protectRating, managed: managed}
}

// Evaluate gathers cross-account signals for the track and applies the
// protection rules.
func (e *Evaluator) Evaluate(ctx context.Context, trackID string) (*Result, error) {
	signals, err := e.intro.TrackSignals(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to gather signals for %s: %w", trackID, err)
	}

	result := &Result{MaxRating: signals.MaxRating()}

	for _, r := range signals.Ratings {
		if r.Value >= e.protectRating {
			result.Reasons = append(result.Reasons, fmt.Sprintf("rated %d/5 by %s", r.Value, r.User))
		}
	}
	for _, user := range signals.StarredBy {
		result.Reasons = append(result.Reasons, fmt.Sprintf("starred by %s", user))
	}
	for _, name := range signals.Playlists {
		if e.managed[name] {
			continue
		}
		result.Reasons = append(result.Reasons, fmt.Sprintf("in playlist %q", name))
	}

	result.Protected = len(result.Reasons) > 0

	decision := "release"
	if result.Protected {
		decision = "protect"
	}
	metrics.ProtectionDecisions.WithLabelValues(decision, e.intro.Mode()).Inc()
	logging.Debug().
		Str("track_id", trackID).
		Bool("protected", result.Protected).
		Strs("reasons", result.Reasons).
		Msg("Protection evaluated")

	return result, nil
}
