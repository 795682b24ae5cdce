// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package config

import (
	"errors"
	"fmt"
)

// validateCrossField enforces rules that span multiple fields.
func (c *Config) validateCrossField() error {
	var errs []error

	if c.Matcher.AcceptThreshold <= 0 {
		errs = append(errs, errors.New("matcher.accept_threshold must be positive"))
	}
	if c.Matcher.AlbumMismatchPenalty > 0 {
		errs = append(errs, errors.New("matcher.album_mismatch_penalty must be zero or negative"))
	}
	if c.ListenBrainz.Enabled && c.ListenBrainz.Token == "" {
		errs = append(errs, errors.New("listenbrainz.token is required when listenbrainz.enabled"))
	}
	if c.LastFM.Enabled && c.LastFM.APIKey == "" {
		errs = append(errs, errors.New("lastfm.api_key is required when lastfm.enabled"))
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required when llm.enabled"))
	}
	if c.Monitor.Enabled && c.Monitor.Path == "" {
		errs = append(errs, errors.New("monitor.path is required when monitor.enabled"))
	}
	if c.Navidrome.AdminUser != "" && c.Navidrome.AdminPassword == "" {
		errs = append(errs, errors.New("navidrome.admin_password is required when navidrome.admin_user is set"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}
