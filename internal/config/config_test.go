// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Navidrome.URL = "http://localhost:4533"
	cfg.Navidrome.User = "alice"
	cfg.Navidrome.Password = "secret"
	return cfg
}

func TestDefaultConfigMatcherWeights(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Matcher.AlbumMismatchPenalty != -200 {
		t.Errorf("album mismatch penalty = %d, want -200", cfg.Matcher.AlbumMismatchPenalty)
	}
	if cfg.Matcher.AcceptThreshold != 60 {
		t.Errorf("accept threshold = %d, want 60", cfg.Matcher.AcceptThreshold)
	}
	if cfg.Matcher.TitleExact != 100 || cfg.Matcher.ArtistExact != 100 {
		t.Error("exact-match weights should default to 100")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.Navidrome.URL = "" }, true},
		{"bad url", func(c *Config) { c.Navidrome.URL = "not-a-url" }, true},
		{"missing user", func(c *Config) { c.Navidrome.User = "" }, true},
		{"positive penalty", func(c *Config) { c.Matcher.AlbumMismatchPenalty = 10 }, true},
		{"zero threshold", func(c *Config) { c.Matcher.AcceptThreshold = 0 }, true},
		{"lb enabled without token", func(c *Config) { c.ListenBrainz.Enabled = true }, true},
		{"lb enabled with token", func(c *Config) {
			c.ListenBrainz.Enabled = true
			c.ListenBrainz.Token = "tok"
		}, false},
		{"admin user without password", func(c *Config) { c.Navidrome.AdminUser = "admin" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NAVIDROME_URL", "navidrome.url"},
		{"NAVIDROME_ADMIN_USER", "navidrome.admin_user"},
		{"MATCHER_ALBUM_MISMATCH_PENALTY", "matcher.album_mismatch_penalty"},
		{"LOG_LEVEL", "logging.level"},
		{"MONITOR_CHECK_INTERVAL", "monitor.check_interval"},
		{"UNRELATED_VAR", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
navidrome:
  url: http://nd.example:4533
  user: alice
  password: filepass
matcher:
  accept_threshold: 80
ledger:
  dir: ` + dir + `
download:
  temp_dir: ` + dir + `
library:
  path: ` + dir + `
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("NAVIDROME_PASSWORD", "envpass")
	t.Setenv("LIBRARY_MOUNT_PREFIXES", "/a/, /b/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Navidrome.URL != "http://nd.example:4533" {
		t.Errorf("url = %q, want file value", cfg.Navidrome.URL)
	}
	if cfg.Navidrome.Password != "envpass" {
		t.Errorf("password = %q, env should win over file", cfg.Navidrome.Password)
	}
	if cfg.Matcher.AcceptThreshold != 80 {
		t.Errorf("accept threshold = %d, want file override 80", cfg.Matcher.AcceptThreshold)
	}
	if len(cfg.Library.MountPrefixes) != 2 || cfg.Library.MountPrefixes[0] != "/a/" {
		t.Errorf("mount prefixes = %v, want [/a/ /b/]", cfg.Library.MountPrefixes)
	}
	// Untouched defaults survive layering.
	if cfg.Matcher.AlbumMismatchPenalty != -200 {
		t.Errorf("penalty = %d, default should survive", cfg.Matcher.AlbumMismatchPenalty)
	}
}
