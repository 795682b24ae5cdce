// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cadenza/config.yaml",
	"/etc/cadenza/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration: defaults, then optional YAML file, then
// environment variables. A .env file in the working directory is folded into
// the environment first, if present.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables have the highest priority.
	// NAVIDROME_URL -> navidrome.url, MATCHER_ALBUM_MISMATCH_PENALTY ->
	// matcher.album_mismatch_penalty, and so on per envTransform.
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sectionPrefixes maps the leading ENV token(s) to a config section. Keys of
// a section may themselves contain underscores, so only the section prefix is
// converted to a dot.
var sectionPrefixes = []struct {
	env  string
	path string
}{
	{"NAVIDROME_", "navidrome."},
	{"LIBRARY_", "library."},
	{"MATCHER_", "matcher."},
	{"LEDGER_", "ledger."},
	{"CLEANUP_", "cleanup."},
	{"DOWNLOAD_", "download."},
	{"MONITOR_", "monitor."},
	{"LISTENBRAINZ_", "listenbrainz."},
	{"LASTFM_", "lastfm."},
	{"LLM_", "llm."},
	{"SPOTIFY_", "spotify."},
	{"MUSICBRAINZ_", "musicbrainz."},
	{"SERVER_", "server."},
	{"LOG_", "logging."},
}

// envTransform maps an environment variable name to its koanf path, or ""
// to ignore the variable.
func envTransform(s string) string {
	for _, p := range sectionPrefixes {
		if strings.HasPrefix(s, p.env) {
			return p.path + strings.ToLower(strings.TrimPrefix(s, p.env))
		}
	}
	return ""
}

// sliceConfigPaths are fields that accept comma-separated env values.
var sliceConfigPaths = []string{
	"library.mount_prefixes",
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields; env vars arrive as plain strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
