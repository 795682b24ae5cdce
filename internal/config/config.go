// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package config loads and validates Cadenza configuration.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, /etc/cadenza/config.yaml, or CONFIG_PATH)
//  3. Environment variables
//
// The resulting Config struct is immutable by convention: it is built once at
// startup and passed into each component at construction. Components never
// read ambient global state mid-pass; a reconciliation pass sees exactly the
// configuration it was started with.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for Cadenza.
type Config struct {
	Navidrome    NavidromeConfig    `koanf:"navidrome"`
	Library      LibraryConfig      `koanf:"library"`
	Matcher      MatcherConfig      `koanf:"matcher"`
	Ledger       LedgerConfig       `koanf:"ledger"`
	Cleanup      CleanupConfig      `koanf:"cleanup"`
	Download     DownloadConfig     `koanf:"download"`
	Monitor      MonitorConfig      `koanf:"monitor"`
	ListenBrainz ListenBrainzConfig `koanf:"listenbrainz"`
	LastFM       LastFMConfig       `koanf:"lastfm"`
	LLM          LLMConfig          `koanf:"llm"`
	Spotify      SpotifyConfig      `koanf:"spotify"`
	MusicBrainz  MusicBrainzConfig  `koanf:"musicbrainz"`
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// NavidromeConfig holds the connection to the Subsonic-compatible library
// server and, optionally, a read-only replica of its record store.
//
// Environment Variables:
//   - NAVIDROME_URL: Server base URL (e.g. http://localhost:4533)
//   - NAVIDROME_USER / NAVIDROME_PASSWORD: primary account credentials
//   - NAVIDROME_ADMIN_USER / NAVIDROME_ADMIN_PASSWORD: optional administrative
//     account used by the degraded protection fallback
//   - NAVIDROME_DB_PATH: optional path to a local navidrome.db read replica;
//     when reachable it upgrades protection checks and path resolution
type NavidromeConfig struct {
	URL           string `koanf:"url" validate:"required,url"`
	User          string `koanf:"user" validate:"required"`
	Password      string `koanf:"password" validate:"required"`
	AdminUser     string `koanf:"admin_user"`
	AdminPassword string `koanf:"admin_password"`
	DBPath        string `koanf:"db_path"`

	// Client identification sent with every Subsonic request.
	ClientName string `koanf:"client_name"`
	APIVersion string `koanf:"api_version"`

	Timeout        time.Duration `koanf:"timeout"`
	RetryAttempts  int           `koanf:"retry_attempts" validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
}

// LibraryConfig describes the local view of the music library filesystem.
type LibraryConfig struct {
	// Path is the local mount of the music library root.
	Path string `koanf:"path" validate:"required"`

	// MountPrefixes are remote path prefixes that may precede relative paths
	// reported by the server and must be stripped before joining to Path.
	MountPrefixes []string `koanf:"mount_prefixes"`
}

// MatcherConfig exposes every scoring weight of the duplicate detector.
// Defaults mirror the empirically tuned constants of the original system;
// the album mismatch penalty in particular is a magic number worth validating
// against a corpus of known true/false pairs before changing.
type MatcherConfig struct {
	TitleExact           int `koanf:"title_exact"`
	TitleContains        int `koanf:"title_contains"`
	ArtistExact          int `koanf:"artist_exact"`
	ArtistContains       int `koanf:"artist_contains"`
	ArtistToken          int `koanf:"artist_token"`
	AlbumExact           int `koanf:"album_exact"`
	AlbumPartial         int `koanf:"album_partial"`
	AlbumMismatchPenalty int `koanf:"album_mismatch_penalty"`

	// AcceptThreshold is the minimum score for "already present".
	AcceptThreshold int `koanf:"accept_threshold"`

	// CandidatesPerQuery bounds each of the three search queries.
	CandidatesPerQuery int `koanf:"candidates_per_query" validate:"min=1,max=100"`
}

// LedgerConfig locates the per-user download-history ledgers.
type LedgerConfig struct {
	// Dir holds one JSON ledger per user: <dir>/<user>.json.
	Dir string `koanf:"dir" validate:"required"`
}

// CleanupConfig tunes the rating-driven cleanup pass.
type CleanupConfig struct {
	// ProtectRating is the minimum user rating that protects a track.
	ProtectRating int `koanf:"protect_rating" validate:"min=1,max=5"`

	// NegativeFeedbackRating is the rating at which negative feedback is
	// submitted to the originating source (0 disables).
	NegativeFeedbackRating int `koanf:"negative_feedback_rating" validate:"min=0,max=5"`

	// SubmitFeedback toggles feedback emission entirely.
	SubmitFeedback bool `koanf:"submit_feedback"`

	// RescanAfter triggers a library rescan after deletions.
	RescanAfter bool `koanf:"rescan_after"`
}

// DownloadConfig tunes the download pass.
type DownloadConfig struct {
	// TempDir receives files from the download engine before organizing.
	TempDir string `koanf:"temp_dir" validate:"required"`

	// Workers bounds per-track download parallelism within one pass.
	Workers int `koanf:"workers" validate:"min=1,max=32"`

	// Method selects the external download engine ("deemix", "streamrip").
	Method string `koanf:"method"`
}

// MonitorConfig tunes the monitored-playlist poller.
type MonitorConfig struct {
	Enabled bool `koanf:"enabled"`

	// Path of the monitored playlists JSON document.
	Path string `koanf:"path"`

	// CheckInterval is how often the poller wakes up to look for due entries.
	CheckInterval time.Duration `koanf:"check_interval"`

	// DefaultPollHours is the per-entry sync interval applied when an entry
	// does not specify one.
	DefaultPollHours int `koanf:"default_poll_hours" validate:"min=1"`
}

// ListenBrainzConfig holds the ListenBrainz discovery source.
type ListenBrainzConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Token   string `koanf:"token"`
	User    string `koanf:"user"`

	// PlaylistStatePath remembers the last-seen weekly playlist title so an
	// unchanged playlist skips the pass.
	PlaylistStatePath string `koanf:"playlist_state_path"`
}

// LastFMConfig holds the Last.fm discovery source.
type LastFMConfig struct {
	Enabled    bool   `koanf:"enabled"`
	APIKey     string `koanf:"api_key"`
	APISecret  string `koanf:"api_secret"`
	Username   string `koanf:"username"`
	SessionKey string `koanf:"session_key"`
}

// LLMConfig holds the LLM discovery source.
type LLMConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Provider string `koanf:"provider" validate:"omitempty,oneof=gemini openrouter"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
}

// SpotifyConfig holds client-credentials keys for reading public Spotify
// playlists. Both empty disables Spotify playlist extraction.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// MusicBrainzConfig throttles MusicBrainz lookups. The interval is a global
// serialized budget shared by all workers, not a per-worker allowance.
type MusicBrainzConfig struct {
	URL          string        `koanf:"url"`
	RateInterval time.Duration `koanf:"rate_interval"`
}

// ServerConfig holds the admin HTTP API settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// AuthToken guards mutating endpoints; empty disables auth (development).
	AuthToken string `koanf:"auth_token"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Matcher weights
// mirror the original tuning; everything else follows the deployment layout
// of the reference docker image.
func defaultConfig() *Config {
	return &Config{
		Navidrome: NavidromeConfig{
			URL:            "",
			User:           "",
			Password:       "",
			ClientName:     "cadenza",
			APIVersion:     "1.16.1",
			Timeout:        30 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
		},
		Library: LibraryConfig{
			Path:          "/music",
			MountPrefixes: []string{"/music/", "/data/music/"},
		},
		Matcher: MatcherConfig{
			TitleExact:           100,
			TitleContains:        60,
			ArtistExact:          100,
			ArtistContains:       60,
			ArtistToken:          30,
			AlbumExact:           50,
			AlbumPartial:         25,
			AlbumMismatchPenalty: -200,
			AcceptThreshold:      60,
			CandidatesPerQuery:   20,
		},
		Ledger: LedgerConfig{
			Dir: "/data/history",
		},
		Cleanup: CleanupConfig{
			ProtectRating:          4,
			NegativeFeedbackRating: 1,
			SubmitFeedback:         true,
			RescanAfter:            true,
		},
		Download: DownloadConfig{
			TempDir: "/data/tmp",
			Workers: 5,
			Method:  "streamrip",
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			Path:             "/data/monitored_playlists.json",
			CheckInterval:    5 * time.Minute,
			DefaultPollHours: 24,
		},
		ListenBrainz: ListenBrainzConfig{
			Enabled:           false,
			URL:               "https://api.listenbrainz.org",
			PlaylistStatePath: "/data/listenbrainz_playlist.state",
		},
		LastFM: LastFMConfig{
			Enabled: false,
		},
		LLM: LLMConfig{
			Enabled:  false,
			Provider: "gemini",
		},
		MusicBrainz: MusicBrainzConfig{
			URL:          "https://musicbrainz.org/ws/2",
			RateInterval: 1100 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4747,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks structural constraints via validator tags plus the few
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.validateCrossField()
}
