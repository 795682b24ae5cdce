// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package main is the entry point for the Cadenza server.
//
// Cadenza reconciles a Subsonic-compatible music library with external
// discovery sources. It downloads recommended tracks on a trial basis,
// watches how every account engages with them, and cleans up the ones
// nobody kept.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 layered load (defaults, YAML, environment)
//  2. Subsonic client: salted-token auth behind a circuit breaker
//  3. Introspection: direct read-only record store when reachable,
//     API-only fallback otherwise
//  4. Discovery sources: ListenBrainz, Last.fm, LLM, playlist extraction
//  5. Reconciliation engine: download and cleanup passes
//  6. Supervisor tree: event router, monitored playlist poller, HTTP API
//
// Configuration comes from environment variables or a config.yaml file.
// The minimum viable setup:
//
//	export NAVIDROME_URL=http://localhost:4533
//	export NAVIDROME_USER=admin
//	export NAVIDROME_PASSWORD=secret
//	export LIBRARY_PATH=/music
//	./cadenza
//
// Graceful shutdown on SIGINT and SIGTERM: in-flight HTTP requests get a
// drain window, supervised services stop, and the event bus closes last.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadenza-music/cadenza/internal/api"
	"github.com/cadenza-music/cadenza/internal/config"
	"github.com/cadenza-music/cadenza/internal/download"
	"github.com/cadenza-music/cadenza/internal/events"
	"github.com/cadenza-music/cadenza/internal/introspect"
	"github.com/cadenza-music/cadenza/internal/library"
	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/monitor"
	"github.com/cadenza-music/cadenza/internal/organize"
	"github.com/cadenza-music/cadenza/internal/pathresolve"
	"github.com/cadenza-music/cadenza/internal/playlist"
	"github.com/cadenza-music/cadenza/internal/protect"
	"github.com/cadenza-music/cadenza/internal/reconcile"
	"github.com/cadenza-music/cadenza/internal/sources"
	"github.com/cadenza-music/cadenza/internal/subsonic"
	"github.com/cadenza-music/cadenza/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("navidrome_url", cfg.Navidrome.URL).
		Str("library_path", cfg.Library.Path).
		Str("ledger_dir", cfg.Ledger.Dir).
		Msg("Starting Cadenza")

	client := subsonic.NewClient(&cfg.Navidrome)
	apiClient := subsonic.NewBreakerClient(client)
	if err := apiClient.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Library server unreachable at startup (will retry)")
	}

	intro := buildIntrospector(cfg, client, apiClient)
	if closer, ok := intro.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing record store")
			}
		}()
	}

	fetcher, err := download.NewCommand(cfg.Download)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid download configuration")
	}

	providers, feedback, lb := buildSources(cfg)
	extractor := sources.NewPlaylistExtractor(cfg.Spotify)

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	router, err := events.NewRouter(bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build event router")
	}

	engine := reconcile.New(reconcile.Options{
		API:       apiClient,
		Matcher:   library.NewMatcher(apiClient, cfg.Matcher),
		Resolver:  pathresolve.New(cfg.Library, intro),
		Protector: protect.NewEvaluator(intro, cfg.Cleanup.ProtectRating, sources.ManagedPlaylists()),
		Playlists: playlist.NewSynchronizer(apiClient),
		Organizer: organize.New(cfg.Library.Path),
		Fetcher:   fetcher,
		Bus:       bus,
		Providers: providers,
		Feedback:  feedback,
		LedgerDir: cfg.Ledger.Dir,
		Download:  cfg.Download,
		Cleanup:   cfg.Cleanup,
	})

	monitored := monitor.NewStore(cfg.Monitor.Path)

	handlerOpts := api.HandlersOptions{
		Engine:      engine,
		Extractor:   extractor,
		Monitored:   monitored,
		LedgerDir:   cfg.Ledger.Dir,
		DefaultUser: cfg.Navidrome.User,
		Ready:       apiClient.Ping,
		Rater:       apiClient,
	}
	if lb != nil {
		handlerOpts.Releases = lb
	}
	handlers := api.NewHandlers(handlerOpts)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewServer(cfg.Server, handlers).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewRouterService(router))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, 10*time.Second))

	if cfg.Monitor.Enabled {
		tree.AddSyncService(monitor.NewPoller(monitor.PollerOptions{
			Store:     monitored,
			Extractor: extractor,
			Sync: func(ctx context.Context, user string, recs []sources.Recommendation) (int, int, error) {
				sum, err := engine.Download(ctx, user, recs)
				if err != nil {
					return 0, 0, err
				}
				return sum.Downloaded, sum.Errors, nil
			},
			Register: engine.RegisterManagedPlaylist,
			Config:   cfg.Monitor,
		}))
	} else {
		logging.Info().Msg("Monitored playlist poller disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", httpServer.Addr).
		Msg("Supervisor tree starting")

	if err := <-tree.ServeBackground(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}
	logging.Info().Msg("Shutdown complete")
}

// buildIntrospector prefers the direct record store and falls back to the
// API-only degraded mode when the database is absent or unreadable.
func buildIntrospector(cfg *config.Config, client *subsonic.Client, primary subsonic.API) introspect.LibraryIntrospector {
	if cfg.Navidrome.DBPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := introspect.OpenDirect(ctx, cfg.Navidrome.DBPath)
		if err == nil {
			logging.Info().Str("db_path", cfg.Navidrome.DBPath).Msg("Record store opened read-only")
			return store
		}
		logging.Warn().
			Err(err).
			Str("db_path", cfg.Navidrome.DBPath).
			Msg("Record store unreachable, protection checks run in degraded API mode")
	}

	clients := map[string]subsonic.API{cfg.Navidrome.User: primary}
	if cfg.Navidrome.AdminUser != "" && cfg.Navidrome.AdminUser != cfg.Navidrome.User {
		admin := client.WithAccount(cfg.Navidrome.AdminUser, cfg.Navidrome.AdminPassword)
		clients[cfg.Navidrome.AdminUser] = subsonic.NewBreakerClient(admin)
	}
	return introspect.NewAPIOnly(clients)
}

// buildSources assembles the enabled discovery providers and the feedback
// submitters keyed by source. The ListenBrainz client is returned
// separately; the API surfaces its fresh-releases feed when present.
func buildSources(cfg *config.Config) ([]sources.Provider, map[sources.Source]sources.FeedbackSubmitter, *sources.ListenBrainz) {
	var providers []sources.Provider
	feedback := make(map[sources.Source]sources.FeedbackSubmitter)

	var lb *sources.ListenBrainz
	if cfg.ListenBrainz.Enabled {
		lb = sources.NewListenBrainz(cfg.ListenBrainz, sources.NewMusicBrainz(cfg.MusicBrainz))
		providers = append(providers, lb)
		feedback[sources.SourceListenBrainz] = lb
	}
	if cfg.LastFM.Enabled {
		providers = append(providers, sources.NewLastFM(cfg.LastFM))
	}
	if cfg.LLM.Enabled {
		if lb == nil {
			logging.Warn().Msg("LLM recommendations need ListenBrainz scrobbles, disabling LLM source")
		} else {
			providers = append(providers, sources.NewLLM(cfg.LLM, lb))
		}
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p.Source())
	}
	logging.Info().Strs("sources", names).Msg("Discovery sources configured")
	return providers, feedback, lb
}
