// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package events

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/cadenza-music/cadenza/internal/logging"
	"github.com/cadenza-music/cadenza/internal/metrics"
)

// trackOutcomes maps track topics to the outcome label they record.
var trackOutcomes = map[string]string{
	TopicTrackDownloaded: "downloaded",
	TopicTrackSkipped:    "skipped",
	TopicTrackDeleted:    "deleted",
	TopicTrackProtected:  "protected",
}

// NewRouter builds the message router that turns events into metrics and
// summary logs. The caller runs it (typically under the supervisor) and
// closes it on shutdown.
func NewRouter(bus *Bus) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 10 * time.Second,
	}, bus.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	for topic, outcome := range trackOutcomes {
		router.AddConsumerHandler(
			"metrics_"+topic,
			topic,
			bus.Subscriber(),
			trackHandler(outcome),
		)
	}
	router.AddConsumerHandler(
		"metrics_"+TopicPassCompleted,
		TopicPassCompleted,
		bus.Subscriber(),
		passHandler,
	)

	return router, nil
}

func trackHandler(outcome string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ev, err := Decode[TrackEvent](msg)
		if err != nil {
			logging.Warn().Err(err).Msg("Dropping malformed track event")
			return nil
		}
		metrics.TracksProcessed.WithLabelValues(ev.Source, outcome).Inc()
		return nil
	}
}

func passHandler(msg *message.Message) error {
	ev, err := Decode[PassEvent](msg)
	if err != nil {
		logging.Warn().Err(err).Msg("Dropping malformed pass event")
		return nil
	}

	result := "success"
	if !ev.Succeeded {
		result = "failure"
	}
	metrics.PassesTotal.WithLabelValues(ev.Kind, result).Inc()
	metrics.PassDuration.WithLabelValues(ev.Kind).Observe(ev.Duration.Seconds())

	logging.Info().
		Str("user", ev.User).
		Str("kind", ev.Kind).
		Bool("succeeded", ev.Succeeded).
		Int("downloaded", ev.Downloaded).
		Int("skipped", ev.Skipped).
		Int("deleted", ev.Deleted).
		Int("protected", ev.Protected).
		Int("errors", ev.Errors).
		Dur("duration", ev.Duration).
		Msg("Pass completed")
	return nil
}
