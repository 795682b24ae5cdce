// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package metrics exposes Prometheus instrumentation for:
//   - Reconciliation pass outcomes (downloaded/skipped/failed/deleted/protected)
//   - Matcher accept/reject decisions
//   - Subsonic client request latency and errors
//   - Circuit breaker state
//   - Ledger sizes and monitored playlist syncs
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation pass metrics

	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_passes_total",
			Help: "Total reconciliation passes by kind and result",
		},
		[]string{"kind", "result"}, // kind: download|cleanup, result: completed|failed|rejected
	)

	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadenza_pass_duration_seconds",
			Help:    "Duration of reconciliation passes in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)

	TracksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_tracks_processed_total",
			Help: "Per-track outcomes within reconciliation passes",
		},
		[]string{"kind", "outcome"}, // outcome: downloaded|skipped|failed|deleted|protected|missing|retained
	)

	// Matcher metrics

	MatcherDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_matcher_decisions_total",
			Help: "Duplicate-detection decisions",
		},
		[]string{"decision"}, // matched|no_match
	)

	// Subsonic client metrics

	SubsonicRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadenza_subsonic_request_duration_seconds",
			Help:    "Duration of Subsonic API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SubsonicRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_subsonic_request_errors_total",
			Help: "Subsonic API request errors by endpoint and class",
		},
		[]string{"endpoint", "class"}, // class: transient|rejected|decode
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadenza_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // success|failure|rejected
	)

	// Ledger metrics

	LedgerEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadenza_ledger_entries",
			Help: "Download-history ledger entries by user and source",
		},
		[]string{"user", "source"},
	)

	// Protection evaluator metrics

	ProtectionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_protection_decisions_total",
			Help: "Protection evaluations by decision and introspector mode",
		},
		[]string{"decision", "mode"}, // decision: protected|released, mode: direct|api
	)

	// Monitored playlist metrics

	MonitoredSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_monitored_syncs_total",
			Help: "Monitored playlist sync attempts by result",
		},
		[]string{"result"}, // ok|error
	)

	// Discovery source metrics

	SourceRecommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadenza_source_recommendations_total",
			Help: "Recommendation records fetched per source",
		},
		[]string{"source"},
	)
)
