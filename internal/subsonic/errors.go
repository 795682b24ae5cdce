// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package subsonic

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an authoritative "does not exist" answer from the server.
// Callers treat it as a normal outcome, never as a pass-aborting failure.
var ErrNotFound = errors.New("subsonic: not found")

// ErrRejected marks an authoritative rejection (bad auth, malformed request).
// It is never retried.
var ErrRejected = errors.New("subsonic: request rejected")

// requestError wraps a failure with its endpoint and retryability class.
type requestError struct {
	endpoint  string
	transient bool
	err       error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("subsonic %s: %v", e.endpoint, e.err)
}

func (e *requestError) Unwrap() error { return e.err }

// IsTransient reports whether err represents a retryable transport-level
// failure (connection error, timeout, 5xx, 429) as opposed to an
// authoritative rejection.
func IsTransient(err error) bool {
	var re *requestError
	if errors.As(err, &re) {
		return re.transient
	}
	return false
}

// apiErrorToGo converts a Subsonic error payload to the sentinel taxonomy.
func apiErrorToGo(endpoint string, e *apiError) error {
	switch e.Code {
	case codeNotFound:
		return fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	case codeWrongCreds, codeNotAuthorized, codeParamMissing:
		return fmt.Errorf("%s: %w: %s (code %d)", endpoint, ErrRejected, e.Message, e.Code)
	default:
		return fmt.Errorf("%s: %w: %s (code %d)", endpoint, ErrRejected, e.Message, e.Code)
	}
}
