// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

// Package normalize turns raw artist/title/album strings into a canonical
// comparable form. The same function is applied to both the query and every
// candidate so comparisons are symmetric.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// "feat.", "ft.", "featuring" or "with" and everything after it.
	featClause = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring|with)\s+.*$`)

	// First parenthesized or bracketed suffix, e.g. "(Radio Edit)", "[Live]".
	parenSuffix = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)

	whitespace = regexp.MustCompile(`\s+`)

	artistSplit = regexp.MustCompile(`[,&\s]+`)
)

// String canonicalizes s for fuzzy comparison: lowercase, one trailing period
// stripped, trailing feat./ft./featuring/with clause removed, the first
// parenthetical or bracketed qualifier removed, internal whitespace collapsed,
// surrounding whitespace trimmed. Pure.
func String(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	s = featClause.ReplaceAllString(s, "")
	if loc := parenSuffix.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + " " + s[loc[1]:]
	}
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Key returns the canonical (artist, title) identity used for ledger upserts
// and de-duplication.
func Key(artist, title string) string {
	return String(artist) + "\x00" + String(title)
}

// ArtistTokens splits a normalized multi-artist string on commas, ampersands
// and whitespace, dropping empty tokens. Input should already be normalized.
func ArtistTokens(s string) []string {
	parts := artistSplit.Split(s, -1)
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
