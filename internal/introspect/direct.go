// Cadenza - Library Reconciliation for Subsonic Music Servers
// Copyright 2026 The Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-music/cadenza

package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/cadenza-music/cadenza/internal/logging"
)

// DirectStore reads the Navidrome SQLite database directly. It opens the
// file read-only; the engine never writes to the server's record store.
type DirectStore struct {
	db *sql.DB
}

// OpenDirect opens the record store at dbPath read-only and probes the
// schema. An unreadable file or an unexpected schema is returned as an
// error so the caller can fall back to APIOnly.
func OpenDirect(ctx context.Context, dbPath string) (*DirectStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", url.PathEscape(dbPath))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	// The server owns this database; one read connection is plenty and
	// avoids lock contention with its writer.
	db.SetMaxOpenConns(1)

	s := &DirectStore{db: db}
	if err := s.probe(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("db_path", dbPath).Msg("Record store opened for direct introspection")
	return s, nil
}

// probe verifies the tables the queries depend on exist.
func (s *DirectStore) probe(ctx context.Context) error {
	required := []string{"media_file", "annotation", "playlist", "playlist_tracks", "user"}
	for _, table := range required {
		var name string
		err := s.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record store missing table %q", table)
		}
		if err != nil {
			return fmt.Errorf("failed to probe record store: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *DirectStore) Close() error { return s.db.Close() }

// Mode implements LibraryIntrospector.
func (s *DirectStore) Mode() string { return "direct" }

// TrackSignals implements LibraryIntrospector by joining the annotation and
// playlist tables across all accounts.
func (s *DirectStore) TrackSignals(ctx context.Context, trackID string) (*Signals, error) {
	signals := &Signals{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_name, a.rating, a.starred
		FROM annotation a
		JOIN user u ON u.id = a.user_id
		WHERE a.item_id = ? AND a.item_type = 'media_file'`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			user    string
			rating  sql.NullInt64
			starred sql.NullBool
		)
		if err := rows.Scan(&user, &rating, &starred); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		if rating.Valid && rating.Int64 > 0 {
			signals.Ratings = append(signals.Ratings, Rating{User: user, Value: int(rating.Int64)})
		}
		if starred.Valid && starred.Bool {
			signals.StarredBy = append(signals.StarredBy, user)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}

	plRows, err := s.db.QueryContext(ctx, `
		SELECT p.name
		FROM playlist p
		JOIN playlist_tracks pt ON pt.playlist_id = p.id
		WHERE pt.media_file_id = ?`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist memberships: %w", err)
	}
	defer plRows.Close()

	for plRows.Next() {
		var name string
		if err := plRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan playlist name: %w", err)
		}
		signals.Playlists = append(signals.Playlists, name)
	}
	if err := plRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist memberships: %w", err)
	}

	return signals, nil
}

// StoredPath implements LibraryIntrospector.
func (s *DirectStore) StoredPath(ctx context.Context, trackID string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM media_file WHERE id = ?`, trackID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query stored path: %w", err)
	}
	return path, nil
}

// FindByBasename implements LibraryIntrospector. The match is on the final
// path element only.
func (s *DirectStore) FindByBasename(ctx context.Context, base string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM media_file WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		base, "%/"+escapeLike(base),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query by basename: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// escapeLike neutralizes LIKE wildcards in a literal file name; the query
// declares backslash as its ESCAPE character.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
