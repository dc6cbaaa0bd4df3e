// Package store persists per-user platform credentials and the append-only
// post log in a local SQLite database. Credential blobs are stored as the
// opaque ciphertext the surrounding application hands in; this package never
// interprets or decrypts them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id    TEXT NOT NULL,
	platform   TEXT NOT NULL,
	ciphertext TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, platform)
);

CREATE TABLE IF NOT EXISTS post_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dispatch_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	platform    TEXT NOT NULL,
	success     INTEGER NOT NULL,
	post_id     TEXT NOT NULL DEFAULT '',
	text_length INTEGER NOT NULL,
	has_images  INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_post_log_user ON post_log(user_id, created_at);
`

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and applies the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetCredentials returns every stored credential row for the user.
func (s *Store) GetCredentials(ctx context.Context, userID string) ([]fragout.CredentialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT platform, ciphertext FROM credentials WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var records []fragout.CredentialRecord
	for rows.Next() {
		var rec fragout.CredentialRecord
		if err := rows.Scan(&rec.Platform, &rec.Ciphertext); err != nil {
			return nil, fmt.Errorf("scan credentials: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return records, nil
}

// UpsertCredentials stores or replaces one platform's credential blob.
func (s *Store) UpsertCredentials(ctx context.Context, userID, platform, ciphertext string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, platform, ciphertext, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, platform)
		DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = CURRENT_TIMESTAMP`,
		userID, platform, ciphertext)
	if err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}

// DeleteCredentials removes one platform's credential blob.
func (s *Store) DeleteCredentials(ctx context.Context, userID, platform string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE user_id = ? AND platform = ?", userID, platform); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// ListPlatforms returns the platforms the user has credentials for.
func (s *Store) ListPlatforms(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT platform FROM credentials WHERE user_id = ? ORDER BY platform", userID)
	if err != nil {
		return nil, fmt.Errorf("query platforms: %w", err)
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// RecordPost appends one post-log row.
func (s *Store) RecordPost(ctx context.Context, entry fragout.LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_log (dispatch_id, user_id, platform, success, post_id, text_length, has_images, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DispatchID, entry.UserID, entry.Platform, entry.Success,
		entry.PostID, entry.TextLength, entry.HasImages, entry.Error, entry.At)
	if err != nil {
		return fmt.Errorf("record post: %w", err)
	}
	return nil
}

// RecentPosts returns the user's latest post-log rows, newest first.
func (s *Store) RecentPosts(ctx context.Context, userID string, limit int) ([]fragout.LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT dispatch_id, user_id, platform, success, post_id, text_length, has_images, error, created_at
		FROM post_log WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query post log: %w", err)
	}
	defer rows.Close()

	var entries []fragout.LogEntry
	for rows.Next() {
		var e fragout.LogEntry
		var at time.Time
		if err := rows.Scan(&e.DispatchID, &e.UserID, &e.Platform, &e.Success,
			&e.PostID, &e.TextLength, &e.HasImages, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scan post log: %w", err)
		}
		e.At = at
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
