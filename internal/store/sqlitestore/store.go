// Package sqlitestore keeps user profiles in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/rapport/backend/internal/model/profile"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// Store implements profile.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and schema at path if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get loads the profile for userID.
func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile %s: %w", userID, err)
	}
	return profile.Decode([]byte(data))
}

// Put upserts the profile for userID.
func (s *Store) Put(ctx context.Context, userID string, p *profile.Profile) error {
	data, err := profile.Encode(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		userID, string(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", userID, err)
	}
	return tx.Commit()
}

// Delete removes the profile for userID. Deleting a missing record is not
// an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

// Count reports how many profiles are stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return "sqlite" }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

var (
	_ profile.Store   = (*Store)(nil)
	_ profile.Counter = (*Store)(nil)
)
