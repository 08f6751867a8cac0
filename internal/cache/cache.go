// Package cache keeps a last-known-good snapshot of public profiles in a
// local SQLite database so the public page stays renderable while the
// data service is unreachable. The cache is strictly a fallback: reads
// from the service always win and refresh the snapshot.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"linkloft/internal/model"

	_ "modernc.org/sqlite"
)

// ErrMiss is returned when no snapshot is stored for a user.
var ErrMiss = errors.New("no cached snapshot")

// Snapshot is the cached public view of one user.
type Snapshot struct {
	Profile  model.Profile `json:"profile"`
	Links    []model.Link  `json:"links"`
	CachedAt time.Time     `json:"cachedAt"`
}

// Store is a snapshot cache backed by one SQLite file.
type Store struct {
	// Dir is the directory holding public.sqlite.
	Dir string
}

func (s Store) dbPath() string {
	return filepath.Join(filepath.Clean(s.Dir), "public.sqlite")
}

func (s Store) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Clean(s.Dir), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.dbPath())
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS public_snapshots (
  user_id   TEXT PRIMARY KEY,
  snapshot  TEXT NOT NULL,
  cached_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Put stores or replaces the snapshot for a user.
func (s Store) Put(ctx context.Context, userID string, profile model.Profile, links []model.Link) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	snap := Snapshot{Profile: profile, Links: links, CachedAt: time.Now().UTC()}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO public_snapshots(user_id, snapshot, cached_at) VALUES(?, ?, ?)`,
		userID, string(b), snap.CachedAt.Format(time.RFC3339Nano))
	return err
}

// Get returns the stored snapshot for a user, or ErrMiss.
func (s Store) Get(ctx context.Context, userID string) (Snapshot, error) {
	if _, err := os.Stat(s.dbPath()); errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrMiss
	}
	db, err := s.open(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer db.Close()

	var raw string
	err = db.QueryRowContext(ctx,
		`SELECT snapshot FROM public_snapshots WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrMiss
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Delete drops a user's snapshot. Used when a public read reports the
// user gone, so the cache cannot resurrect deleted profiles.
func (s Store) Delete(ctx context.Context, userID string) error {
	if _, err := os.Stat(s.dbPath()); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, `DELETE FROM public_snapshots WHERE user_id = ?`, userID)
	return err
}
