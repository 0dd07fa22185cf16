// ABOUTME: SQLite-backed persistence for clip metadata
// ABOUTME: Audio bytes stay on disk in their source files, only paths persist
package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists clip metadata in a SQLite database
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the clip database at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS clips (
    clip_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    category TEXT NOT NULL,
    added_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clips_category ON clips(category);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Insert stores one clip row
func (s *Store) Insert(ctx context.Context, clip *Clip) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clips(clip_id, name, path, category, added_at)
		 VALUES(?, ?, ?, ?, ?)`,
		clip.ID, clip.Name, clip.Path, clip.Category, clip.AddedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Remove deletes one clip row
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM clips WHERE clip_id = ?`, id)
	return err
}

// List returns all stored clips
func (s *Store) List(ctx context.Context) ([]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clip_id, name, path, category, added_at FROM clips ORDER BY added_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		var c Clip
		var added string
		if err := rows.Scan(&c.ID, &c.Name, &c.Path, &c.Category, &added); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, added); err == nil {
			c.AddedAt = ts
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}
