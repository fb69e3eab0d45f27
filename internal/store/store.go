// Package store is the Recording Metadata Store: a shared SQLite
// database holding recording_sessions, frames, recording_mp4 and
// recording_hls, each camera-discriminated, on the modernc.org/sqlite
// driver with WAL mode and a migrations-as-string-slice style tolerant
// of re-applied ALTER TABLEs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Sentinel errors callers branch on with errors.Is.
var (
	ErrSessionConflict = errors.New("store: a session is already active for this camera")
	ErrNotFound        = errors.New("store: not found")
)

// Store wraps the shared recording metadata database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// enables WAL mode and foreign keys.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate runs every migration in order, ignoring "duplicate column"
// errors so repeated ALTER TABLE statements are safe across restarts.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS recording_sessions (
			session_id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			reason TEXT NOT NULL DEFAULT '',
			keep_flag INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_camera ON recording_sessions(camera_id, started_at)`,
		// Partial uniqueness is enforced in application code (sqlite's
		// partial indexes would work too, but CreateSession already
		// checks for an active session and inserts in one transaction).
		`CREATE TABLE IF NOT EXISTS frames (
			camera_id TEXT NOT NULL,
			session_id INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			size INTEGER NOT NULL,
			blob BLOB NOT NULL,
			PRIMARY KEY (camera_id, timestamp_ms),
			FOREIGN KEY (session_id) REFERENCES recording_sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id, timestamp_ms)`,
		`CREATE TABLE IF NOT EXISTS recording_mp4 (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id TEXT NOT NULL,
			session_id INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL,
			storage_kind TEXT NOT NULL,
			location TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES recording_sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mp4_camera_time ON recording_mp4(camera_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS recording_hls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id TEXT NOT NULL,
			session_id INTEGER NOT NULL,
			segment_index INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			duration_seconds REAL NOT NULL,
			size_bytes INTEGER NOT NULL,
			payload_location TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES recording_sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hls_camera_time ON recording_hls(camera_id, start_time)`,
		// Historical column additions are appended here, never rewritten
		// in place.
		`ALTER TABLE recording_sessions ADD COLUMN keep_flag INTEGER NOT NULL DEFAULT 0`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	return nil
}
