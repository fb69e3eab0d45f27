package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session is a recording session: at most one active (ended_at null)
// row exists per camera at any instant.
type Session struct {
	ID        int64
	CameraID  string
	StartedAt time.Time
	EndedAt   *time.Time
	Reason    string
	KeepFlag  bool
}

// Active reports whether the session has no end time yet.
func (s Session) Active() bool {
	return s.EndedAt == nil
}

// CreateSession starts a new session for a camera, enforcing the
// at-most-one-active-per-camera invariant. The implicit continuous
// session (reason "continuous") is bookkeeping, not a real session, and
// is excluded from the conflict check: it never blocks a real start.
func (s *Store) CreateSession(cameraID, reason string) (Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Session{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow(`SELECT session_id FROM recording_sessions WHERE camera_id = ? AND ended_at IS NULL AND reason != 'continuous'`, cameraID).Scan(&existing)
	if err == nil {
		return Session{}, ErrSessionConflict
	}
	if err != sql.ErrNoRows {
		return Session{}, fmt.Errorf("store: check active session: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(`INSERT INTO recording_sessions (camera_id, started_at, ended_at, reason, keep_flag) VALUES (?, ?, NULL, ?, 0)`,
		cameraID, now.UnixMilli(), reason)
	if err != nil {
		return Session{}, fmt.Errorf("store: insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("store: session id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("store: commit: %w", err)
	}
	return Session{ID: id, CameraID: cameraID, StartedAt: now, Reason: reason}, nil
}

// StopSession ends an active session.
func (s *Store) StopSession(sessionID int64) error {
	now := time.Now().UTC().UnixMilli()
	res, err := s.db.Exec(`UPDATE recording_sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`, now, sessionID)
	if err != nil {
		return fmt.Errorf("store: stop session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveSession returns the camera's currently active, explicitly
// started session, if any. The lazily-created implicit continuous
// session never satisfies this lookup even while it has no end time.
func (s *Store) ActiveSession(cameraID string) (*Session, error) {
	row := s.db.QueryRow(`SELECT session_id, camera_id, started_at, ended_at, reason, keep_flag
		FROM recording_sessions WHERE camera_id = ? AND ended_at IS NULL AND reason != 'continuous'`, cameraID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active session: %w", err)
	}
	return &sess, nil
}

// ImplicitSession returns the camera's always-present "continuous"
// session, creating it lazily on first use.
func (s *Store) ImplicitSession(cameraID string) (Session, error) {
	row := s.db.QueryRow(`SELECT session_id, camera_id, started_at, ended_at, reason, keep_flag
		FROM recording_sessions WHERE camera_id = ? AND reason = 'continuous' ORDER BY session_id DESC LIMIT 1`, cameraID)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return Session{}, fmt.Errorf("store: implicit session: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO recording_sessions (camera_id, started_at, ended_at, reason, keep_flag) VALUES (?, ?, NULL, 'continuous', 0)`,
		cameraID, now.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("store: create implicit session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("store: implicit session id: %w", err)
	}
	return Session{ID: id, CameraID: cameraID, StartedAt: now, Reason: "continuous"}, nil
}

// SetKeep marks a session exempt from (or eligible for) retention
// deletion.
func (s *Store) SetKeep(sessionID int64, keep bool) error {
	v := 0
	if keep {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE recording_sessions SET keep_flag = ? WHERE session_id = ?`, v, sessionID)
	if err != nil {
		return fmt.Errorf("store: set keep: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	From       *time.Time
	To         *time.Time
	ReasonLike string
	Descending bool
}

// ListSessions returns sessions for a camera matching the filter,
// ordered by started_at.
func (s *Store) ListSessions(cameraID string, filter SessionFilter) ([]Session, error) {
	query := `SELECT session_id, camera_id, started_at, ended_at, reason, keep_flag FROM recording_sessions WHERE camera_id = ?`
	args := []any{cameraID}

	if filter.From != nil {
		query += " AND started_at >= ?"
		args = append(args, filter.From.UnixMilli())
	}
	if filter.To != nil {
		query += " AND started_at <= ?"
		args = append(args, filter.To.UnixMilli())
	}
	if filter.ReasonLike != "" {
		query += " AND reason LIKE ?"
		args = append(args, "%"+filter.ReasonLike+"%")
	}
	if filter.Descending {
		query += " ORDER BY started_at DESC"
	} else {
		query += " ORDER BY started_at ASC"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (Session, error) {
	return scanSessionGeneric(row)
}

func scanSessionRows(rows *sql.Rows) (Session, error) {
	return scanSessionGeneric(rows)
}

func scanSessionGeneric(rs rowScanner) (Session, error) {
	var sess Session
	var startedAtMs int64
	var endedAt sql.NullInt64
	var keepFlag int
	if err := rs.Scan(&sess.ID, &sess.CameraID, &startedAtMs, &endedAt, &sess.Reason, &keepFlag); err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.UnixMilli(startedAtMs).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	sess.KeepFlag = keepFlag == 1
	return sess, nil
}
