package store

import (
	"database/sql"
	"fmt"
)

// FrameRecord is one stored frame, indexed by (camera_id,
// timestamp_ms). A later insert at the same timestamp overwrites the
// earlier one (last-write-wins).
type FrameRecord struct {
	SessionID   int64
	CameraID    string
	TimestampMs int64
	Size        int
	Blob        []byte
}

// InsertFrame writes one frame record, upserting on (camera_id,
// timestamp_ms).
func (s *Store) InsertFrame(rec FrameRecord) error {
	_, err := s.db.Exec(`INSERT INTO frames (camera_id, session_id, timestamp_ms, size, blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(camera_id, timestamp_ms) DO UPDATE SET
			session_id = excluded.session_id,
			size = excluded.size,
			blob = excluded.blob`,
		rec.CameraID, rec.SessionID, rec.TimestampMs, rec.Size, rec.Blob)
	if err != nil {
		return fmt.Errorf("store: insert frame: %w", err)
	}
	return nil
}

// InsertFrameBatch writes many frame records in one transaction — the
// Frame Recorder's batch-commit path.
func (s *Store) InsertFrameBatch(recs []FrameRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO frames (camera_id, session_id, timestamp_ms, size, blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(camera_id, timestamp_ms) DO UPDATE SET
			session_id = excluded.session_id,
			size = excluded.size,
			blob = excluded.blob`)
	if err != nil {
		return fmt.Errorf("store: prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(rec.CameraID, rec.SessionID, rec.TimestampMs, rec.Size, rec.Blob); err != nil {
			return fmt.Errorf("store: batch insert: %w", err)
		}
	}
	return tx.Commit()
}

// ListFrames returns frame records for a session within [from, to]
// (either bound optional), ordered by timestamp ascending, blobs
// included.
func (s *Store) ListFrames(sessionID int64, from, to *int64) ([]FrameRecord, error) {
	query := `SELECT camera_id, session_id, timestamp_ms, size, blob FROM frames WHERE session_id = ?`
	args := []any{sessionID}
	if from != nil {
		query += " AND timestamp_ms >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND timestamp_ms <= ?"
		args = append(args, *to)
	}
	query += " ORDER BY timestamp_ms ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		if err := rows.Scan(&rec.CameraID, &rec.SessionID, &rec.TimestampMs, &rec.Size, &rec.Blob); err != nil {
			return nil, fmt.Errorf("store: scan frame: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FramesFrom pages through frames for a camera starting at or after
// fromTimestampMs, in timestamp order — the Playback Engine's cursor.
func (s *Store) FramesFrom(cameraID string, fromTimestampMs int64, limit int) ([]FrameRecord, error) {
	rows, err := s.db.Query(`SELECT camera_id, session_id, timestamp_ms, size, blob FROM frames
		WHERE camera_id = ? AND timestamp_ms >= ? ORDER BY timestamp_ms ASC LIMIT ?`,
		cameraID, fromTimestampMs, limit)
	if err != nil {
		return nil, fmt.Errorf("store: frames from: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		if err := rows.Scan(&rec.CameraID, &rec.SessionID, &rec.TimestampMs, &rec.Size, &rec.Blob); err != nil {
			return nil, fmt.Errorf("store: scan frame: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetFrame finds the frame nearest to ts within tolerance milliseconds
// (0 means exact match only).
func (s *Store) GetFrame(cameraID string, ts int64, toleranceMs int64) (*FrameRecord, error) {
	row := s.db.QueryRow(`SELECT camera_id, session_id, timestamp_ms, size, blob FROM frames
		WHERE camera_id = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY ABS(timestamp_ms - ?) ASC LIMIT 1`,
		cameraID, ts-toleranceMs, ts+toleranceMs, ts)

	var rec FrameRecord
	err := row.Scan(&rec.CameraID, &rec.SessionID, &rec.TimestampMs, &rec.Size, &rec.Blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get frame: %w", err)
	}
	return &rec, nil
}

// DBSize reports the total bytes of frame payloads stored for a camera.
func (s *Store) DBSize(cameraID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(size) FROM frames WHERE camera_id = ?`, cameraID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: db size: %w", err)
	}
	return total.Int64, nil
}
