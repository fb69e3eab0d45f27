package store

import "fmt"

// DeleteFramesBefore deletes frame records for a camera older than
// cutoffMs, excluding rows belonging to an active session or a
// keep_flag session (testable property 3). It returns the count
// removed.
func (s *Store) DeleteFramesBefore(cameraID string, cutoffMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM frames WHERE camera_id = ? AND timestamp_ms < ?
		AND session_id NOT IN (
			SELECT session_id FROM recording_sessions WHERE ended_at IS NULL OR keep_flag = 1
		)`, cameraID, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("store: delete frames: %w", err)
	}
	return res.RowsAffected()
}

// DeleteMP4SegmentsBefore deletes MP4 segment records whose end_time is
// before cutoffMs, excluding active/kept sessions, and returns the
// deleted rows so the caller can unlink filesystem payloads.
func (s *Store) DeleteMP4SegmentsBefore(cameraID string, cutoffMs int64) ([]MP4Segment, error) {
	victims, err := s.queryExpiredMP4(cameraID, cutoffMs)
	if err != nil {
		return nil, err
	}
	if len(victims) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin mp4 cleanup: %w", err)
	}
	defer tx.Rollback()
	for _, v := range victims {
		if _, err := tx.Exec(`DELETE FROM recording_mp4 WHERE id = ?`, v.ID); err != nil {
			return nil, fmt.Errorf("store: delete mp4 segment %d: %w", v.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit mp4 cleanup: %w", err)
	}
	return victims, nil
}

func (s *Store) queryExpiredMP4(cameraID string, cutoffMs int64) ([]MP4Segment, error) {
	rows, err := s.db.Query(`SELECT id, camera_id, session_id, start_time, end_time, size_bytes, storage_kind, location
		FROM recording_mp4 WHERE camera_id = ? AND end_time < ?
		AND session_id NOT IN (
			SELECT session_id FROM recording_sessions WHERE ended_at IS NULL OR keep_flag = 1
		)`, cameraID, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("store: query expired mp4: %w", err)
	}
	defer rows.Close()

	var out []MP4Segment
	for rows.Next() {
		var seg MP4Segment
		if err := rows.Scan(&seg.ID, &seg.CameraID, &seg.SessionID, &seg.StartTime, &seg.EndTime,
			&seg.SizeBytes, &seg.StorageKind, &seg.Location); err != nil {
			return nil, fmt.Errorf("store: scan expired mp4: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// DeleteHLSSegmentsBefore is the HLS-sink equivalent of
// DeleteMP4SegmentsBefore.
func (s *Store) DeleteHLSSegmentsBefore(cameraID string, cutoffMs int64) ([]HLSSegment, error) {
	rows, err := s.db.Query(`SELECT id, camera_id, session_id, segment_index, start_time, end_time, duration_seconds, size_bytes, payload_location
		FROM recording_hls WHERE camera_id = ? AND end_time < ?
		AND session_id NOT IN (
			SELECT session_id FROM recording_sessions WHERE ended_at IS NULL OR keep_flag = 1
		)`, cameraID, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("store: query expired hls: %w", err)
	}
	var victims []HLSSegment
	for rows.Next() {
		var seg HLSSegment
		if err := rows.Scan(&seg.ID, &seg.CameraID, &seg.SessionID, &seg.SegmentIndex, &seg.StartTime,
			&seg.EndTime, &seg.DurationSeconds, &seg.SizeBytes, &seg.PayloadLocation); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan expired hls: %w", err)
		}
		victims = append(victims, seg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(victims) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin hls cleanup: %w", err)
	}
	defer tx.Rollback()
	for _, v := range victims {
		if _, err := tx.Exec(`DELETE FROM recording_hls WHERE id = ?`, v.ID); err != nil {
			return nil, fmt.Errorf("store: delete hls segment %d: %w", v.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit hls cleanup: %w", err)
	}
	return victims, nil
}
