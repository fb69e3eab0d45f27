package store

import "fmt"

// Storage backend kinds for segment payloads, shared symmetrically by
// both sinks.
const (
	StorageFilesystem = "filesystem"
	StorageDatabase   = "database"
)

// MP4Segment is one recorded MP4 segment row.
type MP4Segment struct {
	ID          int64
	CameraID    string
	SessionID   int64
	StartTime   int64
	EndTime     int64
	SizeBytes   int64
	StorageKind string
	Location    string
}

// HLSSegment is one recorded HLS segment row.
type HLSSegment struct {
	ID              int64
	CameraID        string
	SessionID       int64
	SegmentIndex    int
	StartTime       int64
	EndTime         int64
	DurationSeconds float64
	SizeBytes       int64
	PayloadLocation string
}

// InsertMP4Segment adds a closed MP4 segment record.
func (s *Store) InsertMP4Segment(seg MP4Segment) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO recording_mp4
		(camera_id, session_id, start_time, end_time, size_bytes, storage_kind, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seg.CameraID, seg.SessionID, seg.StartTime, seg.EndTime, seg.SizeBytes, seg.StorageKind, seg.Location)
	if err != nil {
		return 0, fmt.Errorf("store: insert mp4 segment: %w", err)
	}
	return res.LastInsertId()
}

// MP4Filter narrows ListMP4Segments results.
type MP4Filter struct {
	From *int64
	To   *int64
}

// ListMP4Segments returns MP4 segments for a camera ordered by
// start_time ascending (the non-overlapping invariant, property 2).
func (s *Store) ListMP4Segments(cameraID string, filter MP4Filter) ([]MP4Segment, error) {
	query := `SELECT id, camera_id, session_id, start_time, end_time, size_bytes, storage_kind, location
		FROM recording_mp4 WHERE camera_id = ?`
	args := []any{cameraID}
	if filter.From != nil {
		query += " AND end_time >= ?"
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += " AND start_time <= ?"
		args = append(args, *filter.To)
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list mp4 segments: %w", err)
	}
	defer rows.Close()

	var out []MP4Segment
	for rows.Next() {
		var seg MP4Segment
		if err := rows.Scan(&seg.ID, &seg.CameraID, &seg.SessionID, &seg.StartTime, &seg.EndTime,
			&seg.SizeBytes, &seg.StorageKind, &seg.Location); err != nil {
			return nil, fmt.Errorf("store: scan mp4 segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// InsertHLSSegment adds a closed HLS segment record.
func (s *Store) InsertHLSSegment(seg HLSSegment) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO recording_hls
		(camera_id, session_id, segment_index, start_time, end_time, duration_seconds, size_bytes, payload_location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.CameraID, seg.SessionID, seg.SegmentIndex, seg.StartTime, seg.EndTime,
		seg.DurationSeconds, seg.SizeBytes, seg.PayloadLocation)
	if err != nil {
		return 0, fmt.Errorf("store: insert hls segment: %w", err)
	}
	return res.LastInsertId()
}

// ListHLSSegments returns HLS segments for a camera ordered by
// start_time ascending.
func (s *Store) ListHLSSegments(cameraID string, from, to *int64) ([]HLSSegment, error) {
	query := `SELECT id, camera_id, session_id, segment_index, start_time, end_time, duration_seconds, size_bytes, payload_location
		FROM recording_hls WHERE camera_id = ?`
	args := []any{cameraID}
	if from != nil {
		query += " AND end_time >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND start_time <= ?"
		args = append(args, *to)
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list hls segments: %w", err)
	}
	defer rows.Close()

	var out []HLSSegment
	for rows.Next() {
		var seg HLSSegment
		if err := rows.Scan(&seg.ID, &seg.CameraID, &seg.SessionID, &seg.SegmentIndex, &seg.StartTime,
			&seg.EndTime, &seg.DurationSeconds, &seg.SizeBytes, &seg.PayloadLocation); err != nil {
			return nil, fmt.Errorf("store: scan hls segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}
