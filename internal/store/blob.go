package store

import "fmt"

// blobTableMigration is not part of Migrate; EnsureBlobTable applies it
// when the database-backed storage kind (an alternative to filesystem
// payloads) is selected, so that kind only pays for a table when
// actually used.
const blobTableMigration = `CREATE TABLE IF NOT EXISTS segment_blobs (
	location TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

// EnsureBlobTable creates the segment_blobs table used by the
// database-backed storage kind. Safe to call repeatedly.
func (s *Store) EnsureBlobTable() error {
	if _, err := s.db.Exec(blobTableMigration); err != nil {
		return fmt.Errorf("store: ensure blob table: %w", err)
	}
	return nil
}

// SaveBlob stores a segment payload under the database storage kind.
func (s *Store) SaveBlob(location string, data []byte) error {
	_, err := s.db.Exec(`INSERT INTO segment_blobs (location, payload) VALUES (?, ?)
		ON CONFLICT(location) DO UPDATE SET payload = excluded.payload`, location, data)
	if err != nil {
		return fmt.Errorf("store: save blob: %w", err)
	}
	return nil
}

// OpenBlob retrieves a previously saved segment payload.
func (s *Store) OpenBlob(location string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT payload FROM segment_blobs WHERE location = ?`, location).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("store: open blob: %w", err)
	}
	return data, nil
}

// DeleteBlob removes a segment payload.
func (s *Store) DeleteBlob(location string) error {
	_, err := s.db.Exec(`DELETE FROM segment_blobs WHERE location = ?`, location)
	if err != nil {
		return fmt.Errorf("store: delete blob: %w", err)
	}
	return nil
}
