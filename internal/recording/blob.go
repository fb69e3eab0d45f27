// Package recording implements the three recording sinks (Frame
// Recorder, HLS Segmenter, MP4 Segmenter) and the Retention Cleaner,
// each subscribed to the same camera fabric.
package recording

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"vigil/internal/store"
)

// Blob is the storage-backend abstraction shared symmetrically by the
// HLS and MP4 sinks: a segment payload is either a filesystem path or a
// database BLOB, selected by config.
type Blob interface {
	// Write stores data under a backend-chosen location derived from
	// cameraID and relPath, returning that location.
	Write(cameraID, relPath string, data []byte) (location string, err error)
	Open(location string) (io.ReadCloser, error)
	Remove(location string) error
}

// FilesystemBlob writes segment payloads under root using
// write-to-temp-then-rename so a reader never observes a partially
// written segment file.
type FilesystemBlob struct {
	Root string
}

func (b *FilesystemBlob) Write(cameraID, relPath string, data []byte) (string, error) {
	location := filepath.Join(b.Root, cameraID, relPath)
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return "", fmt.Errorf("recording: mkdir: %w", err)
	}
	tmp := location + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("recording: write temp: %w", err)
	}
	if err := os.Rename(tmp, location); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("recording: rename: %w", err)
	}
	return location, nil
}

func (b *FilesystemBlob) Open(location string) (io.ReadCloser, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("recording: open: %w", err)
	}
	return f, nil
}

func (b *FilesystemBlob) Remove(location string) error {
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("recording: remove: %w", err)
	}
	pruneEmptyDateDirs(filepath.Dir(location), b.Root)
	return nil
}

// pruneEmptyDateDirs removes empty YYYY/MM/DD directories left behind by
// a deleted segment, stopping at root.
func pruneEmptyDateDirs(dir, root string) {
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		parent := filepath.Dir(dir)
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = parent
	}
}

// DatabaseBlob stores segment payloads in the recording metadata store's
// segment_blobs table instead of the filesystem.
type DatabaseBlob struct {
	Store *store.Store
}

func (b *DatabaseBlob) Write(cameraID, relPath string, data []byte) (string, error) {
	location := cameraID + "/" + relPath
	if err := b.Store.SaveBlob(location, data); err != nil {
		return "", err
	}
	return location, nil
}

func (b *DatabaseBlob) Open(location string) (io.ReadCloser, error) {
	data, err := b.Store.OpenBlob(location)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *DatabaseBlob) Remove(location string) error {
	return b.Store.DeleteBlob(location)
}

// dateDir builds the YYYY/MM/DD path component for a segment's start
// time.
func dateDir(t time.Time) string {
	return filepath.Join(fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", t.Month()), fmt.Sprintf("%02d", t.Day()))
}
