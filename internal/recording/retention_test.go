package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/store"
)

func TestCleanerSweepRemovesExpiredMP4PayloadAndRow(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()
	blob := &FilesystemBlob{Root: root}

	sess, _ := st.CreateSession("cam1", "manual")
	st.StopSession(sess.ID)

	now := time.Now().UTC()
	location, err := blob.Write("cam1", "old.mp4", []byte("payload"))
	if err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if _, err := os.Stat(location); err != nil {
		t.Fatalf("expected payload file to exist: %v", err)
	}

	oldStart := now.Add(-2 * time.Hour).UnixMilli()
	oldEnd := now.Add(-2*time.Hour + time.Minute).UnixMilli()
	if _, err := st.InsertMP4Segment(store.MP4Segment{
		CameraID: "cam1", SessionID: sess.ID, StartTime: oldStart, EndTime: oldEnd,
		SizeBytes: 7, StorageKind: store.StorageFilesystem, Location: location,
	}); err != nil {
		t.Fatalf("insert segment: %v", err)
	}

	settings := config.Default()
	settings.MP4Retention = time.Hour
	settings.FrameRetention = 0
	settings.HLSRetention = 0

	cleaner := &Cleaner{store: st, hlsBlob: blob, mp4Blob: blob, settings: settings, logger: testLogger()}
	cleaner.sweep([]string{"cam1"})

	segs, err := st.ListMP4Segments("cam1", store.MP4Filter{})
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("expected the expired segment to be deleted, got %+v", segs)
	}
	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Fatalf("expected the payload file to be removed, stat err=%v", err)
	}
}

func TestCleanerSweepKeepsActiveAndKeptSegments(t *testing.T) {
	st := newTestStore(t)
	root := t.TempDir()
	blob := &FilesystemBlob{Root: root}

	activeSess, _ := st.CreateSession("cam1", "manual") // stays active
	keptSess, _ := st.CreateSession("cam2", "manual")
	st.StopSession(keptSess.ID)
	st.SetKeep(keptSess.ID, true)

	now := time.Now().UTC()
	oldStart := now.Add(-2 * time.Hour).UnixMilli()
	oldEnd := now.Add(-2*time.Hour + time.Minute).UnixMilli()

	locA, _ := blob.Write("cam1", "active.mp4", []byte("a"))
	st.InsertMP4Segment(store.MP4Segment{CameraID: "cam1", SessionID: activeSess.ID, StartTime: oldStart, EndTime: oldEnd, SizeBytes: 1, StorageKind: store.StorageFilesystem, Location: locA})

	locB, _ := blob.Write("cam2", "kept.mp4", []byte("b"))
	st.InsertMP4Segment(store.MP4Segment{CameraID: "cam2", SessionID: keptSess.ID, StartTime: oldStart, EndTime: oldEnd, SizeBytes: 1, StorageKind: store.StorageFilesystem, Location: locB})

	settings := config.Default()
	settings.MP4Retention = time.Hour
	settings.FrameRetention = 0
	settings.HLSRetention = 0
	cleaner := &Cleaner{store: st, hlsBlob: blob, mp4Blob: blob, settings: settings, logger: testLogger()}
	cleaner.sweep([]string{"cam1", "cam2"})

	segsA, _ := st.ListMP4Segments("cam1", store.MP4Filter{})
	if len(segsA) != 1 {
		t.Errorf("expected the active session's segment to survive, got %d", len(segsA))
	}
	segsB, _ := st.ListMP4Segments("cam2", store.MP4Filter{})
	if len(segsB) != 1 {
		t.Errorf("expected the kept session's segment to survive, got %d", len(segsB))
	}
	if _, err := os.Stat(filepath.Join(root, "cam1", "active.mp4")); err != nil {
		t.Errorf("expected active payload file to remain: %v", err)
	}
}
