package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil-test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestAtMostOneActiveSessionPerCamera exercises the at-most-one-active-
// session-per-camera invariant.
func TestAtMostOneActiveSessionPerCamera(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.CreateSession("cam1", "manual")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := s.CreateSession("cam1", "manual"); err != ErrSessionConflict {
		t.Fatalf("expected ErrSessionConflict, got %v", err)
	}

	// A different camera is unaffected.
	if _, err := s.CreateSession("cam2", "manual"); err != nil {
		t.Fatalf("expected camera 2 session to succeed, got %v", err)
	}

	if err := s.StopSession(sess.ID); err != nil {
		t.Fatalf("stop session: %v", err)
	}
	if _, err := s.CreateSession("cam1", "manual"); err != nil {
		t.Fatalf("expected new session after stop to succeed, got %v", err)
	}
}

func TestActiveSessionReflectsState(t *testing.T) {
	s := newTestStore(t)

	if active, err := s.ActiveSession("cam1"); err != nil || active != nil {
		t.Fatalf("expected no active session, got %+v err=%v", active, err)
	}

	sess, err := s.CreateSession("cam1", "manual")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	active, err := s.ActiveSession("cam1")
	if err != nil || active == nil || active.ID != sess.ID {
		t.Fatalf("expected active session %d, got %+v err=%v", sess.ID, active, err)
	}

	if err := s.StopSession(sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if active, err := s.ActiveSession("cam1"); err != nil || active != nil {
		t.Fatalf("expected no active session after stop, got %+v", active)
	}
}

func TestImplicitSessionIsStableAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	a, err := s.ImplicitSession("cam1")
	if err != nil {
		t.Fatalf("implicit session: %v", err)
	}
	b, err := s.ImplicitSession("cam1")
	if err != nil {
		t.Fatalf("implicit session again: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("expected the same implicit session, got %d and %d", a.ID, b.ID)
	}
}

// TestImplicitSessionDoesNotBlockRealSessions confirms the bookkeeping
// continuous session created for closing segments never collides with
// CreateSession's conflict check or shows up as the camera's active
// session — only an explicitly started session does.
func TestImplicitSessionDoesNotBlockRealSessions(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.ImplicitSession("cam1"); err != nil {
		t.Fatalf("implicit session: %v", err)
	}

	if active, err := s.ActiveSession("cam1"); err != nil || active != nil {
		t.Fatalf("expected no active session despite implicit session existing, got %+v err=%v", active, err)
	}

	sess, err := s.CreateSession("cam1", "manual")
	if err != nil {
		t.Fatalf("expected CreateSession to succeed despite implicit session existing, got %v", err)
	}

	active, err := s.ActiveSession("cam1")
	if err != nil || active == nil || active.ID != sess.ID {
		t.Fatalf("expected active session %d, got %+v err=%v", sess.ID, active, err)
	}

	if _, err := s.CreateSession("cam1", "manual"); err != ErrSessionConflict {
		t.Fatalf("expected ErrSessionConflict from the real active session, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession("cam1", "manual")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	frames := []FrameRecord{
		{SessionID: sess.ID, CameraID: "cam1", TimestampMs: 1000, Size: 3, Blob: []byte("one")},
		{SessionID: sess.ID, CameraID: "cam1", TimestampMs: 2000, Size: 3, Blob: []byte("two")},
		{SessionID: sess.ID, CameraID: "cam1", TimestampMs: 3000, Size: 5, Blob: []byte("three")},
	}
	if err := s.InsertFrameBatch(frames); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	got, err := s.ListFrames(sess.ID, nil, nil)
	if err != nil {
		t.Fatalf("list frames: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	for i, want := range frames {
		if got[i].TimestampMs != want.TimestampMs || string(got[i].Blob) != string(want.Blob) {
			t.Errorf("frame %d mismatch: got %+v want %+v", i, got[i], want)
		}
	}
}

func TestDBSizeSumsFrameSizes(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.CreateSession("cam1", "manual")
	_ = s.InsertFrame(FrameRecord{SessionID: sess.ID, CameraID: "cam1", TimestampMs: 1, Size: 10, Blob: []byte("0123456789")})
	_ = s.InsertFrame(FrameRecord{SessionID: sess.ID, CameraID: "cam1", TimestampMs: 2, Size: 20, Blob: make([]byte, 20)})

	size, err := s.DBSize("cam1")
	if err != nil {
		t.Fatalf("db size: %v", err)
	}
	if size != 30 {
		t.Errorf("expected 30, got %d", size)
	}
}

// TestRetentionDeletesOnlyExpiredUnkeptInactive exercises testable
// property 3 and scenario S6.
func TestRetentionDeletesOnlyExpiredUnkeptInactive(t *testing.T) {
	s := newTestStore(t)

	oldSession, _ := s.CreateSession("cam1", "manual")
	s.StopSession(oldSession.ID)
	keptSession, _ := s.CreateSession("cam1", "manual")
	s.StopSession(keptSession.ID)
	s.SetKeep(keptSession.ID, true)

	now := time.Now().UTC()
	cutoff := now.Add(-time.Hour).UnixMilli()
	oldTs := now.Add(-2 * time.Hour).UnixMilli()
	keptTs := now.Add(-3 * time.Hour).UnixMilli()
	recentTs := now.Add(-30 * time.Minute).UnixMilli()

	s.InsertFrame(FrameRecord{SessionID: oldSession.ID, CameraID: "cam1", TimestampMs: oldTs, Size: 1, Blob: []byte("x")})
	s.InsertFrame(FrameRecord{SessionID: oldSession.ID, CameraID: "cam1", TimestampMs: recentTs, Size: 1, Blob: []byte("y")})
	s.InsertFrame(FrameRecord{SessionID: keptSession.ID, CameraID: "cam1", TimestampMs: keptTs, Size: 1, Blob: []byte("z")})

	n, err := s.DeleteFramesBefore("cam1", cutoff)
	if err != nil {
		t.Fatalf("delete frames: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 deletion, got %d", n)
	}

	remaining, err := s.ListFrames(oldSession.ID, nil, nil)
	if err != nil {
		t.Fatalf("list frames: %v", err)
	}
	if len(remaining) != 1 || remaining[0].TimestampMs != recentTs {
		t.Errorf("expected only the recent frame to survive, got %+v", remaining)
	}

	keptRemaining, err := s.ListFrames(keptSession.ID, nil, nil)
	if err != nil {
		t.Fatalf("list frames (kept): %v", err)
	}
	if len(keptRemaining) != 1 {
		t.Errorf("expected the kept session's old frame to survive, got %d rows", len(keptRemaining))
	}
}

func TestMP4SegmentsOrderedAscendingByStartTime(t *testing.T) {
	s := newTestStore(t)
	sess, _ := s.CreateSession("cam1", "manual")

	s.InsertMP4Segment(MP4Segment{CameraID: "cam1", SessionID: sess.ID, StartTime: 200, EndTime: 300, StorageKind: StorageFilesystem, Location: "b.mp4"})
	s.InsertMP4Segment(MP4Segment{CameraID: "cam1", SessionID: sess.ID, StartTime: 100, EndTime: 200, StorageKind: StorageFilesystem, Location: "a.mp4"})

	segs, err := s.ListMP4Segments("cam1", MP4Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(segs) != 2 || segs[0].Location != "a.mp4" || segs[1].Location != "b.mp4" {
		t.Errorf("expected ascending order by start_time, got %+v", segs)
	}
}
