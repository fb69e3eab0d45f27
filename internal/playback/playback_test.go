package playback

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/fabric"
	"vigil/internal/store"
)

func testFabricLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil-test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFrames(t *testing.T, st *store.Store, cameraID string, sessionID int64, startMs int64, count int, stepMs int64) {
	t.Helper()
	for i := 0; i < count; i++ {
		rec := store.FrameRecord{
			SessionID:   sessionID,
			CameraID:    cameraID,
			TimestampMs: startMs + int64(i)*stepMs,
			Size:        1,
			Blob:        []byte{byte(i)},
		}
		if err := st.InsertFrame(rec); err != nil {
			t.Fatalf("insert frame %d: %v", i, err)
		}
	}
}

// TestReplayDeliversFramesInOrder covers property 6: a replay over a
// fixed range reproduces every stored frame, in timestamp order.
func TestReplayDeliversFramesInOrder(t *testing.T) {
	st := newTestStore(t)
	sess, _ := st.CreateSession("cam1", "manual")
	base := int64(1_700_000_000_000)
	seedFrames(t, st, "cam1", sess.ID, base, 5, 100)

	eng := New("cam1", st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Replay(ctx, time.UnixMilli(base), nil, 1000); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var got []int64
	deadline := time.After(2 * time.Second)
	for len(got) < 5 {
		select {
		case d := <-eng.Deliveries():
			got = append(got, d.TimestampMs)
		case <-deadline:
			t.Fatalf("timed out waiting for frames, got %v", got)
		}
	}

	for i, ts := range got {
		want := base + int64(i)*100
		if ts != want {
			t.Errorf("frame %d: got ts %d, want %d", i, ts, want)
		}
	}
}

// TestReplayEndsWhenRangeExhausted covers scenario S3: replay finishes
// cleanly and signals EndOfReplay once the range is exhausted.
func TestReplayEndsWhenRangeExhausted(t *testing.T) {
	st := newTestStore(t)
	sess, _ := st.CreateSession("cam1", "manual")
	base := int64(1_700_000_000_000)
	seedFrames(t, st, "cam1", sess.ID, base, 3, 10)

	eng := New("cam1", st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Replay(ctx, time.UnixMilli(base), nil, 10000); err != nil {
		t.Fatalf("replay: %v", err)
	}

	count := 0
	timeout := time.After(2 * time.Second)
drain:
	for {
		select {
		case <-eng.Deliveries():
			count++
		case <-eng.Ended():
			break drain
		case <-timeout:
			t.Fatalf("timed out before replay ended, delivered %d", count)
		}
	}
	if count != 3 {
		t.Errorf("expected 3 deliveries before end, got %d", count)
	}
	if eng.Mode() != Idle {
		t.Errorf("expected engine to return to Idle after replay ends, got %s", eng.Mode())
	}
}

// TestGotoSeeksToFirstFrameAtOrAfterTarget covers property 7.
func TestGotoSeeksToFirstFrameAtOrAfterTarget(t *testing.T) {
	st := newTestStore(t)
	sess, _ := st.CreateSession("cam1", "manual")
	base := int64(1_700_000_000_000)
	seedFrames(t, st, "cam1", sess.ID, base, 10, 1000) // ts: base, base+1000, ..., base+9000

	eng := New("cam1", st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// speed=1 keeps the next frame a full second away, so the seek is
	// applied before it is due.
	if err := eng.Replay(ctx, time.UnixMilli(base), nil, 1); err != nil {
		t.Fatalf("replay: %v", err)
	}

	// The first frame is due immediately; take it before seeking.
	select {
	case d := <-eng.Deliveries():
		if d.TimestampMs != base {
			t.Fatalf("got first delivery ts=%d, want %d", d.TimestampMs, base)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	target := base + 3500 // no exact frame here; first at-or-after is base+4000
	if err := eng.Goto(time.UnixMilli(target)); err != nil {
		t.Fatalf("goto: %v", err)
	}

	select {
	case d := <-eng.Deliveries():
		if d.TimestampMs != base+4000 {
			t.Errorf("got first delivery after seek ts=%d, want %d", d.TimestampMs, base+4000)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery after seek")
	}
}

// TestGotoBeyondDataEndsReplay covers the benign-terminal-response edge
// case: seeking past the end of recorded data ends the replay cleanly
// rather than erroring.
func TestGotoBeyondDataEndsReplay(t *testing.T) {
	st := newTestStore(t)
	sess, _ := st.CreateSession("cam1", "manual")
	base := int64(1_700_000_000_000)
	seedFrames(t, st, "cam1", sess.ID, base, 3, 1000)

	eng := New("cam1", st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Replay(ctx, time.UnixMilli(base), nil, 1000); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := eng.Goto(time.UnixMilli(base + 1_000_000)); err != nil {
		t.Fatalf("goto: %v", err)
	}

	select {
	case end := <-eng.Ended():
		if end.Reason == "" {
			t.Error("expected a non-empty terminal reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EndOfReplay after out-of-range seek")
	}
}

// TestSetSpeedRebasesSchedule covers property 8: raising the speed
// mid-replay shortens the wall-clock time between subsequent deliveries.
func TestSetSpeedRebasesSchedule(t *testing.T) {
	st := newTestStore(t)
	sess, _ := st.CreateSession("cam1", "manual")
	base := int64(1_700_000_000_000)
	seedFrames(t, st, "cam1", sess.ID, base, 20, 100)

	eng := New("cam1", st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// speed=1 means 100ms of stream time per 100ms of wall time: slow
	// enough that SetSpeed(50) has room to visibly compress delivery.
	if err := eng.Replay(ctx, time.UnixMilli(base), nil, 1); err != nil {
		t.Fatalf("replay: %v", err)
	}

	select {
	case <-eng.Deliveries():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	if err := eng.SetSpeed(50); err != nil {
		t.Fatalf("set speed: %v", err)
	}

	start := time.Now()
	remaining := 0
	timeout := time.After(3 * time.Second)
drain:
	for {
		select {
		case <-eng.Deliveries():
			remaining++
			if remaining >= 15 {
				break drain
			}
		case <-eng.Ended():
			break drain
		case <-timeout:
			t.Fatalf("timed out, only delivered %d more frames", remaining)
		}
	}
	elapsed := time.Since(start)
	if elapsed > 2*time.Second {
		t.Errorf("expected speed-up to finish remaining frames quickly, took %s", elapsed)
	}
}

// TestGoLiveForwardsFabricFrames exercises the Live mode path.
func TestGoLiveForwardsFabricFrames(t *testing.T) {
	st := newTestStore(t)
	eng := New("cam1", st)

	fab := fabric.New("cam1", 10, testFabricLogger())
	defer fab.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.GoLive(ctx, fab)

	fab.Publish(fabric.Frame{Data: []byte("a"), TimestampMs: 1})

	select {
	case d := <-eng.Deliveries():
		if d.TimestampMs != 1 {
			t.Errorf("got ts %d, want 1", d.TimestampMs)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live delivery")
	}
	if eng.Mode() != Live {
		t.Errorf("expected Live mode, got %s", eng.Mode())
	}
}
