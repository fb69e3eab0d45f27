package recording

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"vigil/internal/fabric"
	"vigil/internal/store"
)

// batchWindow is the commit latency target for batched frame inserts.
const batchWindow = 200 * time.Millisecond

// frameQueueCapacity bounds the recorder's internal queue; beyond this,
// incoming frames are shed rather than applying backpressure to the
// fabric.
const frameQueueCapacity = 256

// FrameRecorder persists frames while a session is active, batching
// inserts by size or by timer, whichever comes first, so a camera
// publishing many frames a second does not force one commit per frame.
type FrameRecorder struct {
	cameraID string
	store    *store.Store
	logger   *log.Logger

	activeSession atomic.Int64 // 0 means no active session
	dropped       atomic.Uint64
}

func newFrameRecorder(cameraID string, st *store.Store, logger *log.Logger) *FrameRecorder {
	return &FrameRecorder{cameraID: cameraID, store: st, logger: logger}
}

func (r *FrameRecorder) setActiveSession(id int64)  { r.activeSession.Store(id) }
func (r *FrameRecorder) clearActiveSession()        { r.activeSession.Store(0) }
func (r *FrameRecorder) Dropped() uint64            { return r.dropped.Load() }

func (r *FrameRecorder) run(ctx context.Context, sub *fabric.Subscription) {
	ticker := time.NewTicker(batchWindow)
	defer ticker.Stop()

	var batch []store.FrameRecord
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertFrameBatch(batch); err != nil && r.logger != nil {
			r.logger.Printf("[recorder] camera %s: batch insert failed: %v", r.cameraID, err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case fr, ok := <-sub.Frames():
			if !ok {
				flush()
				return
			}
			sessionID := r.activeSession.Load()
			if sessionID == 0 {
				continue // no active session: frame sink is gated off
			}
			if len(batch) >= frameQueueCapacity {
				r.dropped.Add(1)
				continue
			}
			batch = append(batch, store.FrameRecord{
				SessionID:   sessionID,
				CameraID:    r.cameraID,
				TimestampMs: fr.TimestampMs,
				Size:        len(fr.Data),
				Blob:        fr.Data,
			})
			if len(batch) >= frameQueueCapacity/2 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
