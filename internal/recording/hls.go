package recording

import (
	"context"
	"fmt"
	"log"
	"time"

	"vigil/internal/config"
	"vigil/internal/fabric"
	"vigil/internal/store"
)

// hlsSegmenter accumulates frames into a working buffer and closes a
// segment when its wall-clock span reaches hls_segment_seconds or a
// forced rotation is requested.
type hlsSegmenter struct {
	cameraID      string
	store         *store.Store
	blob          Blob
	segmentLength time.Duration
	logger        *log.Logger

	nextIndex int
}

func newHLSSegmenter(cameraID string, st *store.Store, blob Blob, settings config.Settings, logger *log.Logger) *hlsSegmenter {
	seconds := settings.HLSSegmentSeconds
	if seconds <= 0 {
		seconds = 6
	}
	idx := 0
	if existing, err := st.ListHLSSegments(cameraID, nil, nil); err == nil {
		idx = len(existing)
	}
	return &hlsSegmenter{
		cameraID:      cameraID,
		store:         st,
		blob:          blob,
		segmentLength: time.Duration(seconds) * time.Second,
		logger:        logger,
		nextIndex:     idx,
	}
}

func (h *hlsSegmenter) run(ctx context.Context, sub *fabric.Subscription) {
	var buf []fabric.Frame
	var windowStart time.Time

	rotate := func(forced bool) {
		if len(buf) == 0 {
			return
		}
		h.closeSegment(ctx, buf)
		buf = nil
	}

	ticker := time.NewTicker(h.segmentLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rotate(true)
			return
		case fr, ok := <-sub.Frames():
			if !ok {
				rotate(true)
				return
			}
			if len(buf) == 0 {
				windowStart = time.Now()
			}
			buf = append(buf, fr)
			if time.Since(windowStart) >= h.segmentLength {
				rotate(false)
			}
		case <-ticker.C:
			rotate(false)
		}
	}
}

func (h *hlsSegmenter) closeSegment(ctx context.Context, buf []fabric.Frame) {
	startTime := buf[0].TimestampMs
	endTime := buf[len(buf)-1].TimestampMs
	durationSeconds := float64(endTime-startTime) / 1000.0
	if durationSeconds <= 0 {
		durationSeconds = float64(len(buf)) / 15.0
	}

	framerate := len(buf)
	if durationSeconds > 0 {
		framerate = int(float64(len(buf)) / durationSeconds)
	}
	if framerate <= 0 {
		framerate = 15
	}

	frames := make([][]byte, len(buf))
	for i, f := range buf {
		frames[i] = f.Data
	}

	payload, err := encodeSegment(ctx, frames, framerate, []string{
		"-f", "mpegts", "-vcodec", "mpeg2video", "-",
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[hls] camera %s: encode failed: %v", h.cameraID, err)
		}
		return
	}

	sessionID, err := h.sessionForClose()
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[hls] camera %s: session lookup failed: %v", h.cameraID, err)
		}
		return
	}

	relPath := fmt.Sprintf("hls/%s/%s_%d.ts", dateDir(time.UnixMilli(startTime)), h.cameraID, h.nextIndex)
	location, err := h.blob.Write(h.cameraID, relPath, payload)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[hls] camera %s: write payload failed: %v", h.cameraID, err)
		}
		return
	}

	_, err = h.store.InsertHLSSegment(store.HLSSegment{
		CameraID:        h.cameraID,
		SessionID:       sessionID,
		SegmentIndex:    h.nextIndex,
		StartTime:       startTime,
		EndTime:         endTime,
		DurationSeconds: durationSeconds,
		SizeBytes:       int64(len(payload)),
		PayloadLocation: location,
	})
	if err != nil && h.logger != nil {
		h.logger.Printf("[hls] camera %s: insert segment record failed: %v", h.cameraID, err)
	}
	h.nextIndex++
}

// sessionForClose resolves the session a closing segment should be
// stamped with: the active session if present, else the per-camera
// implicit continuous session.
func (h *hlsSegmenter) sessionForClose() (int64, error) {
	return sessionForClose(h.store, h.cameraID)
}

func sessionForClose(st *store.Store, cameraID string) (int64, error) {
	active, err := st.ActiveSession(cameraID)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return active.ID, nil
	}
	implicit, err := st.ImplicitSession(cameraID)
	if err != nil {
		return 0, err
	}
	return implicit.ID, nil
}
