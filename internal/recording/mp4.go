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

// mp4Segmenter buffers frames into mp4_segment_minutes windows and
// encodes each to H.264 MP4 via a separate transcoder invocation.
type mp4Segmenter struct {
	cameraID      string
	store         *store.Store
	blob          Blob
	segmentLength time.Duration
	logger        *log.Logger
}

func newMP4Segmenter(cameraID string, st *store.Store, blob Blob, settings config.Settings, logger *log.Logger) *mp4Segmenter {
	minutes := settings.MP4SegmentMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return &mp4Segmenter{
		cameraID:      cameraID,
		store:         st,
		blob:          blob,
		segmentLength: time.Duration(minutes) * time.Minute,
		logger:        logger,
	}
}

func (m *mp4Segmenter) run(ctx context.Context, sub *fabric.Subscription) {
	var buf []fabric.Frame
	var windowStart time.Time

	rotate := func() {
		if len(buf) == 0 {
			return
		}
		m.closeSegment(ctx, buf)
		buf = nil
	}

	ticker := time.NewTicker(m.segmentLength)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rotate()
			return
		case fr, ok := <-sub.Frames():
			if !ok {
				rotate()
				return
			}
			if len(buf) == 0 {
				windowStart = time.Now()
			}
			buf = append(buf, fr)
			if time.Since(windowStart) >= m.segmentLength {
				rotate()
			}
		case <-ticker.C:
			rotate()
		}
	}
}

func (m *mp4Segmenter) closeSegment(ctx context.Context, buf []fabric.Frame) {
	startTime := buf[0].TimestampMs
	endTime := buf[len(buf)-1].TimestampMs
	durationSeconds := float64(endTime-startTime) / 1000.0

	framerate := 15
	if durationSeconds > 0 {
		if fr := int(float64(len(buf)) / durationSeconds); fr > 0 {
			framerate = fr
		}
	}

	frames := make([][]byte, len(buf))
	for i, f := range buf {
		frames[i] = f.Data
	}

	payload, err := encodeSegment(ctx, frames, framerate, []string{
		"-f", "mp4", "-movflags", "frag_keyframe+empty_moov", "-vcodec", "libx264", "-",
	})
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("[mp4] camera %s: encode failed: %v", m.cameraID, err)
		}
		return
	}

	sessionID, err := sessionForClose(m.store, m.cameraID)
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("[mp4] camera %s: session lookup failed: %v", m.cameraID, err)
		}
		return
	}

	start := time.UnixMilli(startTime)
	filename := fmt.Sprintf("%s_%s.mp4", m.cameraID, start.UTC().Format("20060102_150405"))
	relPath := fmt.Sprintf("%s/%s", dateDir(start), filename)
	location, err := m.blob.Write(m.cameraID, relPath, payload)
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("[mp4] camera %s: write payload failed: %v", m.cameraID, err)
		}
		return
	}

	storageKind := store.StorageFilesystem
	if _, ok := m.blob.(*DatabaseBlob); ok {
		storageKind = store.StorageDatabase
	}

	_, err = m.store.InsertMP4Segment(store.MP4Segment{
		CameraID:    m.cameraID,
		SessionID:   sessionID,
		StartTime:   startTime,
		EndTime:     endTime,
		SizeBytes:   int64(len(payload)),
		StorageKind: storageKind,
		Location:    location,
	})
	if err != nil && m.logger != nil {
		m.logger.Printf("[mp4] camera %s: insert segment record failed: %v", m.cameraID, err)
	}
}
