package recording

import (
	"context"
	"log"
	"time"

	"vigil/internal/config"
	"vigil/internal/store"
)

// Cleaner runs the scheduled, per-sink, per-camera retention sweep.
type Cleaner struct {
	store    *store.Store
	hlsBlob  Blob
	mp4Blob  Blob
	settings config.Settings
	logger   *log.Logger
}

func (c *Cleaner) run(ctx context.Context, interval time.Duration, cameraIDs func() []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(cameraIDs())
		}
	}
}

// sweep runs one retention pass over every camera and sink, logging
// per-sink deletion counts.
func (c *Cleaner) sweep(cameraIDs []string) {
	now := time.Now().UTC()
	for _, cameraID := range cameraIDs {
		c.sweepFrames(cameraID, now)
		c.sweepMP4(cameraID, now)
		c.sweepHLS(cameraID, now)
	}
}

func (c *Cleaner) sweepFrames(cameraID string, now time.Time) {
	retention := c.settings.FrameRetention
	if retention <= 0 {
		return
	}
	cutoff := now.Add(-retention).UnixMilli()
	n, err := c.store.DeleteFramesBefore(cameraID, cutoff)
	if err != nil {
		c.logf("camera %s: frame retention sweep failed: %v", cameraID, err)
		return
	}
	if n > 0 {
		c.logf("camera %s: retention removed %d frame rows", cameraID, n)
	}
}

func (c *Cleaner) sweepMP4(cameraID string, now time.Time) {
	retention := c.settings.MP4Retention
	if retention <= 0 {
		return
	}
	cutoff := now.Add(-retention).UnixMilli()
	victims, err := c.store.DeleteMP4SegmentsBefore(cameraID, cutoff)
	if err != nil {
		c.logf("camera %s: mp4 retention sweep failed: %v", cameraID, err)
		return
	}
	for _, v := range victims {
		if v.StorageKind == store.StorageFilesystem {
			if err := c.mp4Blob.Remove(v.Location); err != nil {
				c.logf("camera %s: remove mp4 payload %s failed: %v", cameraID, v.Location, err)
			}
		}
	}
	if len(victims) > 0 {
		c.logf("camera %s: retention removed %d mp4 segments", cameraID, len(victims))
	}
}

func (c *Cleaner) sweepHLS(cameraID string, now time.Time) {
	retention := c.settings.HLSRetention
	if retention <= 0 {
		return
	}
	cutoff := now.Add(-retention).UnixMilli()
	victims, err := c.store.DeleteHLSSegmentsBefore(cameraID, cutoff)
	if err != nil {
		c.logf("camera %s: hls retention sweep failed: %v", cameraID, err)
		return
	}
	for _, v := range victims {
		if err := c.hlsBlob.Remove(v.PayloadLocation); err != nil {
			c.logf("camera %s: remove hls payload %s failed: %v", cameraID, v.PayloadLocation, err)
		}
	}
	if len(victims) > 0 {
		c.logf("camera %s: retention removed %d hls segments", cameraID, len(victims))
	}
}

func (c *Cleaner) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf("[retention] "+format, args...)
	}
}
