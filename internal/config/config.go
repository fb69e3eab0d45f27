// Package config holds the global settings the core consumes from the
// config layer. Parsing the settings file itself is out of core scope;
// this package only defines the shape and its defaults.
package config

import "time"

// Settings are process-wide defaults; individual cameras may override a
// subset of them through camera.Spec.Retention.
type Settings struct {
	ChannelBufferSize int           `json:"channel_buffer_size"`
	MaxFrameSize      int           `json:"max_frame_size"`
	ReconnectInterval time.Duration `json:"reconnect_interval"`
	ShutdownGrace     time.Duration `json:"shutdown_grace"`

	SnapshotTTL     time.Duration `json:"snapshot_ttl"`
	SnapshotWait    time.Duration `json:"snapshot_wait"`

	FrameRetention time.Duration `json:"frame_retention"`
	HLSRetention   time.Duration `json:"hls_retention"`
	MP4Retention   time.Duration `json:"mp4_retention"`
	CleanupInterval time.Duration `json:"cleanup_interval"`

	HLSSegmentSeconds  int    `json:"hls_segment_seconds"`
	MP4SegmentMinutes  int    `json:"mp4_segment_minutes"`
	HLSStorage         string `json:"hls_storage"` // "filesystem" | "database"
	MP4Storage         string `json:"mp4_storage"` // "filesystem" | "database"

	RecordingRoot string `json:"recording_root"`

	// PerCameraDB selects a per-camera-file physical layout instead of
	// one shared database. The shared-database layout (false) is the
	// only one this implementation executes; per-camera files remain a
	// documented possibility for a future config loader to act on.
	PerCameraDB bool `json:"per_camera_db"`
}

// Default returns the process-wide default settings.
func Default() Settings {
	return Settings{
		ChannelBufferSize: 10,
		MaxFrameSize:      10 * 1024 * 1024,
		ReconnectInterval: 5 * time.Second,
		ShutdownGrace:     5 * time.Second,

		SnapshotTTL:  5 * time.Second,
		SnapshotWait: 5 * time.Second,

		FrameRetention:  30 * 24 * time.Hour,
		HLSRetention:    7 * 24 * time.Hour,
		MP4Retention:    30 * 24 * time.Hour,
		CleanupInterval: time.Hour,

		HLSSegmentSeconds: 6,
		MP4SegmentMinutes: 5,
		HLSStorage:        "filesystem",
		MP4Storage:        "filesystem",

		RecordingRoot: "recordings",
		PerCameraDB:   false,
	}
}
