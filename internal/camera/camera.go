// Package camera defines the camera identity and transcoder configuration
// the core consumes from the config layer. The core never parses config
// files itself; it only holds the struct the loader populates.
package camera

import (
	"slices"
	"time"
)

// Transport hints the config layer can set on a Spec.
const (
	TransportRTSP = "rtsp"
	TransportHTTP = "http"
)

// TranscoderParams drives the command line of the external encoder
// invoked by the transcoder wrapper for a camera's live feed.
type TranscoderParams struct {
	Scale        string   `json:"scale,omitempty"`     // e.g. "1280x720"
	Quality      int      `json:"quality,omitempty"`   // mjpeg q:v, lower is higher quality
	Framerate    int      `json:"framerate,omitempty"`
	Codec        string   `json:"codec,omitempty"`     // input decode hint, e.g. "h264"
	InputArgs    []string `json:"input_args,omitempty"`
	OutputArgs   []string `json:"output_args,omitempty"`
	BufferSizeKB int      `json:"buffer_size_kb,omitempty"`
	// Command is a last-resort verbatim override. "$url" is substituted
	// with the camera's source URL. When set, it takes precedence over
	// every other field above.
	Command string `json:"command,omitempty"`
}

// Retention overrides a camera can apply on top of the global settings.
type RetentionOverride struct {
	FrameRetention *time.Duration `json:"frame_retention,omitempty"`
	HLSRetention   *time.Duration `json:"hls_retention,omitempty"`
	MP4Retention   *time.Duration `json:"mp4_retention,omitempty"`
}

// Spec is the identity and configuration of one camera, as handed to the
// core by the config layer. Its lifetime is owned entirely by the config
// loader: the core only reacts to Added/Modified/Removed events carrying
// a Spec.
type Spec struct {
	ID               string             `json:"camera_id"`
	URLPrefix        string             `json:"url_prefix"`
	SourceURL        string             `json:"source_url"`
	Transport        string             `json:"transport"`
	ReconnectInterval time.Duration     `json:"reconnect_interval"`
	Transcoder       TranscoderParams   `json:"transcoder"`
	AccessToken      string             `json:"access_token,omitempty"`
	Retention        RetentionOverride  `json:"retention,omitempty"`
	Enabled          bool               `json:"enabled"`
}

// Equal reports whether two specs are identical in every field the core
// reacts to. The supervisor registry uses this to implement its
// idempotency rule: identical specs cause no restart.
func (s Spec) Equal(other Spec) bool {
	if s.ID != other.ID || s.URLPrefix != other.URLPrefix || s.SourceURL != other.SourceURL ||
		s.Transport != other.Transport || s.ReconnectInterval != other.ReconnectInterval ||
		s.AccessToken != other.AccessToken || s.Enabled != other.Enabled {
		return false
	}
	if !transcoderEqual(s.Transcoder, other.Transcoder) {
		return false
	}
	return retentionEqual(s.Retention, other.Retention)
}

func transcoderEqual(a, b TranscoderParams) bool {
	return a.Scale == b.Scale && a.Quality == b.Quality && a.Framerate == b.Framerate &&
		a.Codec == b.Codec && a.BufferSizeKB == b.BufferSizeKB && a.Command == b.Command &&
		slices.Equal(a.InputArgs, b.InputArgs) && slices.Equal(a.OutputArgs, b.OutputArgs)
}

func retentionEqual(a, b RetentionOverride) bool {
	if (a.FrameRetention == nil) != (b.FrameRetention == nil) {
		return false
	}
	if a.FrameRetention != nil && *a.FrameRetention != *b.FrameRetention {
		return false
	}
	if (a.HLSRetention == nil) != (b.HLSRetention == nil) {
		return false
	}
	if a.HLSRetention != nil && *a.HLSRetention != *b.HLSRetention {
		return false
	}
	if (a.MP4Retention == nil) != (b.MP4Retention == nil) {
		return false
	}
	if a.MP4Retention != nil && *a.MP4Retention != *b.MP4Retention {
		return false
	}
	return true
}
