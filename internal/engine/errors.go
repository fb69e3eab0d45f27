// Package engine wires the Stream Supervisor, Frame Broadcast Fabric,
// Recording Engine, Playback Engine, Control Channel Protocol and HLS
// Timerange Compiler behind a single Go API, Core, that is the whole
// system's external interface. Callers invoke these methods directly
// rather than through a generated RPC or HTTP transport layer (see
// DESIGN.md for why one isn't wired in).
package engine

import "errors"

// Error kinds, each mapped to a sentinel so callers can errors.Is
// against them regardless of which component raised it.
var (
	ErrCameraUnknown   = errors.New("engine: unknown camera")
	ErrCameraDisabled  = errors.New("engine: camera disabled")
	ErrSessionConflict = errors.New("engine: session already active")
	ErrNotFound        = errors.New("engine: not found")
	ErrBadRequest      = errors.New("engine: bad request")
	ErrAuthRejected    = errors.New("engine: authentication rejected")
	ErrInternal        = errors.New("engine: internal invariant failure")
)
