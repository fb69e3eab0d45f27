// Package playback implements the Playback Engine serving a single
// control connection: live forwarding from the fabric, or timestamped
// iteration of the archive. One goroutine per connection forwards
// frames while reading commands, switching explicitly between an
// Idle/Live/Replaying mode.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"vigil/internal/fabric"
	"vigil/internal/store"
)

// Mode is the engine's current streaming source.
type Mode int

const (
	Idle Mode = iota
	Live
	Replaying
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Live:
		return "live"
	case Replaying:
		return "replaying"
	default:
		return "unknown"
	}
}

// ErrNoActiveReplay is returned by Speed/Goto when the engine is not
// currently replaying.
var ErrNoActiveReplay = errors.New("playback: no active replay")

// Delivery is one frame handed to the control layer for wire encoding.
type Delivery struct {
	TimestampMs int64
	Data        []byte
}

// EndOfReplay is sent on the Ended channel when a replay finishes or a
// seek target exceeds available data — a benign terminal response, not
// an error.
type EndOfReplay struct {
	Reason string
}

const pageSize = 500

// Engine serves one control connection for one camera.
type Engine struct {
	cameraID string
	store    *store.Store

	deliveries chan Delivery
	ended      chan EndOfReplay

	mu     sync.Mutex
	mode   Mode
	cancel context.CancelFunc
	cmds   chan replayCmd
}

// New creates an Engine for one camera. The caller owns reading
// Deliveries/Ended for the lifetime of the connection.
func New(cameraID string, st *store.Store) *Engine {
	return &Engine{
		cameraID:   cameraID,
		store:      st,
		deliveries: make(chan Delivery, 16),
		ended:      make(chan EndOfReplay, 1),
		mode:       Idle,
	}
}

// Deliveries returns the channel of frames to forward to the client.
func (e *Engine) Deliveries() <-chan Delivery { return e.deliveries }

// Ended signals replay completion or a failed seek.
func (e *Engine) Ended() <-chan EndOfReplay { return e.ended }

// Mode reports the current streaming source.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Stop leaves the current mode and returns to Idle, cancelling whatever
// stream is in flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mode = Idle
	e.cmds = nil
}

// GoLive switches to Live mode, forwarding fab's frames until Stop or
// another mode switch. Any in-flight replay is cancelled implicitly.
func (e *Engine) GoLive(ctx context.Context, fab *fabric.Fabric) {
	e.mu.Lock()
	e.stopLocked()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mode = Live
	e.mu.Unlock()

	sub := fab.Subscribe()
	go func() {
		defer fab.Drop(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case fr, ok := <-sub.Frames():
				if !ok {
					return
				}
				select {
				case e.deliveries <- Delivery{TimestampMs: fr.TimestampMs, Data: fr.Data}:
				case <-runCtx.Done():
					return
				}
			}
		}
	}()
}

// Replay switches to Replaying mode over [from, to] at the given speed.
// to == nil means "until end of recorded data at the moment of query."
func (e *Engine) Replay(ctx context.Context, from time.Time, to *time.Time, speed float64) error {
	e.mu.Lock()
	e.stopLocked()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mode = Replaying
	cmds := make(chan replayCmd, 4)
	e.cmds = cmds
	e.mu.Unlock()

	frames, err := e.loadFrames(from, to)
	if err != nil {
		return err
	}
	go e.runReplay(runCtx, cmds, frames, speed)
	return nil
}

// SetSpeed updates the replay rate, re-basing the schedule to the
// current position so a mid-stream speed change takes effect
// immediately rather than at the next frame boundary.
func (e *Engine) SetSpeed(speed float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Replaying || e.cmds == nil {
		return ErrNoActiveReplay
	}
	select {
	case e.cmds <- replayCmd{kind: cmdSpeed, speed: speed}:
	default:
	}
	return nil
}

// Goto seeks to the first frame with timestamp_ms >= target.
func (e *Engine) Goto(target time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Replaying || e.cmds == nil {
		return ErrNoActiveReplay
	}
	select {
	case e.cmds <- replayCmd{kind: cmdGoto, targetMs: target.UnixMilli()}:
	default:
	}
	return nil
}

func (e *Engine) loadFrames(from time.Time, to *time.Time) ([]store.FrameRecord, error) {
	var toMs *int64
	if to != nil {
		v := to.UnixMilli()
		toMs = &v
	}

	var all []store.FrameRecord
	cursor := from.UnixMilli()
	seen := make(map[int64]bool) // tie-break guard: emit at most one frame per timestamp
	for {
		page, err := e.store.FramesFrom(e.cameraID, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if toMs != nil && rec.TimestampMs > *toMs {
				return all, nil
			}
			if seen[rec.TimestampMs] {
				continue
			}
			seen[rec.TimestampMs] = true
			all = append(all, rec)
		}
		if len(page) < pageSize {
			break
		}
		cursor = page[len(page)-1].TimestampMs + 1
	}
	return all, nil
}
