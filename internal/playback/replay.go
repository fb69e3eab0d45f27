package playback

import (
	"context"
	"sort"
	"time"

	"vigil/internal/store"
)

type replayCmdKind int

const (
	cmdSpeed replayCmdKind = iota
	cmdGoto
)

type replayCmd struct {
	kind     replayCmdKind
	speed    float64
	targetMs int64
}

// runReplay schedules delivery of each frame at real-time offset
// (ts - origin) / speed from scheduleBase, re-basing on speed or goto
// commands.
func (e *Engine) runReplay(ctx context.Context, cmds <-chan replayCmd, frames []store.FrameRecord, initialSpeed float64) {
	if len(frames) == 0 {
		e.sendEnd(EndOfReplay{Reason: "no data in range"})
		return
	}

	speed := initialSpeed
	if speed <= 0 {
		speed = 1.0
	}
	idx := 0
	origin := frames[0].TimestampMs
	scheduleBase := time.Now()

	for idx < len(frames) {
		fr := frames[idx]
		delay := time.Duration(float64(fr.TimestampMs-origin)/speed*float64(time.Millisecond))
		target := scheduleBase.Add(delay)
		timer := time.NewTimer(time.Until(target))

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case <-timer.C:
			select {
			case e.deliveries <- Delivery{TimestampMs: fr.TimestampMs, Data: fr.Blob}:
				idx++
			case <-ctx.Done():
				return
			}

		case cmd := <-cmds:
			timer.Stop()
			switch cmd.kind {
			case cmdSpeed:
				elapsedStreamMs := time.Since(scheduleBase).Seconds() * 1000 * speed
				origin += int64(elapsedStreamMs)
				speed = cmd.speed
				if speed <= 0 {
					speed = 1.0
				}
				scheduleBase = time.Now()

			case cmdGoto:
				newIdx := seekIndex(frames, cmd.targetMs)
				if newIdx == -1 {
					e.sendEnd(EndOfReplay{Reason: "seek target beyond available data"})
					return
				}
				idx = newIdx
				origin = frames[idx].TimestampMs
				scheduleBase = time.Now()
			}
		}
	}

	e.sendEnd(EndOfReplay{Reason: "end of recorded range"})
}

// seekIndex returns the index of the first frame with
// TimestampMs >= targetMs, or -1 if none exists.
func seekIndex(frames []store.FrameRecord, targetMs int64) int {
	i := sort.Search(len(frames), func(i int) bool {
		return frames[i].TimestampMs >= targetMs
	})
	if i == len(frames) {
		return -1
	}
	return i
}

func (e *Engine) sendEnd(end EndOfReplay) {
	// Return to Idle first so a receiver of Ended observes the final mode.
	e.Stop()
	select {
	case e.ended <- end:
	default:
	}
}
