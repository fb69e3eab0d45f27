// Package supervisor implements the per-camera lifecycle owner: it
// spawns, monitors and restarts the transcoder subprocess and publishes
// its frames onto the camera's broadcast fabric and snapshot cache, as
// an explicit start/stop/restart state machine.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/fabric"
	"vigil/internal/snapshot"
	"vigil/internal/transcoder"
)

// procRunner is the subset of transcoder.Process this package depends
// on; tests inject a fake so they never spawn a real ffmpeg.
type procRunner interface {
	Run(ctx context.Context, out chan<- transcoder.Frame) error
	Stop(grace time.Duration)
}

// newProcessFunc builds a procRunner for one run of the transcoder.
// Overridable per Supervisor for tests.
type newProcessFunc func(spec camera.Spec, maxFrameSize int, logger *log.Logger) procRunner

func defaultNewProcess(spec camera.Spec, maxFrameSize int, logger *log.Logger) procRunner {
	return transcoder.New(spec, maxFrameSize, transcoder.LogStderrConsole, nil, logger)
}

// Supervisor owns one camera's transcoder, fabric and snapshot cache for
// the duration of its Run call. Exactly one Supervisor per camera_id is
// live at any time (enforced by Registry).
type Supervisor struct {
	spec     camera.Spec
	settings config.Settings
	logger   *log.Logger

	Fabric   *fabric.Fabric
	Snapshot *snapshot.Cache

	newProcess newProcessFunc

	mu    sync.RWMutex
	state State

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Supervisor for spec. It does not start running until Run
// is called.
func New(spec camera.Spec, settings config.Settings, logger *log.Logger) *Supervisor {
	return &Supervisor{
		spec:       spec,
		settings:   settings,
		logger:     logger,
		Fabric:     fabric.New(spec.ID, settings.ChannelBufferSize, logger),
		Snapshot:   snapshot.New(settings.SnapshotTTL),
		newProcess: defaultNewProcess,
		state:      Idle,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Spec returns the camera spec this supervisor was built from.
func (s *Supervisor) Spec() camera.Spec {
	return s.spec
}

// Stop requests a graceful shutdown: Run tears down the transcoder and
// closes the fabric, then returns. Stop is idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == Terminal || s.state == Stopping {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Done returns a channel closed once Run has returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.doneCh
}

// Run drives the state machine until Stop is called or ctx is
// cancelled. It always ends in Terminal with the fabric closed.
func (s *Supervisor) Run(ctx context.Context) {
	defer func() {
		s.Fabric.Close()
		s.setState(Terminal)
		close(s.doneCh)
	}()

	s.setState(Starting)
	for {
		select {
		case <-s.stopCh:
			s.setState(Stopping)
			return
		case <-ctx.Done():
			s.setState(Stopping)
			return
		default:
		}

		switch s.State() {
		case Starting:
			s.runOnce(ctx)
		case Faulted:
			s.setState(Waiting)
			if !s.wait(ctx) {
				s.setState(Stopping)
				return
			}
			s.setState(Starting)
		default:
			s.setState(Starting)
		}
	}
}

// runOnce spawns the transcoder and reads frames until it exits, then
// transitions to Faulted (the outer loop decides whether to retry).
func (s *Supervisor) runOnce(ctx context.Context) {
	proc := s.newProcess(s.spec, s.maxFrameSize(), s.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan transcoder.Frame, s.settings.ChannelBufferSize)
	runErr := make(chan error, 1)
	go func() { runErr <- proc.Run(runCtx, out) }()

	s.setState(Running)

	for {
		select {
		case fr, ok := <-out:
			if !ok {
				continue
			}
			published := fabric.Frame{Data: fr.Data, TimestampMs: fr.TimestampMs}
			s.Fabric.Publish(published)
			s.Snapshot.Update(snapshot.Frame{Data: fr.Data, TimestampMs: fr.TimestampMs})
		case err := <-runErr:
			if err != nil && s.logger != nil {
				s.logger.Printf("[supervisor] camera %s: transcoder exited: %v", s.spec.ID, err)
			}
			s.setState(Faulted)
			return
		case <-s.stopCh:
			proc.Stop(s.settings.ShutdownGrace)
			<-runErr
			s.setState(Stopping)
			return
		case <-ctx.Done():
			proc.Stop(s.settings.ShutdownGrace)
			<-runErr
			s.setState(Stopping)
			return
		}
	}
}

// wait sleeps for the reconnect interval, returning false if it was
// interrupted by shutdown rather than elapsing naturally.
func (s *Supervisor) wait(ctx context.Context) bool {
	interval := s.spec.ReconnectInterval
	if interval <= 0 {
		interval = s.settings.ReconnectInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) maxFrameSize() int {
	if s.settings.MaxFrameSize > 0 {
		return s.settings.MaxFrameSize
	}
	return config.Default().MaxFrameSize
}
