package recording

import (
	"context"
	"log"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/fabric"
	"vigil/internal/store"
)

// Engine wires the three recording sinks and the retention cleaner to
// one camera's fabric. One Engine instance serves every enabled camera;
// per-camera state lives in cameraSinks, following the single-registry
// pattern internal/supervisor.Registry also uses.
type Engine struct {
	store    *store.Store
	settings config.Settings
	logger   *log.Logger
	hlsBlob  Blob
	mp4Blob  Blob

	mu      sync.Mutex
	cameras map[string]*cameraSinks
}

type cameraSinks struct {
	cameraID string
	cancel   context.CancelFunc
	recorder *FrameRecorder
	hls      *hlsSegmenter
	mp4      *mp4Segmenter
}

// New creates a recording Engine backed by store, using the configured
// storage backends for HLS and MP4 payloads.
func New(st *store.Store, settings config.Settings, logger *log.Logger) *Engine {
	e := &Engine{
		store:    st,
		settings: settings,
		logger:   logger,
		cameras:  make(map[string]*cameraSinks),
	}
	e.hlsBlob = e.backendFor(settings.HLSStorage)
	e.mp4Blob = e.backendFor(settings.MP4Storage)
	return e
}

func (e *Engine) backendFor(kind string) Blob {
	if kind == store.StorageDatabase {
		e.store.EnsureBlobTable()
		return &DatabaseBlob{Store: e.store}
	}
	return &FilesystemBlob{Root: e.settings.RecordingRoot}
}

// StartCamera subscribes the three sinks to fab and begins their run
// loops; it is idempotent for a camera already started.
func (e *Engine) StartCamera(ctx context.Context, cameraID string, fab *fabric.Fabric) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cameras[cameraID]; ok {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	cs := &cameraSinks{cameraID: cameraID, cancel: cancel}

	cs.recorder = newFrameRecorder(cameraID, e.store, e.logger)
	cs.hls = newHLSSegmenter(cameraID, e.store, e.hlsBlob, e.settings, e.logger)
	cs.mp4 = newMP4Segmenter(cameraID, e.store, e.mp4Blob, e.settings, e.logger)

	go cs.recorder.run(runCtx, fab.Subscribe())
	go cs.hls.run(runCtx, fab.Subscribe())
	go cs.mp4.run(runCtx, fab.Subscribe())

	e.cameras[cameraID] = cs
}

// StopCamera cancels a camera's sinks and forgets it.
func (e *Engine) StopCamera(cameraID string) {
	e.mu.Lock()
	cs, ok := e.cameras[cameraID]
	if ok {
		delete(e.cameras, cameraID)
	}
	e.mu.Unlock()
	if ok {
		cs.cancel()
	}
}

// StartSession begins a new recording session for a camera and arms the
// frame recorder to persist subsequent frames.
func (e *Engine) StartSession(cameraID, reason string) (store.Session, error) {
	sess, err := e.store.CreateSession(cameraID, reason)
	if err != nil {
		return store.Session{}, err
	}
	if cs, ok := e.cameraSinksFor(cameraID); ok {
		cs.recorder.setActiveSession(sess.ID)
	}
	return sess, nil
}

// StopSession ends a camera's active session and disarms the recorder.
func (e *Engine) StopSession(cameraID string) error {
	active, err := e.store.ActiveSession(cameraID)
	if err != nil {
		return err
	}
	if active == nil {
		return store.ErrNotFound
	}
	if err := e.store.StopSession(active.ID); err != nil {
		return err
	}
	if cs, ok := e.cameraSinksFor(cameraID); ok {
		cs.recorder.clearActiveSession()
	}
	return nil
}

func (e *Engine) ActiveSession(cameraID string) (*store.Session, error) {
	return e.store.ActiveSession(cameraID)
}

func (e *Engine) SetKeep(sessionID int64, keep bool) error {
	return e.store.SetKeep(sessionID, keep)
}

func (e *Engine) ListSessions(cameraID string, filter store.SessionFilter) ([]store.Session, error) {
	return e.store.ListSessions(cameraID, filter)
}

// MP4Blob exposes the configured MP4 storage backend, so the HLS
// Timerange Compiler can read the same payloads the MP4 Segmenter wrote.
func (e *Engine) MP4Blob() Blob {
	return e.mp4Blob
}

func (e *Engine) cameraSinksFor(cameraID string) (*cameraSinks, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.cameras[cameraID]
	return cs, ok
}

// StartRetentionCleaner launches the scheduled cleanup loop until ctx is
// cancelled.
func (e *Engine) StartRetentionCleaner(ctx context.Context, cameraIDs func() []string) {
	interval := e.settings.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	cleaner := &Cleaner{
		store:    e.store,
		hlsBlob:  e.hlsBlob,
		mp4Blob:  e.mp4Blob,
		settings: e.settings,
		logger:   e.logger,
	}
	go cleaner.run(ctx, interval, cameraIDs)
}
