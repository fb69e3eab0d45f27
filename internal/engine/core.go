package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vigil/internal/auth"
	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/control"
	"vigil/internal/fabric"
	"vigil/internal/hlscompile"
	"vigil/internal/playback"
	"vigil/internal/recording"
	"vigil/internal/store"
	"vigil/internal/supervisor"
)

// Core wires every component behind a set of plain Go methods that form
// the system's external interface.
type Core struct {
	settings config.Settings
	logger   *log.Logger

	registry  *supervisor.Registry
	recording *recording.Engine
	store     *store.Store
	authn     *auth.Authenticator
	hls       *hlscompile.Compiler

	mu    sync.RWMutex
	specs map[string]camera.Spec
}

// New constructs a Core. st must already be migrated.
func New(st *store.Store, settings config.Settings, logger *log.Logger) *Core {
	rec := recording.New(st, settings, logger)
	return &Core{
		settings:  settings,
		logger:    logger,
		registry:  supervisor.NewRegistry(settings, logger),
		recording: rec,
		store:     st,
		authn:     auth.NewAuthenticator(),
		hls:       hlscompile.New(st, rec.MP4Blob(), settings.RecordingRoot+"/hlscompile-work", logger),
		specs:     make(map[string]camera.Spec),
	}
}

// StartBackgroundTasks launches the retention cleaner and the HLS
// compiler's cache sweep, both running until ctx is cancelled.
func (c *Core) StartBackgroundTasks(ctx context.Context) {
	c.recording.StartRetentionCleaner(ctx, c.cameraIDs)
	go c.hls.Run(ctx, time.Hour)
}

func (c *Core) cameraIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.specs))
	for id, spec := range c.specs {
		if spec.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyCameraSpec reacts to one config-layer update: the core restarts
// the supervisor and (re)wires recording for field changes, and is a
// no-op for an identical spec.
func (c *Core) ApplyCameraSpec(ctx context.Context, spec camera.Spec) {
	c.mu.Lock()
	prev, had := c.specs[spec.ID]
	c.specs[spec.ID] = spec
	c.mu.Unlock()

	c.registry.Apply(ctx, spec)

	if !spec.Enabled {
		c.recording.StopCamera(spec.ID)
		return
	}
	if had && !prev.Equal(spec) {
		// The supervisor and its fabric were rebuilt; drop the sinks
		// attached to the old fabric so they resubscribe below.
		c.recording.StopCamera(spec.ID)
	}
	if sup, ok := c.registry.Get(spec.ID); ok {
		c.recording.StartCamera(ctx, spec.ID, sup.Fabric)
	}
}

func (c *Core) lookupSpec(cameraID string) (camera.Spec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[cameraID]
	return spec, ok
}

func (c *Core) checkCameraKnown(cameraID string) error {
	spec, ok := c.lookupSpec(cameraID)
	if !ok {
		return ErrCameraUnknown
	}
	if !spec.Enabled {
		return ErrCameraDisabled
	}
	return nil
}

// Subscribe returns a live-frame subscription for cameraID: a stream of
// (timestamp_ms, jpeg_bytes) frames gated by an optional auth token.
func (c *Core) Subscribe(cameraID, authToken string) (*fabric.Subscription, error) {
	if err := c.checkCameraKnown(cameraID); err != nil {
		return nil, err
	}
	if err := c.checkToken(cameraID, authToken, auth.ScopeLive); err != nil {
		return nil, err
	}
	sup, ok := c.registry.Get(cameraID)
	if !ok {
		return nil, ErrCameraUnknown
	}
	return sup.Fabric.Subscribe(), nil
}

// checkToken enforces the camera's configured AccessToken, if any,
// requiring the presented token to grant at least required.
func (c *Core) checkToken(cameraID, authToken string, required auth.Scope) error {
	spec, _ := c.lookupSpec(cameraID)
	if spec.AccessToken == "" {
		return nil
	}
	if authToken == "" {
		return ErrAuthRejected
	}
	if err := c.authn.VerifyAccessToken(cameraID, authToken, required); err != nil {
		return ErrAuthRejected
	}
	return nil
}

// LatestFrame returns the most recent (timestamp_ms, jpeg_bytes) frame
// for cameraID, or ErrNotFound if none arrives within the configured
// snapshot wait budget.
func (c *Core) LatestFrame(ctx context.Context, cameraID string) (int64, []byte, error) {
	if err := c.checkCameraKnown(cameraID); err != nil {
		return 0, nil, err
	}
	sup, ok := c.registry.Get(cameraID)
	if !ok {
		return 0, nil, ErrCameraUnknown
	}
	frame, ok := sup.Snapshot.Wait(ctx, c.settings.SnapshotWait)
	if !ok {
		return 0, nil, ErrNotFound
	}
	return frame.TimestampMs, frame.Data, nil
}

// OpenControlConnection hands an already-upgraded websocket connection
// to a fresh control.Session wired to a new playback.Engine for
// cameraID.
func (c *Core) OpenControlConnection(ctx context.Context, conn *websocket.Conn, cameraID, authToken string) error {
	if err := c.checkCameraKnown(cameraID); err != nil {
		conn.Close()
		return err
	}
	if err := c.checkToken(cameraID, authToken, auth.ScopeControl); err != nil {
		conn.Close()
		return err
	}
	sup, ok := c.registry.Get(cameraID)
	if !ok {
		conn.Close()
		return ErrCameraUnknown
	}

	eng := playback.New(cameraID, c.store)
	sess := control.NewSession(conn, cameraID, eng, sup.Fabric, c.logger)
	go sess.Run(ctx)
	return nil
}

// IssueAccessToken mints a per-camera bearer token granting scope.
func (c *Core) IssueAccessToken(cameraID string, scope auth.Scope, ttl time.Duration) (string, error) {
	if _, ok := c.lookupSpec(cameraID); !ok {
		return "", ErrCameraUnknown
	}
	return c.authn.IssueAccessToken(cameraID, scope, ttl)
}

// VerifyAccessToken checks a token against a camera, requiring it grant
// at least required.
func (c *Core) VerifyAccessToken(cameraID, token string, required auth.Scope) error {
	if err := c.authn.VerifyAccessToken(cameraID, token, required); err != nil {
		return ErrAuthRejected
	}
	return nil
}

// StartSession begins recording for cameraID.
func (c *Core) StartSession(cameraID, reason string) (store.Session, error) {
	if err := c.checkCameraKnown(cameraID); err != nil {
		return store.Session{}, err
	}
	sess, err := c.recording.StartSession(cameraID, reason)
	if errors.Is(err, store.ErrSessionConflict) {
		return store.Session{}, ErrSessionConflict
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return sess, nil
}

// StopSession ends the active recording session for cameraID.
func (c *Core) StopSession(cameraID string) error {
	err := c.recording.StopSession(cameraID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ActiveSession reports the currently active session, if any.
func (c *Core) ActiveSession(cameraID string) (*store.Session, error) {
	return c.recording.ActiveSession(cameraID)
}

// SetKeep marks a session's recordings as exempt from retention cleanup.
func (c *Core) SetKeep(sessionID int64, keep bool) error {
	return c.recording.SetKeep(sessionID, keep)
}

// ListSessions lists recording sessions for a camera.
func (c *Core) ListSessions(cameraID string, filter store.SessionFilter) ([]store.Session, error) {
	return c.recording.ListSessions(cameraID, filter)
}

// ListFrames lists the persisted frames of one session.
func (c *Core) ListFrames(sessionID int64, from, to *int64) ([]store.FrameRecord, error) {
	return c.store.ListFrames(sessionID, from, to)
}

// GetFrame finds the frame nearest ts within tolerance milliseconds.
func (c *Core) GetFrame(cameraID string, ts, toleranceMs int64) (*store.FrameRecord, error) {
	rec, err := c.store.GetFrame(cameraID, ts, toleranceMs)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// DBSize reports the total frame payload bytes stored for a camera.
func (c *Core) DBSize(cameraID string) (int64, error) {
	return c.store.DBSize(cameraID)
}

// ListMP4Segments lists recorded MP4 segments for a camera.
func (c *Core) ListMP4Segments(cameraID string, filter store.MP4Filter) ([]store.MP4Segment, error) {
	return c.store.ListMP4Segments(cameraID, filter)
}

// OpenMP4Segment opens one stored MP4 segment's payload by its storage
// location.
func (c *Core) OpenMP4Segment(location string) (io.ReadCloser, error) {
	return c.recording.MP4Blob().Open(location)
}

// CompileHLSPlaylist builds an on-demand HLS playlist for [t1, t2].
func (c *Core) CompileHLSPlaylist(ctx context.Context, cameraID string, t1, t2 time.Time, segmentDuration time.Duration) (string, []byte, error) {
	if err := c.checkCameraKnown(cameraID); err != nil {
		return "", nil, err
	}
	playlistID, manifest, err := c.hls.Compile(ctx, cameraID, t1, t2, segmentDuration)
	if errors.Is(err, hlscompile.ErrNoSegments) {
		return "", nil, ErrNotFound
	}
	return playlistID, manifest, err
}

// OpenHLSSubSegment opens a cached sub-segment from a compiled playlist.
func (c *Core) OpenHLSSubSegment(cameraID, playlistID, name string) (io.ReadCloser, error) {
	r, err := c.hls.OpenSubSegment(cameraID, playlistID, name)
	if errors.Is(err, hlscompile.ErrUnknownPlaylist) {
		return nil, ErrNotFound
	}
	return r, err
}

// Shutdown stops every supervisor, draining within their shutdown
// grace, then tears down the registry.
func (c *Core) Shutdown() {
	c.registry.Shutdown()
}
