package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/engine"
	"vigil/internal/store"
)

func main() {
	var (
		dbPathF     = flag.String("db", "", "path to the SQLite metadata database (overrides DATABASE_PATH)")
		camerasF    = flag.String("cameras", "", "path to a JSON file listing camera.Spec entries (overrides CAMERA_CONFIG)")
		recordRootF = flag.String("recording-root", "", "filesystem root for recorded payloads (overrides RECORDING_ROOT)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[vigil] ", log.Ltime)

	dbPath := *dbPathF
	if dbPath == "" {
		dbPath = os.Getenv("DATABASE_PATH")
	}
	if dbPath == "" {
		dbPath = "vigil.db"
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logger.Fatalf("failed to open database at %s: %v", dbPath, err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		logger.Fatalf("failed to run database migrations: %v", err)
	}
	logger.Printf("database ready at %s", dbPath)

	settings := config.Default()
	if root := *recordRootF; root != "" {
		settings.RecordingRoot = root
	} else if root := os.Getenv("RECORDING_ROOT"); root != "" {
		settings.RecordingRoot = root
	}
	if err := os.MkdirAll(settings.RecordingRoot, 0o755); err != nil {
		logger.Fatalf("failed to create recording root %s: %v", settings.RecordingRoot, err)
	}

	camerasPath := *camerasF
	if camerasPath == "" {
		camerasPath = os.Getenv("CAMERA_CONFIG")
	}
	specs, err := loadCameraSpecs(camerasPath)
	if err != nil {
		logger.Fatalf("failed to load camera config: %v", err)
	}

	core := engine.New(st, settings, logger)

	ctx, cancel := context.WithCancel(context.Background())

	for _, spec := range specs {
		core.ApplyCameraSpec(ctx, spec)
		logger.Printf("camera %s applied (enabled=%v, source=%s)", spec.ID, spec.Enabled, spec.SourceURL)
	}
	core.StartBackgroundTasks(ctx)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigc
	logger.Printf("received %v, shutting down", sig)

	cancel()
	core.Shutdown()
	logger.Println("exited")
}

// loadCameraSpecs reads a JSON array of camera.Spec from path. An empty
// path is not an error: the core simply starts with no cameras, useful
// for a process whose config layer pushes specs in later.
func loadCameraSpecs(path string) ([]camera.Spec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var specs []camera.Spec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return specs, nil
}
