// Package transcoder wraps an external encoder subprocess that reads a
// camera source and writes a stream of concatenated JPEGs to stdout.
// Grounded on the three near-identical ffmpeg invocation sites in the
// teacher (internal/pipeline.cameraCapture.captureFFmpeg,
// internal/stream.MJPEGStream.captureFFmpeg,
// internal/camera.Camera.captureFrameWithFfmpeg), unified into one
// reusable wrapper — the generalization this module is meant to make.
package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"

	"vigil/internal/camera"
)

// LogStderrPolicy controls what happens to the child process's stderr.
type LogStderrPolicy int

const (
	LogStderrDiscard LogStderrPolicy = iota
	LogStderrConsole
	LogStderrFile
	LogStderrBoth
)

// ErrOversizedFrame is returned when a frame exceeds the configured
// max_frame_size; the caller (the Stream Supervisor) treats this as a
// connection failure and restarts the transcoder.
type ErrOversizedFrame struct {
	Limit int
}

func (e *ErrOversizedFrame) Error() string {
	return fmt.Sprintf("frame exceeds max_frame_size (%d bytes)", e.Limit)
}

// Frame is a single JPEG payload read from the child's stdout, stamped
// with the wall clock time it was fully read.
type Frame struct {
	Data        []byte
	TimestampMs int64
}

// Process supervises one child transcoder invocation for one camera.
type Process struct {
	spec          camera.Spec
	maxFrameSize  int
	stderrPolicy  LogStderrPolicy
	stderrWriter  io.Writer
	logger        *log.Logger

	cmd *exec.Cmd
}

// New creates a Process for the given camera spec. stderrWriter is used
// only when stderrPolicy is LogStderrFile or LogStderrBoth.
func New(spec camera.Spec, maxFrameSize int, stderrPolicy LogStderrPolicy, stderrWriter io.Writer, logger *log.Logger) *Process {
	return &Process{
		spec:         spec,
		maxFrameSize: maxFrameSize,
		stderrPolicy: stderrPolicy,
		stderrWriter: stderrWriter,
		logger:       logger,
	}
}

// buildArgs constructs the ffmpeg-style argument list from the camera's
// transcoder params, or returns the verbatim override with "$url"
// substituted when one is configured.
func (p *Process) buildArgs() []string {
	tc := p.spec.Transcoder
	if tc.Command != "" {
		expanded := strings.ReplaceAll(tc.Command, "$url", p.spec.SourceURL)
		return strings.Fields(expanded)
	}

	args := make([]string, 0, 16)
	if p.spec.Transport == camera.TransportRTSP {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, tc.InputArgs...)
	args = append(args, "-i", p.spec.SourceURL)
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg")
	if tc.Framerate > 0 {
		args = append(args, "-r", fmt.Sprintf("%d", tc.Framerate))
	}
	if tc.Scale != "" {
		args = append(args, "-s", tc.Scale)
	}
	quality := tc.Quality
	if quality <= 0 {
		quality = 5
	}
	args = append(args, "-q:v", fmt.Sprintf("%d", quality))
	args = append(args, tc.OutputArgs...)
	args = append(args, "-")
	return args
}

// Run starts the child process and streams parsed frames to out until
// the process exits, ctx is cancelled, or a framing error occurs. Run
// always returns once the stream ends; the caller (Stream Supervisor)
// decides whether to restart.
func (p *Process) Run(ctx context.Context, out chan<- Frame) error {
	args := p.buildArgs()
	p.cmd = exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcoder: stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("transcoder: stderr pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("transcoder: start: %w", err)
	}

	go p.consumeStderr(stderr)

	scanner := newJPEGScanner(p.maxFrameSize)
	reader := bufio.NewReaderSize(stdout, 64*1024)
	chunk := make([]byte, 32*1024)

	var runErr error
readLoop:
	for {
		n, readErr := reader.Read(chunk)
		if n > 0 {
			frames, scanErr := scanner.Feed(chunk[:n])
			now := time.Now().UnixMilli()
			for _, fr := range frames {
				select {
				case out <- Frame{Data: fr, TimestampMs: now}:
				case <-ctx.Done():
					runErr = ctx.Err()
					break readLoop
				}
			}
			if scanErr != nil {
				runErr = scanErr
				break readLoop
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				runErr = fmt.Errorf("transcoder: read: %w", readErr)
			}
			break
		}
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break readLoop
		default:
		}
	}

	_ = p.cmd.Wait()
	return runErr
}

// Stop sends a terminate signal to the child and force-kills it if it
// has not exited within grace.
func (p *Process) Stop(grace time.Duration) {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	done := make(chan struct{})
	proc := p.cmd.Process
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()
	_ = proc.Signal(terminateSignal())
	select {
	case <-done:
	case <-time.After(grace):
		_ = proc.Kill()
	}
}

func (p *Process) consumeStderr(r io.Reader) {
	if p.stderrPolicy == LogStderrDiscard {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch p.stderrPolicy {
		case LogStderrConsole:
			if p.logger != nil {
				p.logger.Printf("[transcoder] %s: %s", p.spec.ID, line)
			}
		case LogStderrFile:
			if p.stderrWriter != nil {
				fmt.Fprintln(p.stderrWriter, line)
			}
		case LogStderrBoth:
			if p.logger != nil {
				p.logger.Printf("[transcoder] %s: %s", p.spec.ID, line)
			}
			if p.stderrWriter != nil {
				fmt.Fprintln(p.stderrWriter, line)
			}
		}
	}
}
