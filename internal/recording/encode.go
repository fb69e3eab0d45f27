package recording

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// encodeSegment invokes a short-lived ffmpeg process that reads the
// buffered JPEGs as an image2pipe stream on stdin and writes the
// encoded segment to stdout: the buffered frames for one segment window
// are encoded via a single bounded subprocess invocation rather than a
// long-lived read loop.
func encodeSegment(ctx context.Context, frames [][]byte, framerate int, extraArgs []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%d", framerate),
		"-i", "-",
	}
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stdin bytes.Buffer
	for _, f := range frames {
		stdin.Write(f)
	}
	cmd.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("recording: encode segment: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
