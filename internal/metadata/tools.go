package metadata

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// Tool invocation timeouts.
const (
	ProbeTimeout      = 5 * time.Second
	ExifWriteTimeout  = 30 * time.Second
	VideoWriteTimeout = 60 * time.Second
	FrameTimeout      = 30 * time.Second
)

// Extractor reads capture dates and rendered dimensions.
type Extractor interface {
	CaptureDate(ctx context.Context, path string) (*string, error)
	Dimensions(ctx context.Context, path string) (*Dimensions, error)
}

// Writer rewrites the capture date embedded in a file.
type Writer interface {
	WriteCaptureDate(ctx context.Context, path, date string) error
}

// Dimensions is a width and height as the media renders, after any EXIF
// orientation is applied.
type Dimensions struct {
	Width  int
	Height int
}

// runFunc runs a command and returns its stdout. On failure the error wraps
// the exec error and carries stderr in its message.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Tools implements Extractor and Writer with exiftool, ffprobe and ffmpeg.
type Tools struct {
	ExifTool string
	FFprobe  string
	FFmpeg   string

	run  runFunc
	stat func(string) (fs.FileInfo, error)
}

// NewTools returns Tools that resolve the binaries from PATH.
func NewTools() *Tools {
	return &Tools{
		ExifTool: "exiftool",
		FFprobe:  "ffprobe",
		FFmpeg:   "ffmpeg",
		run:      execRun,
		stat: func(p string) (fs.FileInfo, error) {
			return filesystem.StatWithRetry(p, filesystem.DefaultRetryConfig())
		},
	}
}

// Available reports which tools can be found, keyed by tool name.
func (t *Tools) Available() map[string]bool {
	found := make(map[string]bool, 3)
	for _, name := range []string{t.ExifTool, t.FFprobe, t.FFmpeg} {
		_, err := exec.LookPath(name)
		found[name] = err == nil
	}
	return found
}

// invoke runs tool with a timeout and records duration and failures.
func (t *Tools) invoke(ctx context.Context, tool, operation, path string, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := t.run(ctx, tool, args...)
	metrics.MetadataToolDuration.WithLabelValues(tool, operation).Observe(time.Since(start).Seconds())

	if err != nil {
		me := classify(tool, path, err, ctx.Err())
		metrics.MetadataToolErrors.WithLabelValues(tool, me.Kind.String()).Inc()
		logging.Debug("%s %s failed for %s: %v", tool, operation, path, err)
		return out, me
	}
	return out, nil
}

func (t *Tools) statFile(path string) (fs.FileInfo, error) {
	if t.stat != nil {
		return t.stat(path)
	}
	return os.Stat(path)
}
