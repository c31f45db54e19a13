package metadata

import (
	"context"
	"os"
	"path/filepath"
)

// ExtractFrame writes a single JPEG frame of video to dest, taken one second
// in or from the first frame for shorter clips.
func (t *Tools) ExtractFrame(ctx context.Context, video, dest string) error {
	if err := checkFile(t.FFmpeg, video, t.statFile); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Kind: KindFailed, Tool: t.FFmpeg, Path: video, Err: err}
	}

	_, err := t.invoke(ctx, t.FFmpeg, "extract_frame", video, FrameTimeout,
		"-ss", "00:00:01", "-i", video, "-vframes", "1", "-q:v", "2", "-y", dest)
	if err == nil && fileNotEmpty(dest) {
		return nil
	}

	_, err = t.invoke(ctx, t.FFmpeg, "extract_frame", video, FrameTimeout,
		"-i", video, "-vframes", "1", "-q:v", "2", "-y", dest)
	if err != nil {
		removeTemp(dest)
		return err
	}
	if !fileNotEmpty(dest) {
		return &Error{Kind: KindCorrupted, Tool: t.FFmpeg, Path: video, Err: os.ErrNotExist}
	}
	return nil
}

func fileNotEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
