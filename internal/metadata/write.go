package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
)

// WriteCaptureDate embeds date into the file at path. Photos get the three
// EXIF date fields rewritten in place and read back; videos are remuxed
// with a new creation_time through a temporary sibling file.
func (t *Tools) WriteCaptureDate(ctx context.Context, path, date string) error {
	if _, err := library.ParseDate(date); err != nil {
		return &Error{Kind: KindFailed, Path: path, Err: err}
	}

	ext := mediatypes.Ext(path)
	switch mediatypes.GetKind(ext) {
	case mediatypes.KindVideo:
		if !mediatypes.SupportsDateWrite(ext) {
			return &Error{Kind: KindUnsupported, Tool: t.FFmpeg, Path: path,
				Err: fmt.Errorf("format %s does not support embedded metadata", strings.ToUpper(ext))}
		}
		if err := checkFile(t.FFmpeg, path, t.statFile); err != nil {
			return err
		}
		return t.writeVideoDate(ctx, path, date)
	case mediatypes.KindPhoto:
		if err := checkFile(t.ExifTool, path, t.statFile); err != nil {
			return err
		}
		return t.writePhotoDate(ctx, path, date)
	default:
		return &Error{Kind: KindUnsupported, Path: path, Err: fmt.Errorf("not a media file")}
	}
}

func (t *Tools) writePhotoDate(ctx context.Context, path, date string) error {
	_, err := t.invoke(ctx, t.ExifTool, "write_date", path, ExifWriteTimeout,
		"-DateTimeOriginal="+date,
		"-CreateDate="+date,
		"-ModifyDate="+date,
		"-overwrite_original", "-P", path)
	if err != nil {
		return err
	}

	out, err := t.invoke(ctx, t.ExifTool, "verify_date", path, ProbeTimeout,
		"-DateTimeOriginal", "-s3", path)
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(out)); got != date {
		return &Error{Kind: KindConflict, Tool: t.ExifTool, Path: path,
			Err: fmt.Errorf("wrote %q, read back %q", date, got)}
	}
	logging.Debug("Verified DateTimeOriginal %s on %s", date, path)
	return nil
}

func (t *Tools) writeVideoDate(ctx context.Context, path, date string) error {
	iso, err := library.ISODate(date)
	if err != nil {
		return &Error{Kind: KindFailed, Path: path, Err: err}
	}

	ext := filepath.Ext(path)
	temp := strings.TrimSuffix(path, ext) + "_temp" + ext

	_, err = t.invoke(ctx, t.FFmpeg, "write_date", path, VideoWriteTimeout,
		"-i", path,
		"-metadata", "creation_time="+iso,
		"-codec", "copy",
		"-y", temp)
	if err != nil {
		removeTemp(temp)
		return err
	}

	if err := os.Rename(temp, path); err != nil {
		removeTemp(temp)
		return &Error{Kind: KindFailed, Tool: t.FFmpeg, Path: path, Err: fmt.Errorf("replace original: %w", err)}
	}
	return nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove temporary file %s: %v", path, err)
	}
}
