package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	// Image format decoders for DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
)

// CaptureDate returns the file's capture date in library.DateLayout. Photos
// are read with exiftool and videos with ffprobe; when neither yields a
// date the file's modification time is used. It only fails when the file
// itself cannot be examined.
func (t *Tools) CaptureDate(ctx context.Context, path string) (*string, error) {
	if err := checkFile("", path, t.statFile); err != nil {
		return nil, err
	}

	var (
		date string
		err  error
	)
	switch mediatypes.KindOf(path) {
	case mediatypes.KindVideo:
		date, err = t.videoDate(ctx, path)
	default:
		date, err = t.photoDate(ctx, path)
	}
	if err != nil {
		logging.Debug("No embedded date for %s (%v), using modification time", path, err)
	}
	if date != "" {
		return &date, nil
	}

	info, err := t.statFile(path)
	if err != nil {
		return nil, &Error{Kind: KindFailed, Path: path, Err: err}
	}
	fallback := library.FormatDate(info.ModTime().Local())
	return &fallback, nil
}

func (t *Tools) photoDate(ctx context.Context, path string) (string, error) {
	out, err := t.invoke(ctx, t.ExifTool, "read_date", path, ProbeTimeout,
		"-DateTimeOriginal", "-s3", "-d", "%Y:%m:%d %H:%M:%S", path)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", nil
	}
	if _, err := library.ParseDate(value); err != nil {
		return "", &Error{Kind: KindCorrupted, Tool: t.ExifTool, Path: path, Err: err}
	}
	return value, nil
}

func (t *Tools) videoDate(ctx context.Context, path string) (string, error) {
	out, err := t.invoke(ctx, t.FFprobe, "read_date", path, ProbeTimeout,
		"-v", "quiet", "-show_entries", "format_tags=creation_time",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", nil
	}
	return parseContainerDate(value)
}

// parseContainerDate converts an ISO 8601 creation_time such as
// 2000-01-01T08:00:06.000000Z to library.DateLayout, keeping the wall clock
// as written.
func parseContainerDate(value string) (string, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return library.FormatDate(ts), nil
		}
	}
	return "", fmt.Errorf("unrecognized creation_time %q", value)
}

// Dimensions returns rendered width and height. A nil result with a nil
// error means the file carries no usable size.
func (t *Tools) Dimensions(ctx context.Context, path string) (*Dimensions, error) {
	if err := checkFile("", path, t.statFile); err != nil {
		return nil, err
	}

	if mediatypes.KindOf(path) == mediatypes.KindVideo {
		return t.videoDimensions(ctx, path)
	}
	return t.photoDimensions(ctx, path)
}

type ffprobeStreams struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (t *Tools) videoDimensions(ctx context.Context, path string) (*Dimensions, error) {
	out, err := t.invoke(ctx, t.FFprobe, "read_dimensions", path, ProbeTimeout,
		"-v", "quiet", "-print_format", "json", "-show_streams", path)
	if err != nil {
		return nil, err
	}

	var probe ffprobeStreams
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, &Error{Kind: KindCorrupted, Tool: t.FFprobe, Path: path, Err: err}
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return &Dimensions{Width: s.Width, Height: s.Height}, nil
		}
	}
	return nil, nil
}

type exifSize struct {
	ImageWidth  int `json:"ImageWidth"`
	ImageHeight int `json:"ImageHeight"`
	Orientation int `json:"Orientation"`
}

func (t *Tools) readExifSize(ctx context.Context, path string) (*exifSize, error) {
	out, err := t.invoke(ctx, t.ExifTool, "read_dimensions", path, ProbeTimeout,
		"-j", "-n", "-ImageWidth", "-ImageHeight", "-Orientation", path)
	if err != nil {
		return nil, err
	}

	var rows []exifSize
	if err := json.Unmarshal(out, &rows); err != nil || len(rows) == 0 {
		return nil, &Error{Kind: KindCorrupted, Tool: t.ExifTool, Path: path, Err: fmt.Errorf("unexpected exiftool output: %v", err)}
	}
	return &rows[0], nil
}

func (t *Tools) photoDimensions(ctx context.Context, path string) (*Dimensions, error) {
	dims, decodeErr := decodeDimensions(path)

	exif, exifErr := t.readExifSize(ctx, path)
	if exifErr != nil {
		logging.Debug("exiftool size probe failed for %s: %v", path, exifErr)
	}

	if dims == nil {
		if exif == nil || exif.ImageWidth == 0 || exif.ImageHeight == 0 {
			if decodeErr != nil && exifErr != nil {
				return nil, exifErr
			}
			return nil, nil
		}
		dims = &Dimensions{Width: exif.ImageWidth, Height: exif.ImageHeight}
	}

	if exif != nil && swapsAxes(exif.Orientation) {
		dims.Width, dims.Height = dims.Height, dims.Width
	}
	return dims, nil
}

// swapsAxes reports whether an EXIF orientation rotates by 90 or 270 degrees.
func swapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// decodeDimensions returns image dimensions without fully decoding the image.
func decodeDimensions(path string) (*Dimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}
	return &Dimensions{Width: config.Width, Height: config.Height}, nil
}
