package metadata

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and answers them through respond.
type fakeRunner struct {
	calls   []call
	respond func(name string, args []string) ([]byte, error)
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(name, args)
}

func newTestTools(f *fakeRunner) *Tools {
	return &Tools{ExifTool: "exiftool", FFprobe: "ffprobe", FFmpeg: "ffmpeg", run: f.run}
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	return p
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

var errMissingTool = &exec.Error{Name: "exiftool", Err: exec.ErrNotFound}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		ctxErr error
		want   ErrorKind
	}{
		{"timeout", errors.New("signal: killed"), context.DeadlineExceeded, KindTimeout},
		{"missing tool", errMissingTool, nil, KindToolMissing},
		{"exit status", fmt.Errorf("wrapped: %w", &exec.ExitError{}), nil, KindCorrupted},
		{"permission", fs.ErrPermission, nil, KindPermission},
		{"other", errors.New("boom"), nil, KindFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("exiftool", "/x.jpg", tt.err, tt.ctxErr)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "failed", KindFailed.String())
	assert.Equal(t, "missing_tool", KindToolMissing.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "unsupported", KindUnsupported.String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("edit: %w", &Error{Kind: KindTimeout})))
	assert.Equal(t, KindFailed, KindOf(errors.New("plain")))
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()

	err := checkFile("exiftool", filepath.Join(dir, "missing.jpg"), os.Stat)
	assert.Equal(t, KindNotFound, KindOf(err))

	err = checkFile("exiftool", dir, os.Stat)
	assert.Equal(t, KindUnsupported, KindOf(err))

	assert.NoError(t, checkFile("exiftool", touch(t, dir, "a.jpg"), os.Stat))
}

func TestCaptureDate_Photo(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) {
		return []byte("2021:03:04 05:06:07\n"), nil
	}}

	date, err := newTestTools(f).CaptureDate(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, date)
	assert.Equal(t, "2021:03:04 05:06:07", *date)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "exiftool", f.calls[0].name)
	assert.Contains(t, f.calls[0].args, "-DateTimeOriginal")
}

func TestCaptureDate_Video(t *testing.T) {
	path := touch(t, t.TempDir(), "clip.mp4")
	f := &fakeRunner{respond: func(name string, args []string) ([]byte, error) {
		return []byte("2000-01-01T08:00:06.000000Z\n"), nil
	}}

	date, err := newTestTools(f).CaptureDate(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "2000:01:01 08:00:06", *date)
	assert.Equal(t, "ffprobe", f.calls[0].name)
}

func TestCaptureDate_FallsBackToModTime(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	mtime := time.Date(2019, 7, 8, 9, 10, 11, 0, time.Local)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	for name, respond := range map[string]func(string, []string) ([]byte, error){
		"tool missing": func(string, []string) ([]byte, error) { return nil, errMissingTool },
		"no tag":       func(string, []string) ([]byte, error) { return []byte("\n"), nil },
		"garbage":      func(string, []string) ([]byte, error) { return []byte("not a date"), nil },
	} {
		t.Run(name, func(t *testing.T) {
			date, err := newTestTools(&fakeRunner{respond: respond}).CaptureDate(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, "2019:07:08 09:10:11", *date)
		})
	}
}

func TestCaptureDate_MissingFile(t *testing.T) {
	f := &fakeRunner{}
	_, err := newTestTools(f).CaptureDate(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Empty(t, f.calls, "no tool runs for a missing file")
}

func TestParseContainerDate(t *testing.T) {
	got, err := parseContainerDate("2024-12-31T23:59:59Z")
	require.NoError(t, err)
	assert.Equal(t, "2024:12:31 23:59:59", got)

	got, err = parseContainerDate("2024-12-31 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "2024:12:31 23:59:59", got)

	_, err = parseContainerDate("yesterday")
	assert.Error(t, err)
}

func TestDimensions_DecodedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 40, 30)
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) {
		return []byte(`[{"ImageWidth":40,"ImageHeight":30,"Orientation":1}]`), nil
	}}

	dims, err := newTestTools(f).Dimensions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, &Dimensions{Width: 40, Height: 30}, dims)
}

func TestDimensions_OrientationSwapsAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 40, 30)
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) {
		return []byte(`[{"ImageWidth":40,"ImageHeight":30,"Orientation":6}]`), nil
	}}

	dims, err := newTestTools(f).Dimensions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, &Dimensions{Width: 30, Height: 40}, dims)
}

func TestDimensions_ExifFallback(t *testing.T) {
	path := touch(t, t.TempDir(), "a.heic")
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) {
		return []byte(`[{"ImageWidth":4032,"ImageHeight":3024}]`), nil
	}}

	dims, err := newTestTools(f).Dimensions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, &Dimensions{Width: 4032, Height: 3024}, dims)
}

func TestDimensions_Unknown(t *testing.T) {
	path := touch(t, t.TempDir(), "a.heic")
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) { return nil, errMissingTool }}

	dims, err := newTestTools(f).Dimensions(context.Background(), path)
	assert.Nil(t, dims)
	assert.Equal(t, KindToolMissing, KindOf(err))
}

func TestDimensions_Video(t *testing.T) {
	path := touch(t, t.TempDir(), "clip.mov")
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) {
		return []byte(`{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1920,"height":1080}]}`), nil
	}}

	dims, err := newTestTools(f).Dimensions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, &Dimensions{Width: 1920, Height: 1080}, dims)
}

func TestWriteCaptureDate_Photo(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	const date = "2022:02:02 10:00:00"
	f := &fakeRunner{respond: func(name string, args []string) ([]byte, error) {
		if args[0] == "-DateTimeOriginal" {
			return []byte(date + "\n"), nil
		}
		return []byte("1 image files updated"), nil
	}}

	require.NoError(t, newTestTools(f).WriteCaptureDate(context.Background(), path, date))
	require.Len(t, f.calls, 2)
	assert.Contains(t, f.calls[0].args, "-DateTimeOriginal="+date)
	assert.Contains(t, f.calls[0].args, "-CreateDate="+date)
	assert.Contains(t, f.calls[0].args, "-ModifyDate="+date)
	assert.Contains(t, f.calls[0].args, "-overwrite_original")
}

func TestWriteCaptureDate_ReadBackMismatch(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	f := &fakeRunner{respond: func(name string, args []string) ([]byte, error) {
		return []byte("1999:01:01 00:00:00"), nil
	}}

	err := newTestTools(f).WriteCaptureDate(context.Background(), path, "2022:02:02 10:00:00")
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestWriteCaptureDate_ToolMissing(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	f := &fakeRunner{respond: func(string, []string) ([]byte, error) { return nil, errMissingTool }}

	err := newTestTools(f).WriteCaptureDate(context.Background(), path, "2022:02:02 10:00:00")
	assert.Equal(t, KindToolMissing, KindOf(err))
}

func TestWriteCaptureDate_UnsupportedContainer(t *testing.T) {
	path := touch(t, t.TempDir(), "old.AVI")
	f := &fakeRunner{}

	err := newTestTools(f).WriteCaptureDate(context.Background(), path, "2022:02:02 10:00:00")
	assert.Equal(t, KindUnsupported, KindOf(err))
	assert.Empty(t, f.calls)
}

func TestWriteCaptureDate_InvalidDate(t *testing.T) {
	path := touch(t, t.TempDir(), "a.jpg")
	err := newTestTools(&fakeRunner{}).WriteCaptureDate(context.Background(), path, "2022-02-02")
	assert.Error(t, err)
}

func TestWriteCaptureDate_Video(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "clip.mp4")
	f := &fakeRunner{respond: func(name string, args []string) ([]byte, error) {
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte("remuxed"), 0o644)
	}}

	require.NoError(t, newTestTools(f).WriteCaptureDate(context.Background(), path, "2022:02:02 10:00:00"))

	require.Len(t, f.calls, 1)
	assert.Contains(t, f.calls[0].args, "creation_time=2022-02-02T10:00:00")
	assert.True(t, strings.HasSuffix(f.calls[0].args[len(f.calls[0].args)-1], "clip_temp.mp4"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remuxed", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "clip_temp.mp4"))
}

func TestWriteCaptureDate_VideoFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "clip.mp4")
	f := &fakeRunner{respond: func(name string, args []string) ([]byte, error) {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return nil, errors.New("muxer failed")
	}}

	err := newTestTools(f).WriteCaptureDate(context.Background(), path, "2022:02:02 10:00:00")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "clip_temp.mp4"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data), "original must be untouched")
}

func TestExtractFrame_RetriesFromStart(t *testing.T) {
	dir := t.TempDir()
	video := touch(t, dir, "clip.mp4")
	dest := filepath.Join(dir, "frames", "f.jpg")
	f := &fakeRunner{}
	f.respond = func(name string, args []string) ([]byte, error) {
		if args[0] == "-ss" {
			return nil, errors.New("seek past end")
		}
		return nil, os.WriteFile(args[len(args)-1], []byte("jpeg"), 0o644)
	}

	require.NoError(t, newTestTools(f).ExtractFrame(context.Background(), video, dest))
	assert.Len(t, f.calls, 2)
	assert.FileExists(t, dest)
}
