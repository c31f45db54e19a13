// Package metadatatest provides an in-memory stand-in for the external
// metadata tools.
package metadatatest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"media-library/internal/metadata"
)

// dateMarker separates file content from the date a Fake embeds in it.
var dateMarker = []byte("\x00capture-date=")

// Fake implements metadata.Extractor and metadata.Writer. Dates and
// failures are keyed by file base name. Writes are remembered per path so
// a later CaptureDate reads them back.
type Fake struct {
	mu sync.Mutex

	// DefaultDate is returned for files without an entry in Dates. Empty
	// means a null capture date.
	DefaultDate string
	Dates       map[string]string
	Dims        *metadata.Dimensions

	DateErrors  map[string]error
	DimsErrors  map[string]error
	WriteErrors map[string]error

	// WriteHook, if set, runs before every write and can fail it.
	WriteHook func(path, date string) error

	// EmbedDates makes writes change the file bytes, as a real metadata
	// rewrite does, so the content hash changes.
	EmbedDates bool

	written map[string]string
	writes  []string
}

// New returns a Fake whose files all report date and 640x480.
func New(date string) *Fake {
	return &Fake{
		DefaultDate: date,
		Dates:       map[string]string{},
		Dims:        &metadata.Dimensions{Width: 640, Height: 480},
		DateErrors:  map[string]error{},
		DimsErrors:  map[string]error{},
		WriteErrors: map[string]error{},
		written:     map[string]string{},
	}
}

// CaptureDate implements metadata.Extractor.
func (f *Fake) CaptureDate(_ context.Context, path string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, &metadata.Error{Kind: metadata.KindNotFound, Path: path, Err: err}
	}
	base := filepath.Base(path)
	if err := f.DateErrors[base]; err != nil {
		return nil, err
	}
	if date, ok := f.written[path]; ok {
		return &date, nil
	}
	date, ok := f.Dates[base]
	if !ok {
		date = f.DefaultDate
	}
	if date == "" {
		return nil, nil
	}
	return &date, nil
}

// Dimensions implements metadata.Extractor.
func (f *Fake) Dimensions(_ context.Context, path string) (*metadata.Dimensions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.DimsErrors[filepath.Base(path)]; err != nil {
		return nil, err
	}
	if f.Dims == nil {
		return nil, nil
	}
	dims := *f.Dims
	return &dims, nil
}

// WriteCaptureDate implements metadata.Writer.
func (f *Fake) WriteCaptureDate(_ context.Context, path, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = append(f.writes, fmt.Sprintf("%s=%s", filepath.Base(path), date))

	if _, err := os.Stat(path); err != nil {
		return &metadata.Error{Kind: metadata.KindNotFound, Path: path, Err: err}
	}
	if err := f.WriteErrors[filepath.Base(path)]; err != nil {
		return err
	}
	if f.WriteHook != nil {
		if err := f.WriteHook(path, date); err != nil {
			return err
		}
	}

	if f.EmbedDates {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if i := bytes.Index(data, dateMarker); i >= 0 {
			data = data[:i]
		}
		data = append(append(data, dateMarker...), date...)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}

	f.written[path] = date
	return nil
}

// Writes lists every write attempt as "<base name>=<date>" in call order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// WrittenDate returns the last date written to path.
func (f *Fake) WrittenDate(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	date, ok := f.written[path]
	return date, ok
}
