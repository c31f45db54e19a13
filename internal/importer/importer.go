package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/hashing"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
	"media-library/internal/startup"
	"media-library/internal/thumbnails"
)

// Category classifies why a file was rejected after it was copied.
type Category string

// Rejection categories
const (
	CategoryTimeout     Category = "timeout"
	CategoryDuplicate   Category = "duplicate"
	CategoryCorrupted   Category = "corrupted"
	CategoryMissingTool Category = "missing_tool"
	CategoryUnsupported Category = "unsupported"
	CategoryPermission  Category = "permission"
)

var categoryReasons = map[Category]string{
	CategoryTimeout:     "Processing timeout (file too large or slow storage)",
	CategoryDuplicate:   "Duplicate file (detected after processing)",
	CategoryCorrupted:   "File corrupted or invalid format",
	CategoryMissingTool: "Required tool not installed",
	CategoryUnsupported: "Capture date cannot be written to this file",
	CategoryPermission:  "Permission denied",
}

// EventType distinguishes the events of an import stream.
type EventType string

// Event types
const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventRejected EventType = "rejected"
	EventComplete EventType = "complete"
)

// Event is one element of the import stream. Counts are running totals.
type Event struct {
	Type       EventType `json:"type"`
	Current    int       `json:"current,omitempty"`
	Total      int       `json:"total"`
	Imported   int       `json:"imported"`
	Duplicates int       `json:"duplicates"`
	Errors     int       `json:"errors"`
	ID         int64     `json:"photo_id,omitempty"`
	File       string    `json:"file,omitempty"`
	SourcePath string    `json:"source_path,omitempty"`
	Category   Category  `json:"category,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink receives import events on the importing goroutine. A nil Sink
// discards them.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

// Imported is a file that was added to the library.
type Imported struct {
	ID         int64  `json:"id"`
	SourcePath string `json:"source_path"`
	Path       string `json:"path"`
	Date       string `json:"date"`
}

// Rejection is a file that was copied and then removed again because its
// capture date could not be written or it turned out to be a duplicate.
type Rejection struct {
	SourcePath string   `json:"source_path"`
	Category   Category `json:"category"`
	Reason     string   `json:"reason"`
	Error      string   `json:"technical_error"`
}

// Failure is a file that could not be processed at all.
type Failure struct {
	SourcePath string `json:"source_path"`
	Error      string `json:"error"`
}

// Result summarizes an import run.
type Result struct {
	OperationID string        `json:"operation_id,omitempty"`
	Total       int           `json:"total"`
	Imported    []Imported    `json:"imported"`
	Duplicates  []string      `json:"duplicates,omitempty"`
	Rejected    []Rejection   `json:"rejected,omitempty"`
	Failed      []Failure     `json:"failed,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Errors counts files that were neither imported nor skipped as
// duplicates.
func (r *Result) Errors() int {
	n := len(r.Failed)
	for _, rej := range r.Rejected {
		if rej.Category != CategoryDuplicate {
			n++
		}
	}
	return n
}

func (r *Result) duplicateCount() int {
	n := len(r.Duplicates)
	for _, rej := range r.Rejected {
		if rej.Category == CategoryDuplicate {
			n++
		}
	}
	return n
}

// ThumbnailQueue accepts thumbnail jobs without blocking.
type ThumbnailQueue interface {
	Enqueue(job thumbnails.Job) bool
}

// Importer copies external files into the canonical library layout.
type Importer struct {
	layout    library.Layout
	db        *database.Database
	hasher    hashing.Hasher
	extractor metadata.Extractor
	writer    metadata.Writer
	thumbs    ThumbnailQueue
}

// New creates an Importer. thumbs may be nil.
func New(cfg *startup.Config, db *database.Database, hasher hashing.Hasher, extractor metadata.Extractor, writer metadata.Writer, thumbs ThumbnailQueue) *Importer {
	return &Importer{
		layout:    cfg.Layout,
		db:        db,
		hasher:    hasher,
		extractor: extractor,
		writer:    writer,
		thumbs:    thumbs,
	}
}

// importCheckpoint is the ledger state of an import.
type importCheckpoint struct {
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
	LastSource string `json:"last_source,omitempty"`
}

// errDuplicate marks a source whose digest is already indexed.
var errDuplicate = errors.New("already in library")

// rejectError wraps a failure that happened after the file was copied.
type rejectError struct {
	category Category
	err      error
}

func (e *rejectError) Error() string { return e.err.Error() }
func (e *rejectError) Unwrap() error { return e.err }

// Import adds each source to the library. Directories are expanded with
// Scan. Files are processed one at a time; a failing file never affects
// the others.
func (im *Importer) Import(ctx context.Context, sources []string, sink Sink) (*Result, error) {
	start := time.Now()
	files := Scan(sources)
	result := &Result{Total: len(files), Imported: []Imported{}}

	if len(files) == 0 {
		return nil, errors.New("no importable media files found")
	}
	if err := os.MkdirAll(im.layout.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	logging.Info("Importing %d files into %s", len(files), im.layout.Root)
	op := im.db.Track(ctx, "", database.OpImport, importCheckpoint{Total: len(files)})
	result.OperationID = op.ID()
	sink.emit(Event{Type: EventStart, Total: len(files)})

	progress := func(i int) Event {
		return Event{
			Type:       EventProgress,
			Current:    i + 1,
			Total:      len(files),
			Imported:   len(result.Imported),
			Duplicates: result.duplicateCount(),
			Errors:     result.Errors(),
		}
	}

	for i, src := range files {
		if err := ctx.Err(); err != nil {
			op.Finish(ctx, err)
			return result, err
		}

		item, err := im.importOne(ctx, src)

		var rej *rejectError
		switch {
		case err == nil:
			result.Imported = append(result.Imported, *item)
			metrics.ImportItemsTotal.WithLabelValues("imported").Inc()
			e := progress(i)
			e.ID = item.ID
			sink.emit(e)

		case errors.Is(err, errDuplicate):
			result.Duplicates = append(result.Duplicates, src)
			metrics.ImportItemsTotal.WithLabelValues("duplicate").Inc()
			logging.Info("Skipping duplicate %s: %v", src, err)
			sink.emit(progress(i))

		case errors.As(err, &rej):
			r := Rejection{
				SourcePath: src,
				Category:   rej.category,
				Reason:     categoryReasons[rej.category],
				Error:      rej.err.Error(),
			}
			result.Rejected = append(result.Rejected, r)
			metrics.ImportItemsTotal.WithLabelValues("rejected").Inc()
			logging.Warn("Rejected %s (%s): %v", src, rej.category, rej.err)
			sink.emit(Event{
				Type:       EventRejected,
				Current:    i + 1,
				Total:      len(files),
				File:       filepath.Base(src),
				SourcePath: src,
				Category:   r.Category,
				Reason:     r.Reason,
				Error:      r.Error,
			})

		default:
			result.Failed = append(result.Failed, Failure{SourcePath: src, Error: err.Error()})
			metrics.ImportItemsTotal.WithLabelValues("rejected").Inc()
			logging.Error("Import of %s failed: %v", src, err)
			e := progress(i)
			e.File = filepath.Base(src)
			e.Error = err.Error()
			sink.emit(e)
		}

		op.Checkpoint(ctx, importCheckpoint{
			Total:      len(files),
			Processed:  i + 1,
			Imported:   len(result.Imported),
			Duplicates: result.duplicateCount(),
			Errors:     result.Errors(),
			LastSource: src,
		})
	}

	result.Duration = time.Since(start)
	op.Finish(ctx, nil)
	sink.emit(Event{
		Type:       EventComplete,
		Total:      len(files),
		Imported:   len(result.Imported),
		Duplicates: result.duplicateCount(),
		Errors:     result.Errors(),
	})
	logging.Info("Import complete: %d imported, %d duplicates, %d errors in %v",
		len(result.Imported), result.duplicateCount(), result.Errors(), result.Duration)
	return result, nil
}

func (im *Importer) importOne(ctx context.Context, src string) (*Imported, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}

	digest, err := hashing.Compute(src)
	if err != nil {
		return nil, err
	}
	if exists, err := im.db.HashExists(ctx, digest); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%s: %w", hashing.Short(digest), errDuplicate)
	}

	kind := mediatypes.KindOf(src)
	date := im.captureDate(ctx, src, info.ModTime())

	name, err := library.CanonicalName(kind, date, digest, filepath.Ext(src))
	if err != nil {
		return nil, err
	}
	folder, err := library.DateFolder(date)
	if err != nil {
		return nil, err
	}
	dir := im.layout.Abs(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", folder, err)
	}
	name = library.ResolveCollision(dir, name)
	rel := folder + "/" + name
	dest := im.layout.Abs(rel)

	rec := &database.MediaRecord{
		OriginalFilename: filepath.Base(src),
		Path:             rel,
		DateTaken:        &date,
		ContentHash:      digest,
		FileSize:         info.Size(),
		Kind:             kind,
	}
	if dims, err := im.extractor.Dimensions(ctx, src); err != nil {
		logging.Debug("No dimensions for %s: %v", src, err)
	} else if dims != nil {
		rec.Width, rec.Height = &dims.Width, &dims.Height
	}

	tx, err := im.db.BeginBatch()
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	rec.ID, err = im.db.InsertRecord(ctx, tx, rec)
	if err = im.db.EndBatch(tx, err); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	if err := filesystem.CopyFile(src, dest); err != nil {
		im.discard(ctx, rec.ID, dest)
		return nil, fmt.Errorf("copy into library: %w", err)
	}

	if err := im.finalize(ctx, rec, dest); err != nil {
		im.discard(ctx, rec.ID, dest)
		return nil, &rejectError{category: categorize(err), err: err}
	}

	if im.thumbs != nil {
		im.thumbs.Enqueue(thumbnails.Job{Path: dest, Hash: rec.ContentHash, Kind: kind})
	}

	logging.Info("Imported %s -> %s (id %d)", filepath.Base(src), rel, rec.ID)
	return &Imported{ID: rec.ID, SourcePath: src, Path: rel, Date: date}, nil
}

// finalize writes the capture date into the library copy and records the
// digest and size of the rewritten file.
func (im *Importer) finalize(ctx context.Context, rec *database.MediaRecord, dest string) error {
	if err := im.writer.WriteCaptureDate(ctx, dest, *rec.DateTaken); err != nil {
		return err
	}

	digest, _, err := im.hasher.Get(ctx, dest)
	if err != nil {
		return fmt.Errorf("rehash after metadata write: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	if digest == rec.ContentHash && info.Size() == rec.FileSize {
		return nil
	}

	tx, err := im.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("begin import update: %w", err)
	}
	if err := im.db.EndBatch(tx, im.db.UpdateRecordContent(ctx, tx, rec.ID, digest, info.Size())); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	rec.ContentHash, rec.FileSize = digest, info.Size()
	return nil
}

// captureDate returns the embedded capture date, falling back to the
// file's modification time.
func (im *Importer) captureDate(ctx context.Context, src string, mtime time.Time) string {
	date, err := im.extractor.CaptureDate(ctx, src)
	if err != nil {
		logging.Debug("No capture date for %s, using modification time: %v", src, err)
	}
	if date != nil {
		if _, err := library.ParseDate(*date); err == nil {
			return *date
		}
		logging.Warn("Ignoring unparseable capture date %q in %s", *date, src)
	}
	return library.FormatDate(mtime)
}

// discard removes a partially imported file and its row.
func (im *Importer) discard(ctx context.Context, id int64, dest string) {
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to remove %s: %v", dest, err)
	}
	if err := im.hasher.Invalidate(ctx, dest); err != nil {
		logging.Warn("Failed to invalidate hash cache for %s: %v", dest, err)
	}
	filesystem.RemoveEmptyParents(filepath.Dir(dest), im.layout.Root)

	tx, err := im.db.BeginBatch()
	if err != nil {
		logging.Error("Failed to remove record %d after import failure: %v", id, err)
		return
	}
	if err := im.db.EndBatch(tx, im.db.DeleteRecord(ctx, tx, id)); err != nil {
		logging.Error("Failed to remove record %d after import failure: %v", id, err)
	}
}

// categorize maps a post-copy failure to a rejection category from the
// error's type, never its message.
func categorize(err error) Category {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return CategoryDuplicate
	}
	if errors.Is(err, os.ErrPermission) {
		return CategoryPermission
	}

	switch metadata.KindOf(err) {
	case metadata.KindTimeout:
		return CategoryTimeout
	case metadata.KindCorrupted:
		return CategoryCorrupted
	case metadata.KindToolMissing:
		return CategoryMissingTool
	case metadata.KindPermission:
		return CategoryPermission
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryUnsupported
}
