package mutation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/hashing"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
	"media-library/internal/startup"
	"media-library/internal/thumbnails"
)

// EditError is returned when an edit fails. By the time it is returned the
// file changes have been reversed and the index transaction rolled back.
type EditError struct {
	// ID is the record whose step failed, or 0 when the commit failed.
	ID    int64
	Err   error
	Paths []string
	// UndoErrors lists reversal steps that failed. They are informational;
	// the edit is reported as failed either way.
	UndoErrors []string
}

func (e *EditError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("date edit failed: %v", e.Err)
	}
	return fmt.Sprintf("date edit of record %d failed: %v", e.ID, e.Err)
}

func (e *EditError) Unwrap() error { return e.Err }

// EditResult describes one applied edit.
type EditResult struct {
	ID      int64   `json:"id"`
	OldPath string  `json:"old_path"`
	NewPath string  `json:"new_path"`
	OldDate *string `json:"old_date"`
	NewDate string  `json:"new_date"`
	OldHash string  `json:"old_hash"`
	NewHash string  `json:"new_hash"`
	Moved   bool    `json:"moved"`
}

// Editor changes capture dates. Each edit rewrites the file's metadata,
// moves it to the canonical path for the new date and updates the index
// row, as one unit that is reversed on failure.
type Editor struct {
	layout     library.Layout
	backupDir  string
	backupKeep int

	db     *database.Database
	writer metadata.Writer
	hasher hashing.Hasher
	hash   func(path string) (string, error)
}

// NewEditor creates an Editor for cfg's library.
func NewEditor(cfg *startup.Config, db *database.Database, writer metadata.Writer, hasher hashing.Hasher) *Editor {
	return &Editor{
		layout:     cfg.Layout,
		backupDir:  cfg.BackupDir(),
		backupKeep: cfg.BackupKeep,
		db:         db,
		writer:     writer,
		hasher:     hasher,
		hash:       hashing.Compute,
	}
}

// EditDate sets the capture date of record id.
func (e *Editor) EditDate(ctx context.Context, id int64, date string) (*EditResult, error) {
	if _, err := library.ParseDate(date); err != nil {
		return nil, err
	}

	rec, err := e.db.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginBatch()
	if err != nil {
		return nil, fmt.Errorf("begin edit: %w", err)
	}

	log := &undoLog{root: e.layout.Root}
	result, applyErr := e.apply(ctx, tx, rec, date, log)
	failedID := rec.ID
	if applyErr == nil {
		failedID = 0
	}
	undoErrs, err := e.finish(ctx, tx, log, applyErr)

	e.invalidate(ctx, rec.Path, result)

	if err != nil {
		metrics.MutationsTotal.WithLabelValues("single", "rolled_back").Inc()
		logging.Error("Date edit of record %d rolled back: %v", id, err)
		return nil, &EditError{ID: failedID, Err: err, Paths: affectedPaths(result, rec.Path), UndoErrors: undoErrs}
	}

	metrics.MutationsTotal.WithLabelValues("single", "committed").Inc()
	e.pruneSource(result)
	logging.Info("Record %d dated %s: %s -> %s", id, date, result.OldPath, result.NewPath)
	return result, nil
}

// apply performs the file and index steps for one record inside tx,
// appending each completed file step to log.
func (e *Editor) apply(ctx context.Context, tx *sql.Tx, rec *database.MediaRecord, date string, log *undoLog) (*EditResult, error) {
	result := &EditResult{
		ID:      rec.ID,
		OldPath: rec.Path,
		NewPath: rec.Path,
		OldDate: rec.DateTaken,
		NewDate: date,
		OldHash: rec.ContentHash,
	}
	oldAbs := e.layout.Abs(rec.Path)

	if !filesystem.Exists(oldAbs) {
		return result, fmt.Errorf("file %s: %w", rec.Path, os.ErrNotExist)
	}

	if err := e.writer.WriteCaptureDate(ctx, oldAbs, date); err != nil {
		return result, fmt.Errorf("write capture date: %w", err)
	}
	log.metadataWritten(oldAbs, rec.DateTaken)

	newHash, err := e.hash(oldAbs)
	if err != nil {
		return result, fmt.Errorf("rehash after metadata write: %w", err)
	}
	result.NewHash = newHash
	if newHash != rec.ContentHash {
		if err := thumbnails.Remove(e.layout, rec.ContentHash); err != nil {
			logging.Warn("Failed to remove thumbnail for %s: %v", rec.Path, err)
		}
	}

	name, err := library.RenameForDate(path.Base(rec.Path), date)
	if err != nil {
		return result, err
	}
	folder, err := library.DateFolder(date)
	if err != nil {
		return result, err
	}

	newRel := folder + "/" + name
	if newRel != rec.Path {
		dir := e.layout.Abs(folder)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, fmt.Errorf("create %s: %w", folder, err)
		}
		name = library.ResolveCollision(dir, name)
		newRel = folder + "/" + name
		newAbs := e.layout.Abs(newRel)

		if !filesystem.Exists(oldAbs) {
			return result, fmt.Errorf("file %s: %w", rec.Path, os.ErrNotExist)
		}
		if err := filesystem.MoveFile(oldAbs, newAbs); err != nil {
			return result, fmt.Errorf("move to %s: %w", newRel, err)
		}
		log.moved(oldAbs, newAbs)
		result.Moved = true
		result.NewPath = newRel
	}

	info, err := os.Stat(e.layout.Abs(newRel))
	if err != nil {
		return result, err
	}

	if err := e.db.UpdateRecordLocation(ctx, tx, rec.ID, newRel, name, &date, newHash); err != nil {
		return result, fmt.Errorf("update index row: %w", err)
	}
	if err := e.db.UpdateRecordContent(ctx, tx, rec.ID, newHash, info.Size()); err != nil {
		return result, fmt.Errorf("update index row: %w", err)
	}
	return result, nil
}

// finish commits tx when opErr is nil. Otherwise, or if the commit fails,
// it replays log and rolls tx back. The returned error is the edit's
// failure, if any.
func (e *Editor) finish(ctx context.Context, tx *sql.Tx, log *undoLog, opErr error) ([]string, error) {
	if opErr == nil {
		commitErr := e.db.EndBatch(tx, nil)
		if commitErr == nil {
			return nil, nil
		}
		logging.Error("Commit failed, reversing %d file steps: %v", log.len(), commitErr)
		return errorStrings(log.replay(ctx, e.writer)), fmt.Errorf("commit: %w", commitErr)
	}

	logging.Warn("Edit failed, reversing %d file steps: %v", log.len(), opErr)
	undoErrs := errorStrings(log.replay(ctx, e.writer))
	return undoErrs, e.db.EndBatch(tx, opErr)
}

// invalidate drops hash cache entries for paths whose bytes may have
// changed. It runs after the transaction ends since the cache writes
// through the same index.
func (e *Editor) invalidate(ctx context.Context, oldPath string, result *EditResult) {
	paths := []string{oldPath}
	if result != nil && result.NewPath != oldPath {
		paths = append(paths, result.NewPath)
	}
	for _, p := range paths {
		if err := e.hasher.Invalidate(ctx, e.layout.Abs(p)); err != nil {
			logging.Warn("Failed to invalidate hash cache for %s: %v", p, err)
		}
	}
}

// pruneSource removes directories emptied by the move. Failures only leave
// empty directories behind.
func (e *Editor) pruneSource(result *EditResult) {
	if result == nil || !result.Moved {
		return
	}
	dir := filepath.Dir(e.layout.Abs(result.OldPath))
	for _, removed := range filesystem.RemoveEmptyParents(dir, e.layout.Root) {
		logging.Debug("Removed empty folder %s", removed)
	}
}

func affectedPaths(result *EditResult, oldPath string) []string {
	paths := []string{oldPath}
	if result != nil && result.Moved {
		paths = append(paths, result.NewPath)
	}
	return paths
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// IsEditError reports whether err is an *EditError and returns it.
func IsEditError(err error) (*EditError, bool) {
	var editErr *EditError
	if errors.As(err, &editErr) {
		return editErr, true
	}
	return nil, false
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
