package trash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/startup"
	"media-library/internal/thumbnails"
)

// ErrNotInTrash is returned for an id that has no tombstone.
var ErrNotInTrash = errors.New("not in trash")

// ItemError is the failure of one id within a multi-id operation.
type ItemError struct {
	ID  int64  `json:"id"`
	Err string `json:"error"`
}

// Result reports a Delete, Restore or Purge. Done holds the ids that
// succeeded; ids that failed are listed in Errors and left untouched.
type Result struct {
	// OperationID identifies a Delete in the operations ledger.
	OperationID string      `json:"operation_id,omitempty"`
	Done        []int64     `json:"done"`
	Errors      []ItemError `json:"errors,omitempty"`
	BackupPath  string      `json:"backup_path,omitempty"`
}

// Total is the number of ids processed.
func (r *Result) Total() int {
	return len(r.Done) + len(r.Errors)
}

func (r *Result) fail(id int64, err error) {
	r.Errors = append(r.Errors, ItemError{ID: id, Err: err.Error()})
}

// Trash moves records and their files between the library and the trash
// area. Each id is handled in its own index transaction.
type Trash struct {
	layout     library.Layout
	backupKeep int
	db         *database.Database
	now        func() time.Time
}

// New creates a Trash for cfg's library.
func New(cfg *startup.Config, db *database.Database) *Trash {
	return &Trash{
		layout:     cfg.Layout,
		backupKeep: cfg.BackupKeep,
		db:         db,
		now:        time.Now,
	}
}

// Delete tombstones each record: its file moves into the trash directory,
// its thumbnail is removed and its row is replaced by a snapshot. The index
// is backed up first; a failed backup aborts before anything changes.
func (t *Trash) Delete(ctx context.Context, ids []int64) (*Result, error) {
	backup, err := t.db.CreateBackup(ctx, t.layout.BackupDir(), t.backupKeep)
	if err != nil {
		return nil, fmt.Errorf("back up index before delete: %w", err)
	}
	if err := os.MkdirAll(t.layout.TrashDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create trash directory: %w", err)
	}

	result := &Result{BackupPath: backup}
	op := t.db.Track(ctx, "", database.OpDelete, deleteCheckpoint{IDs: ids, Backup: backup})
	result.OperationID = op.ID()

	for _, id := range ids {
		if err := t.deleteOne(ctx, id); err != nil {
			logging.Warn("Delete of record %d failed: %v", id, err)
			metrics.TrashOperationsTotal.WithLabelValues("delete", "error").Inc()
			result.fail(id, err)
		} else {
			metrics.TrashOperationsTotal.WithLabelValues("delete", "success").Inc()
			result.Done = append(result.Done, id)
		}
		op.Checkpoint(ctx, deleteCheckpoint{IDs: ids, Backup: backup, Done: result.Done, Failed: result.Errors})
	}

	var opErr error
	if len(result.Errors) > 0 {
		opErr = fmt.Errorf("%d of %d deletes failed", len(result.Errors), result.Total())
	}
	op.Finish(ctx, opErr)

	t.publishCount(ctx)
	logging.Info("Deleted %d of %d records", len(result.Done), result.Total())
	return result, nil
}

// deleteCheckpoint is the ledger state of a Delete.
type deleteCheckpoint struct {
	IDs    []int64     `json:"photo_ids"`
	Backup string      `json:"backup_path,omitempty"`
	Done   []int64     `json:"done,omitempty"`
	Failed []ItemError `json:"failed,omitempty"`
}

func (t *Trash) deleteOne(ctx context.Context, id int64) error {
	rec, err := t.db.GetRecord(ctx, id)
	if err != nil {
		return err
	}

	src := t.layout.Abs(rec.Path)
	trashName := path.Base(rec.Path)
	moved := false
	if filesystem.Exists(src) {
		trashName = library.ResolveCollision(t.layout.TrashDir(), trashName)
		if err := filesystem.MoveFile(src, t.trashPath(trashName)); err != nil {
			return fmt.Errorf("move %s to trash: %w", rec.Path, err)
		}
		moved = true
	} else {
		logging.Warn("File for record %d is already gone: %s", id, rec.Path)
	}

	tx, err := t.db.BeginBatch()
	if err != nil {
		t.undoDelete(moved, trashName, src)
		return fmt.Errorf("begin delete: %w", err)
	}
	err = t.db.InsertTombstone(ctx, tx, &database.Tombstone{
		ID:            rec.ID,
		OriginalPath:  rec.Path,
		TrashFilename: trashName,
		DeletedAt:     t.now(),
		Record:        *rec,
	})
	if err == nil {
		err = t.db.DeleteRecord(ctx, tx, rec.ID)
	}
	if err = t.db.EndBatch(tx, err); err != nil {
		t.undoDelete(moved, trashName, src)
		return fmt.Errorf("tombstone record: %w", err)
	}

	if err := thumbnails.Remove(t.layout, rec.ContentHash); err != nil {
		logging.Warn("Failed to remove thumbnail for %s: %v", rec.Path, err)
	}
	if moved {
		for _, removed := range filesystem.RemoveEmptyParents(filepath.Dir(src), t.layout.Root) {
			logging.Debug("Removed empty folder %s", removed)
		}
	}
	logging.Info("Deleted record %d: %s -> %s", id, rec.Path, trashName)
	return nil
}

func (t *Trash) undoDelete(moved bool, trashName, src string) {
	if !moved {
		return
	}
	if err := filesystem.MoveFile(t.trashPath(trashName), src); err != nil {
		logging.Error("Failed to move %s back from trash: %v", trashName, err)
	}
}

// Restore moves each tombstoned file back and re-inserts its snapshot
// under the original id. If the original path has since been taken the
// file gets a collision counter. A tombstone whose trash file is gone is
// reported and kept.
func (t *Trash) Restore(ctx context.Context, ids []int64) (*Result, error) {
	result := &Result{}
	for _, id := range ids {
		if err := t.restoreOne(ctx, id); err != nil {
			logging.Warn("Restore of record %d failed: %v", id, err)
			metrics.TrashOperationsTotal.WithLabelValues("restore", "error").Inc()
			result.fail(id, err)
			continue
		}
		metrics.TrashOperationsTotal.WithLabelValues("restore", "success").Inc()
		result.Done = append(result.Done, id)
	}

	t.publishCount(ctx)
	logging.Info("Restored %d of %d records", len(result.Done), result.Total())
	return result, nil
}

func (t *Trash) restoreOne(ctx context.Context, id int64) error {
	stone, err := t.tombstone(ctx, id)
	if err != nil {
		return err
	}

	src := t.trashPath(stone.TrashFilename)
	if !filesystem.Exists(src) {
		return fmt.Errorf("trash file %s: %w", stone.TrashFilename, os.ErrNotExist)
	}

	folder := path.Dir(stone.OriginalPath)
	dir := t.layout.Abs(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", folder, err)
	}
	name := library.ResolveCollision(dir, path.Base(stone.OriginalPath))
	rel := path.Join(folder, name)
	dest := t.layout.Abs(rel)

	if err := filesystem.MoveFile(src, dest); err != nil {
		return fmt.Errorf("move %s out of trash: %w", stone.TrashFilename, err)
	}

	rec := stone.Record
	rec.ID = stone.ID
	rec.Path = rel

	tx, err := t.db.BeginBatch()
	if err != nil {
		t.undoRestore(dest, src)
		return fmt.Errorf("begin restore: %w", err)
	}
	_, err = t.db.InsertRecord(ctx, tx, &rec)
	if err == nil {
		err = t.db.DeleteTombstone(ctx, tx, id)
	}
	if err = t.db.EndBatch(tx, err); err != nil {
		t.undoRestore(dest, src)
		return fmt.Errorf("reinsert record: %w", err)
	}

	logging.Info("Restored record %d to %s", id, rel)
	return nil
}

func (t *Trash) undoRestore(dest, src string) {
	if err := filesystem.MoveFile(dest, src); err != nil {
		logging.Error("Failed to move %s back to trash: %v", dest, err)
		return
	}
	filesystem.RemoveEmptyParents(filepath.Dir(dest), t.layout.Root)
}

// Purge permanently removes each tombstone and its trash file.
func (t *Trash) Purge(ctx context.Context, ids []int64) (*Result, error) {
	result := &Result{}
	for _, id := range ids {
		if err := t.purgeOne(ctx, id); err != nil {
			logging.Warn("Purge of record %d failed: %v", id, err)
			metrics.TrashOperationsTotal.WithLabelValues("purge", "error").Inc()
			result.fail(id, err)
			continue
		}
		metrics.TrashOperationsTotal.WithLabelValues("purge", "success").Inc()
		result.Done = append(result.Done, id)
	}

	t.publishCount(ctx)
	logging.Info("Purged %d of %d records", len(result.Done), result.Total())
	return result, nil
}

// Empty purges every tombstone.
func (t *Trash) Empty(ctx context.Context) (*Result, error) {
	stones, err := t.db.ListTombstones(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(stones))
	for i, s := range stones {
		ids[i] = s.ID
	}
	return t.Purge(ctx, ids)
}

func (t *Trash) purgeOne(ctx context.Context, id int64) error {
	stone, err := t.tombstone(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(t.trashPath(stone.TrashFilename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove trash file %s: %w", stone.TrashFilename, err)
	}

	tx, err := t.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	if err := t.db.EndBatch(tx, t.db.DeleteTombstone(ctx, tx, id)); err != nil {
		return err
	}

	logging.Info("Purged record %d (%s)", id, stone.OriginalPath)
	return nil
}

// List returns every tombstone, most recently deleted first.
func (t *Trash) List(ctx context.Context) ([]database.Tombstone, error) {
	return t.db.ListTombstones(ctx)
}

func (t *Trash) tombstone(ctx context.Context, id int64) (*database.Tombstone, error) {
	stone, err := t.db.GetTombstone(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotInTrash)
	}
	return stone, err
}

func (t *Trash) trashPath(name string) string {
	return filepath.Join(t.layout.TrashDir(), name)
}

func (t *Trash) publishCount(ctx context.Context) {
	stones, err := t.db.ListTombstones(ctx)
	if err != nil {
		logging.Warn("Failed to count trash items: %v", err)
		return
	}
	metrics.TrashItemsTotal.Set(float64(len(stones)))
}
