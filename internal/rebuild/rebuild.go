package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/hashing"
	"media-library/internal/indexer"
	"media-library/internal/logging"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
	"media-library/internal/startup"
)

// TempPath returns the hidden file a rebuild builds into, next to dbPath.
func TempPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "."+filepath.Base(dbPath)+".rebuilding")
}

// BackupPath returns where the pre-rebuild copy of dbPath is kept.
func BackupPath(dbPath string) string {
	return dbPath + ".backup"
}

// Result describes a completed rebuild.
type Result struct {
	Stats      indexer.Stats   `json:"stats"`
	Details    indexer.Details `json:"details"`
	BackupPath string          `json:"backup_path,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// syncFunc populates a freshly created index.
type syncFunc func(ctx context.Context, db *database.Database, sink indexer.EventSink) (*indexer.SyncResult, error)

// Rebuilder replaces the production index with one built from scratch.
type Rebuilder struct {
	cfg       *startup.Config
	extractor metadata.Extractor
	runSync   syncFunc
}

// New creates a Rebuilder for cfg's index.
func New(cfg *startup.Config, extractor metadata.Extractor) *Rebuilder {
	r := &Rebuilder{cfg: cfg, extractor: extractor}
	r.runSync = r.fullSync
	return r
}

// fullSync indexes the library into db. The temporary index also backs the
// hash cache, so cached digests move into production with it.
func (r *Rebuilder) fullSync(ctx context.Context, db *database.Database, sink indexer.EventSink) (*indexer.SyncResult, error) {
	cache, err := hashing.NewCache(db, r.cfg.HashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}
	return indexer.NewSynchronizer(r.cfg, db, cache, r.extractor).Run(ctx, indexer.ModeFull, sink)
}

// Run builds a new index at TempPath and then swaps it into place. A
// failure while building discards the temporary index and leaves
// production as it was. Every sync event is forwarded to sink.
func (r *Rebuilder) Run(ctx context.Context, sink indexer.EventSink) (*Result, error) {
	start := time.Now()
	prod := r.cfg.DatabasePath
	temp := TempPath(prod)

	logging.Info("Rebuilding index %s via %s", prod, temp)

	synced, opID, err := r.build(ctx, prod, temp, sink)
	if err != nil {
		metrics.RebuildRunsTotal.WithLabelValues("build_failed").Inc()
		discard(temp)
		return nil, fmt.Errorf("build new index: %w", err)
	}

	backup, err := r.commit(ctx, prod, temp)
	if err != nil {
		metrics.RebuildRunsTotal.WithLabelValues("commit_failed").Inc()
		return nil, fmt.Errorf("activate new index: %w", err)
	}
	markCompleted(ctx, prod, opID)

	result := &Result{
		Stats:      synced.Stats,
		Details:    synced.Details,
		BackupPath: backup,
		Duration:   time.Since(start),
	}
	metrics.RebuildRunsTotal.WithLabelValues("success").Inc()
	metrics.RebuildDuration.Observe(result.Duration.Seconds())

	if backup != "" {
		logging.Info("Rebuild complete in %v, previous index saved to %s", result.Duration, backup)
	} else {
		logging.Info("Rebuild complete in %v", result.Duration)
	}
	return result, nil
}

// rebuildCheckpoint is the ledger state of a rebuild.
type rebuildCheckpoint struct {
	Phase       string         `json:"phase"`
	CachedFiles int64          `json:"cached_files"`
	Stats       *indexer.Stats `json:"stats,omitempty"`
}

// build populates temp and returns the sync result and the id of the
// rebuild operation recorded in it. The operation stays running until
// markCompleted runs against production after the swap.
func (r *Rebuilder) build(ctx context.Context, prod, temp string, sink indexer.EventSink) (*indexer.SyncResult, string, error) {
	if filesystem.Exists(temp) {
		logging.Info("Removing stale temporary index %s", temp)
	}
	if err := removeIndex(temp); err != nil {
		return nil, "", fmt.Errorf("remove stale temporary index: %w", err)
	}

	db, err := database.Create(ctx, temp)
	if err != nil {
		return nil, "", err
	}

	var cached int64
	if filesystem.Exists(prod) {
		cached, err = db.CopyHashCache(ctx, prod)
		if err != nil {
			logging.Warn("Could not reuse hash cache of %s, every file will be hashed: %v", prod, err)
		} else {
			logging.Info("Reusing %d cached digests from %s", cached, prod)
		}
	}

	op := db.Track(ctx, "", database.OpRebuild, rebuildCheckpoint{Phase: "indexing", CachedFiles: cached})

	synced, err := r.runSync(ctx, db, sink)
	if err == nil {
		op.Checkpoint(ctx, rebuildCheckpoint{Phase: "swapping", CachedFiles: cached, Stats: &synced.Stats})
		if tsErr := db.SetTimestamp(ctx, database.MetaLastRebuild, time.Now()); tsErr != nil {
			logging.Warn("Failed to record rebuild time: %v", tsErr)
		}
	}
	if closeErr := db.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close temporary index: %w", closeErr)
	}
	if err != nil {
		return nil, "", err
	}
	return synced, op.ID(), nil
}

// markCompleted closes the rebuild operation that moved into production
// with the new index.
func markCompleted(ctx context.Context, prod, id string) {
	db, err := database.Open(ctx, prod)
	if err != nil {
		logging.Warn("Could not open %s to record rebuild completion: %v", prod, err)
		return
	}
	defer db.Close()

	if err := db.CompleteOperation(ctx, id); err != nil {
		logging.Warn("Failed to record rebuild %s as completed: %v", id, err)
	}
}

// commit backs up production and renames temp over it. The backup is best
// effort; the returned path is empty when none was written.
func (r *Rebuilder) commit(ctx context.Context, prod, temp string) (string, error) {
	backup := ""
	if filesystem.Exists(prod) {
		checkpoint(ctx, prod)

		if err := filesystem.CopyFile(prod, BackupPath(prod)); err != nil {
			logging.Warn("Could not back up %s before rebuild: %v", prod, err)
		} else {
			backup = BackupPath(prod)
			logging.Info("Backed up previous index to %s", backup)
		}
	}

	if err := database.RemoveSideFiles(prod); err != nil {
		return backup, fmt.Errorf("remove production side files: %w", err)
	}
	if err := os.Rename(temp, prod); err != nil {
		return backup, err
	}

	tempSides := database.SideFiles(temp)
	for i, side := range database.SideFiles(prod) {
		if !filesystem.Exists(tempSides[i]) {
			continue
		}
		if err := os.Rename(tempSides[i], side); err != nil {
			return backup, fmt.Errorf("move %s: %w", filepath.Base(tempSides[i]), err)
		}
	}
	return backup, nil
}

// checkpoint folds production's write-ahead log into the main file so the
// backup copy is complete on its own.
func checkpoint(ctx context.Context, prod string) {
	db, err := database.Open(ctx, prod)
	if err != nil {
		logging.Warn("Could not open %s for checkpoint: %v", prod, err)
		return
	}
	defer db.Close()

	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn("Checkpoint of %s failed: %v", prod, err)
	}
}

// discard removes a failed temporary index and logs what could not be
// removed.
func discard(temp string) {
	if err := removeIndex(temp); err != nil {
		logging.Error("Failed to clean up temporary index %s: %v", temp, err)
		return
	}
	logging.Info("Discarded temporary index %s", temp)
}

// removeIndex deletes an index file and its side files.
func removeIndex(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	return errors.Join(err, database.RemoveSideFiles(path))
}
