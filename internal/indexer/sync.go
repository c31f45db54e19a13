package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/hashing"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
	"media-library/internal/startup"
)

// Mode selects how the index is compared against the filesystem.
type Mode string

const (
	// ModeIncremental diffs the filesystem against the current index.
	ModeIncremental Mode = "incremental"
	// ModeFull treats the index as empty, so every file is a candidate for
	// insertion. Rebuild runs it against a fresh index.
	ModeFull Mode = "full"
)

// SyncResult is returned by a successful run.
type SyncResult struct {
	Mode     Mode          `json:"mode"`
	Stats    Stats         `json:"stats"`
	Details  Details       `json:"details"`
	Duration time.Duration `json:"duration"`
}

// staleCleaner is implemented by hashers with a persistent level that can
// drop entries for deleted files.
type staleCleaner interface {
	CleanupStale(ctx context.Context, root string) (int, error)
}

// Synchronizer reconciles the index with the library tree.
type Synchronizer struct {
	layout    library.Layout
	db        *database.Database
	hasher    hashing.Hasher
	extractor metadata.Extractor
}

// NewSynchronizer creates a Synchronizer for cfg's library writing to db.
func NewSynchronizer(cfg *startup.Config, db *database.Database, hasher hashing.Hasher, extractor metadata.Extractor) *Synchronizer {
	return &Synchronizer{
		layout:    cfg.Layout,
		db:        db,
		hasher:    hasher,
		extractor: extractor,
	}
}

// Run walks the library, removes records whose file is gone, adds files
// the index does not know and prunes empty directories. Events are sent to
// sink as the run progresses. A walk or transaction failure ends the run
// with an error event; a single unreadable file only lands in
// Details.Failed.
func (s *Synchronizer) Run(ctx context.Context, mode Mode, sink EventSink) (result *SyncResult, err error) {
	start := time.Now()
	metrics.SyncIsRunning.Set(1)
	defer func() {
		metrics.SyncIsRunning.Set(0)
		status := "success"
		if err != nil {
			status = "error"
			logging.Error("%s sync failed: %v", mode, err)
			sink.emit(Event{Type: EventError, Message: err.Error()})
		}
		metrics.SyncRunsTotal.WithLabelValues(string(mode), status).Inc()
		metrics.SyncDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	logging.Info("Starting %s sync of %s", mode, s.layout.Root)

	onDisk, err := scanLibrary(s.layout.Root)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]struct{})
	if mode == ModeIncremental {
		if indexed, err = s.db.ListPaths(ctx); err != nil {
			return nil, fmt.Errorf("load indexed paths: %w", err)
		}
	}

	onDiskSet := make(map[string]struct{}, len(onDisk))
	var moles []string
	for _, rel := range onDisk {
		onDiskSet[rel] = struct{}{}
		if _, ok := indexed[rel]; !ok {
			moles = append(moles, rel)
		}
	}
	var ghosts []string
	for rel := range indexed {
		if _, ok := onDiskSet[rel]; !ok {
			ghosts = append(ghosts, rel)
		}
	}
	sort.Strings(ghosts)

	logging.Debug("Sync diff: %d on disk, %d indexed, %d missing, %d untracked",
		len(onDisk), len(indexed), len(ghosts), len(moles))

	result = &SyncResult{Mode: mode, Details: newDetails()}

	if err := s.removeGhosts(ctx, ghosts, result, sink); err != nil {
		return nil, err
	}
	if err := s.addMoles(ctx, moles, result, sink); err != nil {
		return nil, err
	}
	s.pruneEmpty(result, sink)

	if mode == ModeIncremental {
		if cleaner, ok := s.hasher.(staleCleaner); ok {
			if _, err := cleaner.CleanupStale(ctx, s.layout.Root); err != nil {
				logging.Warn("Hash cache cleanup failed: %v", err)
			}
		}
	}
	if err := s.db.SetTimestamp(ctx, database.MetaLastSync, time.Now()); err != nil {
		logging.Warn("Failed to record last sync time: %v", err)
	}

	result.Duration = time.Since(start)
	metrics.SyncLastRunTimestamp.Set(float64(time.Now().Unix()))

	st := result.Stats
	logging.Info("Sync complete in %v: %d missing, %d untracked, %d empty folders, %d duplicates, %d failed",
		result.Duration, st.MissingFiles, st.UntrackedFiles, st.EmptyFolders, st.Duplicates, st.Failed)

	sink.emit(Event{Type: EventComplete, Stats: &result.Stats, Details: &result.Details})
	return result, nil
}

func newDetails() Details {
	return Details{
		MissingFiles:   []string{},
		UntrackedFiles: []string{},
		NameUpdates:    []string{},
		EmptyFolders:   []string{},
		Duplicates:     []Duplicate{},
		Failed:         []Failure{},
	}
}

// removeGhosts deletes the records of files no longer on disk in one
// transaction.
func (s *Synchronizer) removeGhosts(ctx context.Context, ghosts []string, result *SyncResult, sink EventSink) error {
	if len(ghosts) == 0 {
		return nil
	}

	tx, err := s.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("begin missing-file removal: %w", err)
	}

	for i, rel := range ghosts {
		if _, err := s.db.DeleteRecordByPath(ctx, tx, rel); err != nil {
			return s.db.EndBatch(tx, fmt.Errorf("remove record %s: %w", rel, err))
		}
		logging.Debug("Removed missing file from index: %s", rel)
		sink.emit(Event{Type: EventProgress, Phase: PhaseRemovingDeleted, Current: i + 1, Total: len(ghosts), Path: rel})
	}

	if err := s.db.EndBatch(tx, nil); err != nil {
		return fmt.Errorf("commit missing-file removal: %w", err)
	}

	result.Details.MissingFiles = append(result.Details.MissingFiles, ghosts...)
	result.Stats.MissingFiles = len(ghosts)
	metrics.SyncItemsTotal.WithLabelValues("missing").Add(float64(len(ghosts)))
	return nil
}

// addMoles describes every untracked file and then inserts the results in
// one transaction. Describing happens first because the hash cache writes
// through the same index, and SQLite admits one writer at a time.
func (s *Synchronizer) addMoles(ctx context.Context, moles []string, result *SyncResult, sink EventSink) error {
	if len(moles) == 0 {
		return nil
	}

	records := make([]database.MediaRecord, 0, len(moles))
	for i, rel := range moles {
		rec, err := s.describe(ctx, rel)
		if err != nil {
			logging.Warn("Skipping untracked file %s: %v", rel, err)
			result.Details.Failed = append(result.Details.Failed, Failure{Path: rel, Error: err.Error()})
		} else {
			records = append(records, *rec)
		}
		sink.emit(Event{Type: EventProgress, Phase: PhaseAddingUntracked, Current: i + 1, Total: len(moles), Path: rel})
	}
	result.Stats.Failed = len(result.Details.Failed)
	metrics.SyncItemsTotal.WithLabelValues("failed").Add(float64(result.Stats.Failed))

	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("begin untracked-file insert: %w", err)
	}

	var added []string
	var duplicates []Duplicate
	for i := range records {
		rec := &records[i]
		_, inserted, err := s.db.InsertRecordIgnore(ctx, tx, rec)
		if err != nil {
			return s.db.EndBatch(tx, fmt.Errorf("insert %s: %w", rec.Path, err))
		}
		if inserted {
			added = append(added, rec.Path)
			continue
		}

		holder, err := database.FindRecordByHash(ctx, tx, rec.ContentHash)
		existing := rec.Path
		switch {
		case err == nil:
			existing = holder.Path
		case !errors.Is(err, database.ErrNotFound):
			return s.db.EndBatch(tx, fmt.Errorf("look up holder of %s: %w", rec.Path, err))
		}
		logging.Info("Duplicate content: %s is already indexed as %s", rec.Path, existing)
		duplicates = append(duplicates, Duplicate{Path: rec.Path, ExistingPath: existing})
	}

	if err := s.db.EndBatch(tx, nil); err != nil {
		return fmt.Errorf("commit untracked-file insert: %w", err)
	}

	result.Details.UntrackedFiles = append(result.Details.UntrackedFiles, added...)
	result.Details.Duplicates = append(result.Details.Duplicates, duplicates...)
	result.Stats.UntrackedFiles = len(added)
	result.Stats.Duplicates = len(duplicates)
	metrics.SyncItemsTotal.WithLabelValues("untracked").Add(float64(len(added)))
	metrics.SyncItemsTotal.WithLabelValues("duplicate").Add(float64(len(duplicates)))
	return nil
}

// describe builds the record for an untracked file. Missing dimensions are
// stored as null rather than failing the file.
func (s *Synchronizer) describe(ctx context.Context, rel string) (*database.MediaRecord, error) {
	abs := s.layout.Abs(rel)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	digest, _, err := s.hasher.Get(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}

	date, err := s.extractor.CaptureDate(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("capture date: %w", err)
	}

	rec := &database.MediaRecord{
		OriginalFilename: path.Base(rel),
		Path:             rel,
		DateTaken:        date,
		ContentHash:      digest,
		FileSize:         info.Size(),
		Kind:             mediatypes.KindOf(rel),
	}

	dims, err := s.extractor.Dimensions(ctx, abs)
	if err != nil {
		logging.Warn("Could not read dimensions of %s: %v", rel, err)
	} else if dims != nil {
		rec.Width = database.IntPtr(dims.Width)
		rec.Height = database.IntPtr(dims.Height)
	}

	return rec, nil
}

// pruneEmpty removes directories left empty by deletions. Failures leave
// directories behind and are only logged.
func (s *Synchronizer) pruneEmpty(result *SyncResult, sink EventSink) {
	count := 0
	removed, err := filesystem.PruneEmptyDirs(s.layout.Root, filesystem.DefaultPrunePasses, func(rel string) {
		count++
		sink.emit(Event{Type: EventProgress, Phase: PhaseRemovingEmpty, Current: count, Path: rel})
	})
	if err != nil {
		logging.Warn("Empty folder cleanup incomplete: %v", err)
	}

	result.Details.EmptyFolders = append(result.Details.EmptyFolders, removed...)
	result.Stats.EmptyFolders = len(removed)
	metrics.SyncItemsTotal.WithLabelValues("empty_folder").Add(float64(len(removed)))
}

// Duplicates hashes every file the index does not track and reports those
// whose digest an indexed record already holds. The index is not changed.
func (s *Synchronizer) Duplicates(ctx context.Context) ([]Duplicate, error) {
	onDisk, err := scanLibrary(s.layout.Root)
	if err != nil {
		return nil, err
	}
	indexed, err := s.db.ListPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("load indexed paths: %w", err)
	}

	duplicates := []Duplicate{}
	for _, rel := range onDisk {
		if _, ok := indexed[rel]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return duplicates, err
		}

		digest, _, err := s.hasher.Get(ctx, s.layout.Abs(rel))
		if err != nil {
			logging.Warn("Could not hash %s: %v", rel, err)
			continue
		}
		holder, err := s.db.RecordByHash(ctx, digest)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return duplicates, fmt.Errorf("look up holder of %s: %w", rel, err)
		}
		duplicates = append(duplicates, Duplicate{Path: rel, ExistingPath: holder.Path})
	}

	logging.Info("Duplicate scan found %d untracked copies of indexed files", len(duplicates))
	return duplicates, nil
}
