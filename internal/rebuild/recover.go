package rebuild

import (
	"context"
	"errors"
	"fmt"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/startup"
)

// ErrRebuildCompleted is returned by Recover when the production index
// comes from a rebuild that finished, so the backup is older than it.
var ErrRebuildCompleted = errors.New("last rebuild completed; the backup predates it")

// RecoverResult reports what Recover changed.
type RecoverResult struct {
	RemovedTemp    bool   `json:"removed_temp"`
	RestoredBackup bool   `json:"restored_backup"`
	BackupPath     string `json:"backup_path,omitempty"`
	// Interrupted is the unfinished rebuild found in the temporary or
	// production index, if any.
	Interrupted *database.Operation `json:"interrupted,omitempty"`
}

// Recover cleans up after a rebuild that was interrupted between its
// phases. It removes any temporary index and, when a pre-rebuild backup
// exists, copies it over production. It is never run automatically.
//
// When no temporary index exists and production records its last rebuild
// as completed, restoring would discard that rebuild, so Recover refuses
// with ErrRebuildCompleted unless force is set.
func Recover(cfg *startup.Config, force bool) (*RecoverResult, error) {
	ctx := context.Background()
	prod := cfg.DatabasePath
	temp := TempPath(prod)
	backup := BackupPath(prod)
	result := &RecoverResult{}

	logging.Info("Recovering index %s", prod)

	if filesystem.Exists(temp) {
		result.RemovedTemp = true
		result.Interrupted = unfinishedRebuild(ctx, temp)
	} else if filesystem.Exists(prod) && filesystem.Exists(backup) {
		last := lastRebuild(ctx, prod)
		switch {
		case last == nil:
		case last.Status == database.OpRunning:
			result.Interrupted = last
		case last.Status == database.OpCompleted && !force:
			return result, fmt.Errorf("%w (rebuild %s finished %s); use force to restore %s anyway",
				ErrRebuildCompleted, last.ID, last.UpdatedAt.Local().Format("2006-01-02 15:04:05"), backup)
		case last.Status == database.OpCompleted:
			logging.Warn("Restoring %s over completed rebuild %s", backup, last.ID)
		}
	}
	if result.Interrupted != nil {
		logging.Info("Found interrupted rebuild %s started %s", result.Interrupted.ID, result.Interrupted.StartedAt.Local())
	}

	if err := removeIndex(temp); err != nil {
		return result, fmt.Errorf("remove temporary index: %w", err)
	}
	if result.RemovedTemp {
		logging.Info("Removed temporary index %s", temp)
	}

	if !filesystem.Exists(backup) {
		logging.Warn("No backup found at %s, production index left as is", backup)
		return result, nil
	}

	if err := database.RemoveSideFiles(prod); err != nil {
		return result, fmt.Errorf("remove production side files: %w", err)
	}
	if err := filesystem.CopyFile(backup, prod); err != nil {
		return result, fmt.Errorf("restore %s: %w", backup, err)
	}

	result.RestoredBackup = true
	result.BackupPath = backup
	logging.Info("Restored index from %s", backup)
	return result, nil
}

// unfinishedRebuild returns the running rebuild recorded in a temporary
// index, or nil when it cannot be read.
func unfinishedRebuild(ctx context.Context, temp string) *database.Operation {
	op := lastRebuild(ctx, temp)
	if op == nil || op.Status != database.OpRunning {
		return nil
	}
	return op
}

func lastRebuild(ctx context.Context, dbPath string) *database.Operation {
	db, err := database.Open(ctx, dbPath)
	if err != nil {
		logging.Debug("Cannot read operations of %s: %v", dbPath, err)
		return nil
	}
	defer db.Close()

	op, err := db.LatestOperation(ctx, database.OpRebuild)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logging.Debug("Cannot read operations of %s: %v", dbPath, err)
		}
		return nil
	}
	return op
}
