package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// DefaultBackupKeep is how many rotating backups are retained.
const DefaultBackupKeep = 20

const (
	backupPrefix = "media_library_"
	backupLayout = "20060102_150405"
)

// CreateBackup writes a consistent snapshot of the index into backupDir as
// media_library_YYYYMMDD_HHMMSS.db and removes the oldest snapshots beyond
// keep. It returns the new backup's path.
func (d *Database) CreateBackup(ctx context.Context, backupDir string, keep int) (string, error) {
	start := time.Now()
	var err error
	defer func() {
		recordQuery("backup", start, err)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBBackupsTotal.WithLabelValues(status).Inc()
	}()

	if err = os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dest := filepath.Join(backupDir, backupPrefix+time.Now().Format(backupLayout)+".db")
	for n := 1; fileExists(dest); n++ {
		dest = filepath.Join(backupDir, fmt.Sprintf("%s%s_%d.db", backupPrefix, time.Now().Format(backupLayout), n))
	}

	d.mu.Lock()
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	_, err = d.db.ExecContext(ctx, "VACUUM INTO ?", dest)
	cancel()
	d.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("snapshot index to %s: %w", dest, err)
	}

	logging.Info("Created index backup: %s", dest)

	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	if removed := rotateBackups(backupDir, keep); removed > 0 {
		logging.Debug("Removed %d old index backups", removed)
	}

	return dest, nil
}

// ListBackups returns backup paths in backupDir, newest first.
func ListBackups(backupDir string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	// The timestamp layout sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(backupDir, n)
	}
	return paths, nil
}

func rotateBackups(backupDir string, keep int) int {
	backups, err := ListBackups(backupDir)
	if err != nil {
		logging.Warn("Failed to list backups for rotation: %v", err)
		return 0
	}

	removed := 0
	for _, old := range backups[min(keep, len(backups)):] {
		if err := os.Remove(old); err != nil {
			logging.Warn("Failed to remove old backup %s: %v", old, err)
			continue
		}
		removed++
	}
	return removed
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
