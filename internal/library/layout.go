package library

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Reserved directory names under the library root.
const (
	ThumbnailDirName  = ".thumbnails"
	TrashDirName      = ".trash"
	BackupDirName     = ".db_backups"
	ImportTempDirName = ".import_temp"
	LogDirName        = ".logs"

	DefaultDatabaseName = "photo_library.db"
)

// Layout resolves paths under one library root.
type Layout struct {
	Root string
}

// ThumbnailDir is the root of the sharded thumbnail cache.
func (l Layout) ThumbnailDir() string { return filepath.Join(l.Root, ThumbnailDirName) }

// TrashDir holds files of deleted records.
func (l Layout) TrashDir() string { return filepath.Join(l.Root, TrashDirName) }

// BackupDir holds rotating index backups.
func (l Layout) BackupDir() string { return filepath.Join(l.Root, BackupDirName) }

// ImportTempDir is scratch space for imports and frame extraction.
func (l Layout) ImportTempDir() string { return filepath.Join(l.Root, ImportTempDirName) }

// LogDir holds persistent log files.
func (l Layout) LogDir() string { return filepath.Join(l.Root, LogDirName) }

// ReservedDirs lists every reserved directory.
func (l Layout) ReservedDirs() []string {
	return []string{l.ThumbnailDir(), l.TrashDir(), l.BackupDir(), l.ImportTempDir(), l.LogDir()}
}

// Abs converts a root-relative slash path to an absolute path.
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// Rel converts an absolute path under the root to the slash-separated
// relative form stored in the index.
func (l Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside library %s", abs, l.Root)
	}
	return filepath.ToSlash(rel), nil
}

// ThumbnailPath returns the cache path for a digest, sharded by its first
// two and next two hex characters.
func (l Layout) ThumbnailPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(l.ThumbnailDir(), hash+".jpg")
	}
	return filepath.Join(l.ThumbnailDir(), hash[:2], hash[2:4], hash+".jpg")
}
