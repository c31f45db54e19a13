package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"media-library/internal/logging"
)

// DefaultPrunePasses bounds PruneEmptyDirs. Each pass can cascade through a
// whole branch, so more passes only matter when directories are created
// concurrently.
const DefaultPrunePasses = 10

// Exists reports whether path exists. Errors other than not-exist count as
// existing so callers do not overwrite something they cannot see.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// MoveFile renames src to dst, creating dst's parent directory. When the
// rename crosses devices the file is copied and the source removed.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	logging.Debug("Cross-device move %s -> %s, falling back to copy", src, dst)
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyFile copies src to dst preserving permission bits and modification
// time. A partially written dst is removed on failure.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// isEffectivelyEmpty reports whether dir holds nothing but hidden files,
// removing those hidden files so the directory itself can be removed.
func isEffectivelyEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return false
		}
	}

	for _, e := range entries {
		if e.Type().IsRegular() {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				logging.Debug("Could not remove hidden file %s: %v", filepath.Join(dir, e.Name()), err)
			}
		}
	}
	return true
}

// PruneEmptyDirs removes empty directories under root bottom-up, repeating
// until a pass removes nothing or maxPasses is reached. Root itself and any
// dot-directory subtree are never touched. onRemoved, if set, is called with
// the root-relative slash path of each removed directory.
func PruneEmptyDirs(root string, maxPasses int, onRemoved func(rel string)) ([]string, error) {
	if maxPasses <= 0 {
		maxPasses = DefaultPrunePasses
	}

	var removed []string
	for pass := 1; pass <= maxPasses; pass++ {
		var dirs []string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				logging.Debug("Prune walk skipping %s: %v", path, err)
				return nil
			}
			if !d.IsDir() || path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("walk %s: %w", root, err)
		}

		removedThisPass := 0
		for i := len(dirs) - 1; i >= 0; i-- {
			dir := dirs[i]
			if !isEffectivelyEmpty(dir) {
				continue
			}
			if err := os.Remove(dir); err != nil {
				logging.Debug("Could not remove empty directory %s: %v", dir, err)
				continue
			}

			rel, _ := filepath.Rel(root, dir)
			rel = filepath.ToSlash(rel)
			removed = append(removed, rel)
			removedThisPass++
			if onRemoved != nil {
				onRemoved(rel)
			}
		}

		if removedThisPass == 0 {
			return removed, nil
		}
		if pass == maxPasses {
			logging.Warn("Stopped pruning empty directories after %d passes (safety limit)", maxPasses)
		}
	}

	return removed, nil
}

// RemoveEmptyParents removes dir and then each ancestor while they are
// effectively empty, stopping at stop (which is never removed) or at the
// first directory that still has content.
func RemoveEmptyParents(dir, stop string) []string {
	stop = filepath.Clean(stop)
	var removed []string

	for dir = filepath.Clean(dir); dir != stop && strings.HasPrefix(dir, stop+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if !isEffectivelyEmpty(dir) {
			break
		}
		if err := os.Remove(dir); err != nil {
			logging.Debug("Could not remove directory %s: %v", dir, err)
			break
		}
		removed = append(removed, dir)
	}

	return removed
}
