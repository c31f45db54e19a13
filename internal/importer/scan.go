package importer

import (
	"io/fs"
	"os"
	"path/filepath"

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
)

// Scan expands paths into the media files they name. Files are taken as
// given when their extension is indexable; directories are walked
// recursively, skipping hidden entries. Paths that do not exist are logged
// and skipped. The order of paths is kept; files found in one directory
// are in lexical order.
func Scan(paths []string) []string {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logging.Warn("Import path not found: %s", p)
			continue
		}

		if !info.IsDir() {
			if mediatypes.IsMediaFile(mediatypes.Ext(p)) {
				add(p)
			}
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logging.Warn("Error accessing path %s: %v", path, err)
				return nil
			}
			if path != p && mediatypes.IsHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && mediatypes.IsMediaFile(mediatypes.Ext(d.Name())) {
				add(path)
			}
			return nil
		})
		if err != nil {
			logging.Warn("Failed to scan %s: %v", p, err)
		}
	}
	return files
}
