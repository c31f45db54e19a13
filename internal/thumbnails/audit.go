package thumbnails

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/library"
	"media-library/internal/logging"
)

// AuditReport compares the thumbnail cache against the index.
type AuditReport struct {
	Present int
	// Missing lists one job per indexed hash without a cached thumbnail.
	Missing []Job
	// Orphans are cached thumbnails whose hash is not in the index.
	Orphans []string
}

// Audit walks the thumbnail cache and reports which indexed records lack a
// thumbnail and which cached files no record refers to. Records sharing a
// hash need only one thumbnail.
func Audit(layout library.Layout, records []database.MediaRecord) (AuditReport, error) {
	var report AuditReport

	wanted := make(map[string]database.MediaRecord, len(records))
	for _, rec := range records {
		if rec.ContentHash == "" {
			continue
		}
		if _, ok := wanted[rec.ContentHash]; !ok {
			wanted[rec.ContentHash] = rec
		}
	}

	cached := make(map[string]bool)
	root := layout.ThumbnailDir()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jpg") {
			return nil
		}

		hash := strings.TrimSuffix(d.Name(), ".jpg")
		if _, ok := wanted[hash]; ok && path == layout.ThumbnailPath(hash) {
			info, err := d.Info()
			if err == nil && info.Size() > 0 {
				cached[hash] = true
				return nil
			}
		}
		report.Orphans = append(report.Orphans, path)
		return nil
	})
	if err != nil {
		return report, err
	}

	for hash, rec := range wanted {
		if cached[hash] {
			report.Present++
			continue
		}
		report.Missing = append(report.Missing, Job{
			Path: layout.Abs(rec.Path),
			Hash: hash,
			Kind: rec.Kind,
		})
	}
	sort.Slice(report.Missing, func(i, j int) bool { return report.Missing[i].Hash < report.Missing[j].Hash })
	sort.Strings(report.Orphans)
	return report, nil
}

// RemoveOrphans deletes the given cache files and any shard directories
// left empty. It returns how many were removed.
func RemoveOrphans(layout library.Layout, paths []string) (int, error) {
	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		removed++
		filesystem.RemoveEmptyParents(filepath.Dir(path), layout.ThumbnailDir())
	}
	if removed > 0 {
		logging.Info("Removed %d orphaned thumbnails", removed)
	}
	return removed, nil
}
