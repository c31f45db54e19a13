package thumbnails

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-library/internal/database"
	"media-library/internal/mediatypes"
	"media-library/internal/startup"
)

func writeThumb(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("thumb"), 0o644))
}

func TestAudit(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	present := testHash
	missing := strings.Repeat("1", 64)
	orphan := strings.Repeat("f", 64)

	records := []database.MediaRecord{
		{ID: 1, Path: "2020/2020-01-01/a.jpg", ContentHash: present, Kind: mediatypes.KindPhoto},
		{ID: 2, Path: "2020/2020-01-01/b.mp4", ContentHash: missing, Kind: mediatypes.KindVideo},
		{ID: 3, Path: "2020/2020-01-01/c.mp4", ContentHash: missing, Kind: mediatypes.KindVideo},
	}
	writeThumb(t, cfg.ThumbnailPath(present))
	writeThumb(t, cfg.ThumbnailPath(orphan))
	misplaced := filepath.Join(cfg.ThumbnailDir(), present+".jpg")
	writeThumb(t, misplaced)

	report, err := Audit(cfg.Layout, records)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Present)
	require.Len(t, report.Missing, 1, "records sharing a hash need one thumbnail")
	assert.Equal(t, Job{Path: cfg.Abs("2020/2020-01-01/b.mp4"), Hash: missing, Kind: mediatypes.KindVideo}, report.Missing[0])
	assert.ElementsMatch(t, []string{cfg.ThumbnailPath(orphan), misplaced}, report.Orphans)
}

func TestAudit_EmptyThumbnailCountsAsMissing(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	path := cfg.ThumbnailPath(testHash)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	report, err := Audit(cfg.Layout, []database.MediaRecord{{ID: 1, Path: "a.jpg", ContentHash: testHash, Kind: mediatypes.KindPhoto}})
	require.NoError(t, err)
	assert.Zero(t, report.Present)
	assert.Len(t, report.Missing, 1)
	assert.Equal(t, []string{path}, report.Orphans, "a truncated thumbnail is cleared before regenerating")
}

func TestAudit_NoCacheDir(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())

	report, err := Audit(cfg.Layout, []database.MediaRecord{{ID: 1, Path: "a.jpg", ContentHash: testHash}})
	require.NoError(t, err)
	assert.Len(t, report.Missing, 1)
	assert.Empty(t, report.Orphans)
}

func TestRemoveOrphans(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	orphan := cfg.ThumbnailPath(strings.Repeat("f", 64))
	writeThumb(t, orphan)

	n, err := RemoveOrphans(cfg.Layout, []string{orphan, cfg.ThumbnailPath(strings.Repeat("e", 64))})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, orphan)
	assert.NoDirExists(t, filepath.Join(cfg.ThumbnailDir(), "ff"))
}
