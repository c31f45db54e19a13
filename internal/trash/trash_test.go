package trash

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-library/internal/database"
	"media-library/internal/hashing"
	"media-library/internal/mediatypes"
	"media-library/internal/startup"
)

type testEnv struct {
	cfg   *startup.Config
	db    *database.Database
	trash *Trash
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := startup.NewConfig(t.TempDir())
	db, err := database.Create(context.Background(), cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tr := New(cfg, db)
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &testEnv{cfg: cfg, db: db, trash: tr}
}

func (e *testEnv) add(t *testing.T, rel, content string) *database.MediaRecord {
	t.Helper()

	abs := e.cfg.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	digest, err := hashing.Compute(abs)
	require.NoError(t, err)

	rec := &database.MediaRecord{
		OriginalFilename: path.Base(rel),
		Path:             rel,
		DateTaken:        database.StringPtr("2024:05:06 07:08:09"),
		ContentHash:      digest,
		FileSize:         int64(len(content)),
		Kind:             mediatypes.KindOf(rel),
		Rating:           database.IntPtr(4),
	}
	tx, err := e.db.BeginBatch()
	require.NoError(t, err)
	rec.ID, err = e.db.InsertRecord(context.Background(), tx, rec)
	require.NoError(t, e.db.EndBatch(tx, err))
	return rec
}

func (e *testEnv) thumbnail(t *testing.T, hash string) string {
	t.Helper()
	p := e.cfg.ThumbnailPath(hash)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))
	return p
}

func TestDelete_TombstonesRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.add(t, "2024/2024-05-06/img_20240506_aaaa1111.jpg", "photo one")
	thumb := env.thumbnail(t, rec.ContentHash)

	result, err := env.trash.Delete(ctx, []int64{rec.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, result.Done)
	assert.Empty(t, result.Errors)
	assert.FileExists(t, result.BackupPath)

	assert.FileExists(t, filepath.Join(env.cfg.TrashDir(), "img_20240506_aaaa1111.jpg"))
	assert.NoFileExists(t, thumb)
	assert.NoDirExists(t, env.cfg.Abs("2024"), "emptied date folders are pruned")

	_, err = env.db.GetRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	stones, err := env.trash.List(ctx)
	require.NoError(t, err)
	require.Len(t, stones, 1)
	assert.Equal(t, rec.Path, stones[0].OriginalPath)
	assert.Equal(t, rec.ContentHash, stones[0].Record.ContentHash)
	assert.Equal(t, 4, *stones[0].Record.Rating)
}

func TestDelete_TrashNameCollision(t *testing.T) {
	env := newTestEnv(t)
	a := env.add(t, "2024/2024-05-06/photo.jpg", "first")
	b := env.add(t, "2024/2024-05-07/photo.jpg", "second")

	result, err := env.trash.Delete(context.Background(), []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, result.Done, 2)

	stone, err := env.db.GetTombstone(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "photo_1.jpg", stone.TrashFilename)
	assert.FileExists(t, filepath.Join(env.cfg.TrashDir(), "photo.jpg"))
	assert.FileExists(t, filepath.Join(env.cfg.TrashDir(), "photo_1.jpg"))
}

func TestDelete_PerIDErrors(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "2024/2024-05-06/keep.jpg", "content")

	result, err := env.trash.Delete(context.Background(), []int64{999, rec.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, result.Done)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(999), result.Errors[0].ID)
	assert.Equal(t, 2, result.Total())

	op, err := env.db.GetOperation(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, database.OpFailed, op.Status)
	assert.Contains(t, op.Error, "1 of 2")
	assert.Contains(t, string(op.Checkpoint), `"done":[`)
}

func TestDelete_RecordsCompletedOperation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "2024/2024-05-06/a.jpg", "content")

	result, err := env.trash.Delete(context.Background(), []int64{rec.ID})
	require.NoError(t, err)
	require.NotEmpty(t, result.OperationID)

	op, err := env.db.GetOperation(context.Background(), result.OperationID)
	require.NoError(t, err)
	assert.Equal(t, database.OpDelete, op.Kind)
	assert.Equal(t, database.OpCompleted, op.Status)

	pending, err := env.db.IncompleteOperations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDelete_MissingFileStillTombstoned(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "2024/2024-05-06/gone.jpg", "content")
	require.NoError(t, os.Remove(env.cfg.Abs(rec.Path)))

	result, err := env.trash.Delete(context.Background(), []int64{rec.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, result.Done)

	stone, err := env.db.GetTombstone(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "gone.jpg", stone.TrashFilename)
}

func TestRestore_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.add(t, "2024/2024-05-06/img_20240506_aaaa1111.jpg", "photo one")

	_, err := env.trash.Delete(ctx, []int64{rec.ID})
	require.NoError(t, err)

	result, err := env.trash.Restore(ctx, []int64{rec.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, result.Done)

	restored, err := env.db.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Path, restored.Path)
	assert.Equal(t, rec.ContentHash, restored.ContentHash)
	assert.Equal(t, *rec.DateTaken, *restored.DateTaken)
	assert.FileExists(t, env.cfg.Abs(rec.Path))

	stones, err := env.trash.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stones)
}

func TestRestore_OriginalPathTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.add(t, "2024/2024-05-06/photo.jpg", "original")

	_, err := env.trash.Delete(ctx, []int64{rec.ID})
	require.NoError(t, err)
	env.add(t, "2024/2024-05-06/photo.jpg", "newcomer")

	result, err := env.trash.Restore(ctx, []int64{rec.ID})
	require.NoError(t, err)
	require.Equal(t, []int64{rec.ID}, result.Done)

	restored, err := env.db.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024/2024-05-06/photo_1.jpg", restored.Path)

	data, err := os.ReadFile(env.cfg.Abs(restored.Path))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestRestore_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.add(t, "2024/2024-05-06/photo.jpg", "content")

	_, err := env.trash.Delete(ctx, []int64{rec.ID})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.cfg.TrashDir(), "photo.jpg")))

	result, err := env.trash.Restore(ctx, []int64{rec.ID, 42})
	require.NoError(t, err)
	assert.Empty(t, result.Done)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Err, "photo.jpg")
	assert.Contains(t, result.Errors[1].Err, ErrNotInTrash.Error())

	_, err = env.db.GetTombstone(ctx, rec.ID)
	assert.NoError(t, err, "a failed restore keeps the tombstone")
}

func TestRestore_DuplicateHashPutsFileBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.add(t, "2024/2024-05-06/photo.jpg", "same bytes")

	_, err := env.trash.Delete(ctx, []int64{rec.ID})
	require.NoError(t, err)
	env.add(t, "2024/2024-05-08/copy.jpg", "same bytes")

	result, err := env.trash.Restore(ctx, []int64{rec.ID})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)

	assert.FileExists(t, filepath.Join(env.cfg.TrashDir(), "photo.jpg"))
	assert.NoFileExists(t, env.cfg.Abs(rec.Path))
	assert.NoDirExists(t, env.cfg.Abs("2024/2024-05-06"))
}

func TestPurgeAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.add(t, "2024/2024-05-06/a.jpg", "a")
	b := env.add(t, "2024/2024-05-06/b.jpg", "b")
	c := env.add(t, "2024/2024-05-06/c.jpg", "c")

	_, err := env.trash.Delete(ctx, []int64{a.ID, b.ID, c.ID})
	require.NoError(t, err)

	result, err := env.trash.Purge(ctx, []int64{a.ID, 77})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, result.Done)
	require.Len(t, result.Errors, 1)
	assert.NoFileExists(t, filepath.Join(env.cfg.TrashDir(), "a.jpg"))

	result, err = env.trash.Empty(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{b.ID, c.ID}, result.Done)

	stones, err := env.trash.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stones)

	entries, err := os.ReadDir(env.cfg.TrashDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
