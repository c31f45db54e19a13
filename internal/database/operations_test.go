package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type editCheckpoint struct {
	Done int `json:"done"`
}

func TestOperations_Lifecycle(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	id, err := db.StartOperation(ctx, "", OpUpdateDate, editCheckpoint{Done: 0})
	if err != nil {
		t.Fatalf("StartOperation() error = %v", err)
	}
	if id == "" {
		t.Fatal("StartOperation() returned empty id")
	}

	if err := db.CheckpointOperation(ctx, id, editCheckpoint{Done: 2}); err != nil {
		t.Fatalf("CheckpointOperation() error = %v", err)
	}

	pending, err := db.IncompleteOperations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id || pending[0].Kind != OpUpdateDate {
		t.Fatalf("IncompleteOperations() = %+v", pending)
	}
	var cp editCheckpoint
	if err := json.Unmarshal(pending[0].Checkpoint, &cp); err != nil || cp.Done != 2 {
		t.Errorf("checkpoint = %s (%v), want done=2", pending[0].Checkpoint, err)
	}

	if err := db.CompleteOperation(ctx, id); err != nil {
		t.Fatalf("CompleteOperation() error = %v", err)
	}
	pending, err = db.IncompleteOperations(ctx)
	if err != nil || len(pending) != 0 {
		t.Errorf("IncompleteOperations() after complete = %+v, %v", pending, err)
	}

	op, err := db.GetOperation(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != OpCompleted || op.Checkpoint != nil {
		t.Errorf("GetOperation() = %+v, want completed without checkpoint", op)
	}

	// A finished operation no longer accepts checkpoints.
	if err := db.CheckpointOperation(ctx, id, editCheckpoint{Done: 3}); !errors.Is(err, ErrNotFound) {
		t.Errorf("CheckpointOperation() on completed = %v, want ErrNotFound", err)
	}
}

func TestOperations_Fail(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	id, err := db.StartOperation(ctx, "op-1", OpDelete, nil)
	if err != nil || id != "op-1" {
		t.Fatalf("StartOperation() = %q, %v", id, err)
	}
	if err := db.FailOperation(ctx, id, errors.New("disk full")); err != nil {
		t.Fatal(err)
	}

	op, err := db.LatestOperation(ctx, OpDelete)
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != OpFailed || op.Error != "disk full" {
		t.Errorf("LatestOperation() = %+v", op)
	}

	if _, err := db.LatestOperation(ctx, OpRebuild); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestOperation(rebuild) error = %v, want ErrNotFound", err)
	}
	if err := db.CompleteOperation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteOperation(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOperations_SurviveReopen(t *testing.T) {
	db, dbPath := setupTestDB(t)
	ctx := context.Background()

	id, err := db.StartOperation(ctx, "", OpImport, editCheckpoint{Done: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Closing without completing stands in for a crash.
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	pending, err := reopened.IncompleteOperations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id || pending[0].Status != OpRunning {
		t.Errorf("IncompleteOperations() after reopen = %+v", pending)
	}
}

func TestCleanupOperations(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	done, _ := db.StartOperation(ctx, "", OpDelete, nil)
	if err := db.CompleteOperation(ctx, done); err != nil {
		t.Fatal(err)
	}
	running, _ := db.StartOperation(ctx, "", OpDelete, nil)

	n, err := db.CleanupOperations(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CleanupOperations() = %d, want 1", n)
	}
	if _, err := db.GetOperation(ctx, running); err != nil {
		t.Errorf("running operation was removed: %v", err)
	}
}

func TestCopyHashCache(t *testing.T) {
	src, srcPath := setupTestDB(t)
	ctx := context.Background()

	for _, e := range []HashCacheEntry{
		{Path: "/lib/a.jpg", MtimeNs: 1, Size: 10, ContentHash: "aa"},
		{Path: "/lib/b.jpg", MtimeNs: 2, Size: 20, ContentHash: "bb"},
	} {
		if err := src.PutCachedHash(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.Checkpoint(ctx); err != nil {
		t.Fatal(err)
	}

	dst, err := Create(ctx, filepath.Join(t.TempDir(), "rebuild.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	if err := dst.PutCachedHash(ctx, HashCacheEntry{Path: "/lib/a.jpg", MtimeNs: 1, Size: 10, ContentHash: "aa"}); err != nil {
		t.Fatal(err)
	}

	n, err := dst.CopyHashCache(ctx, srcPath)
	if err != nil {
		t.Fatalf("CopyHashCache() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CopyHashCache() copied %d, want 1", n)
	}

	hash, ok, err := dst.GetCachedHash(ctx, "/lib/b.jpg", 2, 20)
	if err != nil || !ok || hash != "bb" {
		t.Errorf("GetCachedHash(b) = %q, %v, %v", hash, ok, err)
	}
	if count, _ := dst.CountCachedHashes(ctx); count != 2 {
		t.Errorf("CountCachedHashes() = %d, want 2", count)
	}
}

func TestListRecords(t *testing.T) {
	db, _ := setupTestDB(t)
	insert(t, db, testRecord("2019/2019-03-03/a.jpg", "aa"))
	insert(t, db, testRecord("2019/2019-03-03/b.jpg", "bb"))

	records, err := db.ListRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].ContentHash != "aa" || records[1].ContentHash != "bb" {
		t.Errorf("ListRecords() = %+v", records)
	}
}

func TestTracker(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	ok := db.Track(ctx, "", OpImport, nil)
	ok.Checkpoint(ctx, editCheckpoint{Done: 1})
	ok.Finish(ctx, nil)

	failed := db.Track(ctx, "fixed-id", OpDelete, nil)
	if failed.ID() != "fixed-id" {
		t.Errorf("ID() = %q, want fixed-id", failed.ID())
	}
	failed.Finish(ctx, errors.New("boom"))
	// A second Finish is a no-op.
	failed.Finish(ctx, nil)

	for id, want := range map[string]OperationStatus{ok.ID(): OpCompleted, "fixed-id": OpFailed} {
		op, err := db.GetOperation(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if op.Status != want {
			t.Errorf("operation %s status = %s, want %s", id, op.Status, want)
		}
	}
}
