package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"media-library/internal/database"
	"media-library/internal/hashing"
	"media-library/internal/metadata/metadatatest"
	"media-library/internal/startup"
)

const testDate = "2020:01:01 12:00:00"

type testLibrary struct {
	cfg    *startup.Config
	db     *database.Database
	fake   *metadatatest.Fake
	syncer *Synchronizer
}

func newTestLibrary(t *testing.T) *testLibrary {
	t.Helper()

	cfg := startup.NewConfig(t.TempDir())
	db, err := database.Create(context.Background(), cfg.DatabasePath)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cache, err := hashing.NewCache(db, 100)
	if err != nil {
		t.Fatalf("create hash cache: %v", err)
	}

	fake := metadatatest.New(testDate)
	return &testLibrary{
		cfg:    cfg,
		db:     db,
		fake:   fake,
		syncer: NewSynchronizer(cfg, db, cache, fake),
	}
}

func (l *testLibrary) write(t *testing.T, rel, content string) {
	t.Helper()
	path := l.cfg.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (l *testLibrary) mkdir(t *testing.T, rel string) {
	t.Helper()
	if err := os.MkdirAll(l.cfg.Abs(rel), 0o755); err != nil {
		t.Fatal(err)
	}
}

func (l *testLibrary) sync(t *testing.T, mode Mode) (*SyncResult, []Event) {
	t.Helper()
	var events []Event
	result, err := l.syncer.Run(context.Background(), mode, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return result, events
}

func (l *testLibrary) indexedPaths(t *testing.T) []string {
	t.Helper()
	set, err := l.db.ListPaths(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func TestScanLibrary(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "2020/2020-01-01/a.jpg", "a")
	lib.write(t, "2020/2020-01-01/B.MP4", "b")
	lib.write(t, "notes.txt", "not media")
	lib.write(t, ".hidden.jpg", "hidden")
	lib.write(t, ".trash/old.jpg", "trashed")
	lib.write(t, ".thumbnails/ab/cd/x.jpg", "thumb")
	lib.write(t, "2021/.cache/c.jpg", "hidden dir")

	paths, err := scanLibrary(lib.cfg.Root)
	if err != nil {
		t.Fatalf("scanLibrary: %v", err)
	}

	want := []string{"2020/2020-01-01/B.MP4", "2020/2020-01-01/a.jpg"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("scanLibrary() = %v, want %v", paths, want)
	}
}

func TestScanLibrary_MissingRoot(t *testing.T) {
	if _, err := scanLibrary(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestRun_AddsUntrackedFiles(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "photo a")
	lib.write(t, "clips/b.mov", "video b")

	result, events := lib.sync(t, ModeIncremental)

	if result.Stats.UntrackedFiles != 2 {
		t.Errorf("UntrackedFiles = %d, want 2", result.Stats.UntrackedFiles)
	}
	if got := lib.indexedPaths(t); !reflect.DeepEqual(got, []string{"a.jpg", "clips/b.mov"}) {
		t.Errorf("indexed = %v", got)
	}

	rec, err := lib.db.GetRecordByPath(context.Background(), "clips/b.mov")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != "video" || rec.OriginalFilename != "b.mov" || rec.FileSize != int64(len("video b")) {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.DateTaken == nil || *rec.DateTaken != testDate {
		t.Errorf("DateTaken = %v, want %s", rec.DateTaken, testDate)
	}
	if rec.Width == nil || *rec.Width != 640 || rec.Height == nil || *rec.Height != 480 {
		t.Errorf("dimensions = %v x %v", rec.Width, rec.Height)
	}

	progress := 0
	for _, e := range events {
		if e.Type == EventProgress && e.Phase == PhaseAddingUntracked {
			progress++
			if e.Total != 2 {
				t.Errorf("progress Total = %d, want 2", e.Total)
			}
		}
	}
	if progress != 2 {
		t.Errorf("got %d adding_untracked events, want 2", progress)
	}

	last := events[len(events)-1]
	if last.Type != EventComplete || last.Stats == nil || last.Details == nil {
		t.Fatalf("last event = %+v, want complete with stats", last)
	}
	if !reflect.DeepEqual(last.Details.UntrackedFiles, []string{"a.jpg", "clips/b.mov"}) {
		t.Errorf("details = %v", last.Details.UntrackedFiles)
	}

	if _, err := lib.db.GetTimestamp(context.Background(), database.MetaLastSync); err != nil {
		t.Errorf("last_sync not recorded: %v", err)
	}
}

func TestRun_MoleHashMatchesContent(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "hash me")

	lib.sync(t, ModeIncremental)

	rec, err := lib.db.GetRecordByPath(context.Background(), "a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	want, err := hashing.Compute(lib.cfg.Abs("a.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContentHash != want {
		t.Errorf("ContentHash = %s, want %s", rec.ContentHash, want)
	}
}

func TestRun_IncrementalIsIdempotent(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "2020/2020-01-01/a.jpg", "a")
	lib.write(t, "2020/2020-01-02/b.jpg", "b")

	lib.sync(t, ModeIncremental)
	before, err := lib.db.GetRecords(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	result, _ := lib.sync(t, ModeIncremental)

	if result.Stats != (Stats{}) {
		t.Errorf("second run stats = %+v, want all zero", result.Stats)
	}
	after, err := lib.db.GetRecords(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("records changed on second run:\n before %+v\n after  %+v", before, after)
	}
}

func TestRun_NewFileAndEmptyDirectory(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "2019/A.jpg", "content A")
	lib.sync(t, ModeIncremental)

	lib.write(t, "2019/B.jpg", "content B")
	lib.mkdir(t, "2019/2019-03-03")

	result, events := lib.sync(t, ModeIncremental)

	if result.Stats.UntrackedFiles != 1 || result.Stats.MissingFiles != 0 || result.Stats.EmptyFolders != 1 {
		t.Errorf("stats = %+v, want untracked=1 missing=0 empty_folders=1", result.Stats)
	}
	if got := lib.indexedPaths(t); !reflect.DeepEqual(got, []string{"2019/A.jpg", "2019/B.jpg"}) {
		t.Errorf("indexed = %v", got)
	}
	if _, err := os.Stat(lib.cfg.Abs("2019/2019-03-03")); !os.IsNotExist(err) {
		t.Error("empty directory should be removed")
	}
	if !reflect.DeepEqual(result.Details.EmptyFolders, []string{"2019/2019-03-03"}) {
		t.Errorf("EmptyFolders = %v", result.Details.EmptyFolders)
	}

	found := false
	for _, e := range events {
		if e.Phase == PhaseRemovingEmpty && e.Path == "2019/2019-03-03" {
			found = true
		}
	}
	if !found {
		t.Error("expected a removing_empty progress event")
	}
}

func TestRun_DeletedFile(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "2020/2020-05-05/C.jpg", "content C")
	lib.write(t, "2020/2020-05-06/D.jpg", "content D")
	lib.sync(t, ModeIncremental)

	if err := os.Remove(lib.cfg.Abs("2020/2020-05-05/C.jpg")); err != nil {
		t.Fatal(err)
	}

	result, events := lib.sync(t, ModeIncremental)

	if result.Stats.MissingFiles != 1 {
		t.Errorf("MissingFiles = %d, want 1", result.Stats.MissingFiles)
	}
	if !reflect.DeepEqual(result.Details.MissingFiles, []string{"2020/2020-05-05/C.jpg"}) {
		t.Errorf("MissingFiles details = %v", result.Details.MissingFiles)
	}
	if got := lib.indexedPaths(t); !reflect.DeepEqual(got, []string{"2020/2020-05-06/D.jpg"}) {
		t.Errorf("indexed = %v", got)
	}
	if result.Stats.EmptyFolders != 1 {
		t.Errorf("EmptyFolders = %d, want 1 (the emptied day folder)", result.Stats.EmptyFolders)
	}
	if events[0].Phase != PhaseRemovingDeleted || events[0].Total != 1 {
		t.Errorf("first event = %+v, want removing_deleted 1/1", events[0])
	}
}

func TestRun_DuplicateContentFirstWriterWins(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a/original.jpg", "same bytes")
	lib.write(t, "b/copy.jpg", "same bytes")

	result, _ := lib.sync(t, ModeIncremental)

	if result.Stats.UntrackedFiles != 1 || result.Stats.Duplicates != 1 {
		t.Fatalf("stats = %+v, want 1 untracked and 1 duplicate", result.Stats)
	}
	want := []Duplicate{{Path: "b/copy.jpg", ExistingPath: "a/original.jpg"}}
	if !reflect.DeepEqual(result.Details.Duplicates, want) {
		t.Errorf("Duplicates = %+v, want %+v", result.Details.Duplicates, want)
	}
	if _, err := os.Stat(lib.cfg.Abs("b/copy.jpg")); err != nil {
		t.Error("duplicate file must stay on disk")
	}

	again, _ := lib.sync(t, ModeIncremental)
	if again.Stats.UntrackedFiles != 0 || again.Stats.MissingFiles != 0 {
		t.Errorf("re-sync changed the index: %+v", again.Stats)
	}
	if !reflect.DeepEqual(again.Details.Duplicates, want) {
		t.Errorf("re-sync duplicates = %+v", again.Details.Duplicates)
	}
}

func TestDuplicates(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a/original.jpg", "same bytes")
	lib.write(t, "c/unique.jpg", "other bytes")
	lib.sync(t, ModeIncremental)

	lib.write(t, "b/copy.jpg", "same bytes")
	lib.write(t, "d/new.jpg", "new bytes")

	got, err := lib.syncer.Duplicates(context.Background())
	if err != nil {
		t.Fatalf("Duplicates() error = %v", err)
	}
	want := []Duplicate{{Path: "b/copy.jpg", ExistingPath: "a/original.jpg"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Duplicates() = %+v, want %+v", got, want)
	}

	paths := lib.indexedPaths(t)
	if len(paths) != 2 {
		t.Errorf("indexed paths = %v, scan must not change the index", paths)
	}
}

func TestDuplicates_None(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "a")
	lib.sync(t, ModeIncremental)

	got, err := lib.syncer.Duplicates(context.Background())
	if err != nil {
		t.Fatalf("Duplicates() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Duplicates() = %+v, want none", got)
	}
}

func TestRun_FailedFileIsSkipped(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "good.jpg", "good")
	lib.write(t, "bad.jpg", "bad")
	lib.fake.DateErrors["bad.jpg"] = errors.New("exiftool exploded")

	result, _ := lib.sync(t, ModeIncremental)

	if result.Stats.UntrackedFiles != 1 || result.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 untracked and 1 failed", result.Stats)
	}
	if len(result.Details.Failed) != 1 || result.Details.Failed[0].Path != "bad.jpg" {
		t.Errorf("Failed = %+v", result.Details.Failed)
	}
	if got := lib.indexedPaths(t); !reflect.DeepEqual(got, []string{"good.jpg"}) {
		t.Errorf("indexed = %v", got)
	}
}

func TestRun_DimensionFailureStoresNull(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.heic", "heic")
	lib.fake.DimsErrors["a.heic"] = errors.New("no decoder")

	result, _ := lib.sync(t, ModeIncremental)
	if result.Stats.UntrackedFiles != 1 {
		t.Fatalf("UntrackedFiles = %d, want 1", result.Stats.UntrackedFiles)
	}

	rec, err := lib.db.GetRecordByPath(context.Background(), "a.heic")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Width != nil || rec.Height != nil {
		t.Errorf("dimensions = %v x %v, want null", rec.Width, rec.Height)
	}
}

func TestRun_NullCaptureDate(t *testing.T) {
	lib := newTestLibrary(t)
	lib.fake.DefaultDate = ""
	lib.write(t, "a.png", "png")

	lib.sync(t, ModeIncremental)

	rec, err := lib.db.GetRecordByPath(context.Background(), "a.png")
	if err != nil {
		t.Fatal(err)
	}
	if rec.DateTaken != nil {
		t.Errorf("DateTaken = %q, want null", *rec.DateTaken)
	}
}

func TestRun_FullModeRemovesNothing(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "a")

	result, _ := lib.sync(t, ModeFull)
	if result.Stats.UntrackedFiles != 1 || result.Stats.MissingFiles != 0 {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.Mode != ModeFull {
		t.Errorf("Mode = %s, want full", result.Mode)
	}
}

func TestRun_WalkFailureEmitsError(t *testing.T) {
	lib := newTestLibrary(t)
	if err := os.RemoveAll(lib.cfg.Root); err != nil {
		t.Fatal(err)
	}

	var events []Event
	_, err := lib.syncer.Run(context.Background(), ModeIncremental, func(e Event) { events = append(events, e) })
	if err == nil {
		t.Fatal("expected error when the root is gone")
	}
	if len(events) != 1 || events[0].Type != EventError || events[0].Message == "" {
		t.Errorf("events = %+v, want a single error event", events)
	}
}

func TestRun_CleansStaleHashCache(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "a")
	lib.write(t, "b.jpg", "b")
	lib.sync(t, ModeIncremental)

	if err := os.Remove(lib.cfg.Abs("b.jpg")); err != nil {
		t.Fatal(err)
	}
	lib.sync(t, ModeIncremental)

	n, err := lib.db.CountCachedHashes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cached hashes = %d, want 1 after cleanup", n)
	}
}

func TestRun_NilSink(t *testing.T) {
	lib := newTestLibrary(t)
	lib.write(t, "a.jpg", "a")

	if _, err := lib.syncer.Run(context.Background(), ModeIncremental, nil); err != nil {
		t.Fatalf("Run with nil sink: %v", err)
	}
}
