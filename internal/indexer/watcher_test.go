package indexer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-library/internal/startup"
)

type countingSyncer struct {
	mu    sync.Mutex
	runs  int
	block chan struct{}
}

func (c *countingSyncer) Run(_ context.Context, mode Mode, _ EventSink) (*SyncResult, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return &SyncResult{Mode: mode}, nil
}

func (c *countingSyncer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcher_InitialAndPeriodicSync(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	cfg.SyncInterval = 50 * time.Millisecond
	syncer := &countingSyncer{}

	w := newWatcher(cfg, syncer)
	var completed int
	var mu sync.Mutex
	w.SetOnSyncComplete(func(*SyncResult) {
		mu.Lock()
		completed++
		mu.Unlock()
	})

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return syncer.count() >= 3 })
	w.Stop()

	if w.LastSyncTime().IsZero() {
		t.Error("LastSyncTime should be set after a sync")
	}
	if w.LastResult() == nil || w.LastResult().Mode != ModeIncremental {
		t.Errorf("LastResult = %+v, want incremental result", w.LastResult())
	}
	mu.Lock()
	defer mu.Unlock()
	if completed < 3 {
		t.Errorf("completion callback ran %d times, want at least 3", completed)
	}
}

func TestWatcher_StopWaitsForInFlightSync(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	cfg.SyncInterval = 0
	syncer := &countingSyncer{block: make(chan struct{})}

	w := newWatcher(cfg, syncer)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, w.IsSyncing)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sync was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(syncer.block)
	<-stopped
	if syncer.count() != 1 {
		t.Errorf("runs = %d, want 1", syncer.count())
	}
}

func TestWatcher_TriggersCollapse(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	w := newWatcher(cfg, &countingSyncer{})

	for i := 0; i < 5; i++ {
		w.TriggerSync()
	}
	if len(w.trigger) != 1 {
		t.Errorf("pending triggers = %d, want 1", len(w.trigger))
	}
}

func TestWatcher_TryStartSync(t *testing.T) {
	w := newWatcher(startup.NewConfig(t.TempDir()), &countingSyncer{})

	if !w.tryStartSync() {
		t.Fatal("first tryStartSync should succeed")
	}
	if w.tryStartSync() {
		t.Error("second tryStartSync should fail while syncing")
	}
	w.finishSync(nil, nil)
	if w.IsSyncing() {
		t.Error("IsSyncing should be false after finishSync")
	}
}

func TestWatcher_SyncNow(t *testing.T) {
	syncer := &countingSyncer{}
	w := newWatcher(startup.NewConfig(t.TempDir()), syncer)

	var completed *SyncResult
	w.SetOnSyncComplete(func(r *SyncResult) { completed = r })

	result, err := w.SyncNow(context.Background(), ModeFull, nil)
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if result.Mode != ModeFull || completed != result {
		t.Errorf("result = %+v, callback got %+v", result, completed)
	}
	if w.LastResult() != result {
		t.Error("LastResult should be the SyncNow result")
	}

	w.tryStartSync()
	if _, err := w.SyncNow(context.Background(), ModeIncremental, nil); err != ErrSyncInProgress {
		t.Errorf("SyncNow during a sync = %v, want ErrSyncInProgress", err)
	}
	if syncer.count() != 1 {
		t.Errorf("runs = %d, want 1", syncer.count())
	}
}

func TestWatcher_Exclusive(t *testing.T) {
	w := newWatcher(startup.NewConfig(t.TempDir()), &countingSyncer{})

	var during bool
	err := w.Exclusive(func() error {
		during = w.IsSyncing()
		if _, err := w.SyncNow(context.Background(), ModeIncremental, nil); err != ErrSyncInProgress {
			t.Errorf("SyncNow inside Exclusive = %v, want ErrSyncInProgress", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Exclusive: %v", err)
	}
	if !during {
		t.Error("IsSyncing should be true inside Exclusive")
	}
	if w.IsSyncing() {
		t.Error("guard not released after Exclusive")
	}
	if len(w.trigger) != 1 {
		t.Error("Exclusive should request a follow-up sync")
	}
	if !w.LastSyncTime().IsZero() {
		t.Error("Exclusive must not count as a sync")
	}

	w.tryStartSync()
	if err := w.Exclusive(func() error { return nil }); err != ErrSyncInProgress {
		t.Errorf("Exclusive during a sync = %v, want ErrSyncInProgress", err)
	}
}

func TestWatcher_Relevant(t *testing.T) {
	cfg := startup.NewConfig(t.TempDir())
	w := newWatcher(cfg, &countingSyncer{})

	tests := []struct {
		rel  string
		want bool
	}{
		{"2020/2020-01-01/a.jpg", true},
		{"2020/2020-01-01", true},
		{"clip.MOV", true},
		{"photo_library.db", false},
		{"photo_library.db-wal", false},
		{".thumbnails/ab/cd/x.jpg", false},
		{"2020/.partial/a.jpg", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := w.relevant(filepath.Join(cfg.Root, filepath.FromSlash(tt.rel))); got != tt.want {
				t.Errorf("relevant(%s) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}

	if w.relevant(filepath.Join(t.TempDir(), "elsewhere.jpg")) {
		t.Error("paths outside the library are not relevant")
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want string
	}{
		{fsnotify.Create, "create"},
		{fsnotify.Write, "write"},
		{fsnotify.Remove, "remove"},
		{fsnotify.Rename, "rename"},
		{fsnotify.Chmod, "chmod"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := eventType(tt.op); got != tt.want {
			t.Errorf("eventType(%v) = %q, want %q", tt.op, got, tt.want)
		}
	}
}
