package indexer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
	"media-library/internal/startup"
)

// Default delay between the last filesystem event and the sync it triggers.
const defaultDebounce = 2 * time.Second

type syncRunner interface {
	Run(ctx context.Context, mode Mode, sink EventSink) (*SyncResult, error)
}

// Watcher keeps the index current by running incremental syncs on startup,
// after bursts of filesystem events and on a fixed interval. At most one
// sync runs at a time; triggers that arrive during a sync collapse into
// one follow-up run.
type Watcher struct {
	layout   library.Layout
	syncer   syncRunner
	interval time.Duration
	debounce time.Duration

	stopChan chan struct{}
	trigger  chan struct{}
	wg       sync.WaitGroup

	syncMu     sync.Mutex
	isSyncing  bool
	lastSync   time.Time
	lastResult *SyncResult

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	onSyncComplete func(*SyncResult)
}

// NewWatcher creates a Watcher for cfg's library driving syncer.
func NewWatcher(cfg *startup.Config, syncer *Synchronizer) *Watcher {
	return newWatcher(cfg, syncer)
}

func newWatcher(cfg *startup.Config, syncer syncRunner) *Watcher {
	return &Watcher{
		layout:   cfg.Layout,
		syncer:   syncer,
		interval: cfg.SyncInterval,
		debounce: defaultDebounce,
		stopChan: make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}
}

// SetOnSyncComplete sets a callback invoked after every successful sync.
func (w *Watcher) SetOnSyncComplete(callback func(*SyncResult)) {
	w.onSyncComplete = callback
}

// Start runs an initial sync and begins watching. Failing to set up
// filesystem notifications is not fatal; the periodic sync still runs.
func (w *Watcher) Start() error {
	w.TriggerSync()

	w.wg.Add(2)
	go w.runLoop()
	go w.periodicSync()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("Failed to create file watcher, relying on periodic sync: %v", err)
		return nil
	}

	count := w.addDirectories(watcher, w.layout.Root)
	logging.Info("Watching %d directories under %s", count, w.layout.Root)

	w.wg.Add(1)
	go w.processEvents(watcher)
	return nil
}

// Stop ends all loops and waits for them. A sync in flight runs to
// completion first.
func (w *Watcher) Stop() {
	close(w.stopChan)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	w.wg.Wait()
}

// TriggerSync requests an incremental sync without blocking.
func (w *Watcher) TriggerSync() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// IsSyncing returns whether a sync is currently in progress.
func (w *Watcher) IsSyncing() bool {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	return w.isSyncing
}

// LastSyncTime returns the completion time of the last successful sync.
func (w *Watcher) LastSyncTime() time.Time {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	return w.lastSync
}

// LastResult returns the result of the last successful sync, or nil.
func (w *Watcher) LastResult() *SyncResult {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	return w.lastResult
}

func (w *Watcher) runLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.trigger:
			w.runSync()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) periodicSync() {
	defer w.wg.Done()
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic sync triggered")
			w.TriggerSync()
		case <-w.stopChan:
			return
		}
	}
}

// ErrSyncInProgress is returned by SyncNow while another sync is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncNow runs a sync on the calling goroutine, streaming events to sink.
// It shares the single-sync guard with the background loops.
func (w *Watcher) SyncNow(ctx context.Context, mode Mode, sink EventSink) (*SyncResult, error) {
	if !w.tryStartSync() {
		return nil, ErrSyncInProgress
	}

	result, err := w.syncer.Run(ctx, mode, sink)
	w.finishSync(result, err)

	if err == nil && w.onSyncComplete != nil {
		w.onSyncComplete(result)
	}
	return result, err
}

// Exclusive runs fn while holding the single-sync guard so no sync sees
// the library mid-change. A follow-up sync is triggered afterwards.
func (w *Watcher) Exclusive(fn func() error) error {
	if !w.tryStartSync() {
		return ErrSyncInProgress
	}

	err := fn()

	w.syncMu.Lock()
	w.isSyncing = false
	w.syncMu.Unlock()

	w.TriggerSync()
	return err
}

func (w *Watcher) runSync() {
	if !w.tryStartSync() {
		logging.Info("Sync already in progress, skipping...")
		return
	}

	result, err := w.syncer.Run(context.Background(), ModeIncremental, nil)
	w.finishSync(result, err)

	if err == nil && w.onSyncComplete != nil {
		w.onSyncComplete(result)
	}
}

// tryStartSync attempts to start a sync, returns false if already in progress.
func (w *Watcher) tryStartSync() bool {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	if w.isSyncing {
		return false
	}
	w.isSyncing = true
	return true
}

// finishSync marks the sync as complete.
func (w *Watcher) finishSync(result *SyncResult, err error) {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.isSyncing = false
	if err == nil {
		w.lastSync = time.Now()
		w.lastResult = result
	}
}

// addDirectories adds dir and every non-hidden directory below it.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher, dir string) int {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.layout.Root && mediatypes.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		logging.Error("failed to walk library for watcher: %v", err)
	}
	return count
}

func (w *Watcher) processEvents(watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !w.relevant(event.Name) {
		return
	}

	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			n := w.addDirectories(watcher, event.Name)
			logging.Debug("Added %d new directories to watcher under %s", n, event.Name)
		}
	}

	w.scheduleSync()
}

// relevant filters out hidden paths and files the index never holds, such
// as the index file itself. Extensionless names are kept since they are
// usually directories.
func (w *Watcher) relevant(name string) bool {
	rel, err := w.layout.Rel(name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if mediatypes.IsHidden(part) {
			return false
		}
	}
	ext := mediatypes.Ext(name)
	return ext == "" || mediatypes.IsMediaFile(ext)
}

// scheduleSync restarts the debounce timer.
func (w *Watcher) scheduleSync() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.TriggerSync)
}

// eventType returns a string representation of the fsnotify operation
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
