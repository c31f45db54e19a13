package handlers

import (
	"context"
	"time"

	"media-library/internal/database"
	"media-library/internal/indexer"
	"media-library/internal/mutation"
	"media-library/internal/startup"
)

// syncer is the part of indexer.Watcher the handlers drive.
type syncer interface {
	SyncNow(ctx context.Context, mode indexer.Mode, sink indexer.EventSink) (*indexer.SyncResult, error)
	IsSyncing() bool
	LastSyncTime() time.Time
	Exclusive(fn func() error) error
}

// dateEditor applies batch date edits.
type dateEditor interface {
	EditDates(ctx context.Context, req mutation.BatchRequest, sink mutation.Sink) (*mutation.BatchResult, error)
}

// statsSource reports library totals.
type statsSource interface {
	Stats(ctx context.Context) (database.LibraryStats, error)
}

// Handlers serves the operations endpoint of a running library.
type Handlers struct {
	dbPath  string
	stats   statsSource
	syncer  syncer
	editor  dateEditor
	started time.Time
}

// New creates Handlers for cfg's library.
func New(cfg *startup.Config, db *database.Database, watcher *indexer.Watcher, editor *mutation.Editor) *Handlers {
	h := newHandlers(cfg.DatabasePath, db, watcher)
	h.editor = editor
	return h
}

func newHandlers(dbPath string, stats statsSource, s syncer) *Handlers {
	return &Handlers{
		dbPath:  dbPath,
		stats:   stats,
		syncer:  s,
		started: time.Now(),
	}
}
