package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_db_queries_total",
			Help: "Total number of index queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_query_duration_seconds",
			Help:    "Index query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_transaction_duration_seconds",
			Help:    "Index transaction duration in seconds by outcome",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_library_db_size_bytes",
			Help: "Size of SQLite index files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	DBBackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_db_backups_total",
			Help: "Total number of index backups taken",
		},
		[]string{"status"},
	)
)

// Library metrics
var (
	MediaFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_library_media_files",
			Help: "Number of indexed media records by kind",
		},
		[]string{"kind"},
	)

	MediaBytesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_media_bytes",
			Help: "Total size of indexed media in bytes",
		},
	)

	TrashItemsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_trash_items",
			Help: "Number of tombstoned records awaiting restore or purge",
		},
	)

	TrashOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_trash_operations_total",
			Help: "Records deleted, restored or purged, by outcome",
		},
		[]string{"operation", "status"},
	)

	ImportItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_import_items_total",
			Help: "Files processed by import, by outcome",
		},
		[]string{"outcome"},
	)
)

// Sync metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_sync_runs_total",
			Help: "Total number of library sync runs",
		},
		[]string{"mode", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_sync_duration_seconds",
			Help:    "Library sync duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"mode"},
	)

	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_sync_items_total",
			Help: "Items handled by sync by outcome",
		},
		[]string{"outcome"}, // "missing", "untracked", "duplicate", "failed", "empty_folder"
	)

	SyncLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_sync_last_run_timestamp",
			Help: "Unix timestamp of the last completed sync",
		},
	)

	SyncIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_sync_is_running",
			Help: "Whether a sync is currently running (1) or not (0)",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_watcher_events_total",
			Help: "Filesystem watcher events by type",
		},
		[]string{"type"},
	)
)

// Hash cache metrics
var (
	HashCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_hash_cache_lookups_total",
			Help: "Hash cache lookups by result level",
		},
		[]string{"result"}, // "memory", "persistent", "miss", "error"
	)

	HashComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_hash_compute_duration_seconds",
			Help:    "Time spent hashing file contents",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)

	HashCacheStaleRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_hash_cache_stale_removed_total",
			Help: "Hash cache paths removed because the file no longer exists",
		},
	)
)

// Rebuild metrics
var (
	RebuildRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_rebuild_runs_total",
			Help: "Total number of index rebuilds by status",
		},
		[]string{"status"}, // "success", "build_failed", "commit_failed"
	)

	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_rebuild_duration_seconds",
			Help:    "Index rebuild duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		},
	)
)

// Mutation metrics
var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_mutations_total",
			Help: "Date edit transactions by scope and outcome",
		},
		[]string{"scope", "outcome"}, // scope: "single", "batch"; outcome: "committed", "rolled_back"
	)

	MutationUndoErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_mutation_undo_errors_total",
			Help: "Undo steps that failed during rollback",
		},
	)

	MetadataToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_metadata_tool_duration_seconds",
			Help:    "External metadata tool invocation duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool", "operation"},
	)

	MetadataToolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_metadata_tool_errors_total",
			Help: "External metadata tool failures by kind",
		},
		[]string{"tool", "kind"},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"kind", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	ThumbnailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_thumbnail_queue_depth",
			Help: "Jobs waiting in the thumbnail worker queue",
		},
	)

	ThumbnailQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_thumbnail_queue_dropped_total",
			Help: "Thumbnail jobs dropped because the queue was full",
		},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_attempts_total",
			Help: "Retry attempts after stale NFS file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// HTTP metrics for the operations endpoint
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the Go soft memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_paused",
			Help: "1 while background work is paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_memory_pauses_total",
			Help: "Times background work was paused for memory pressure",
		},
	)
)
