package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}
	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}
	for _, status := range []string{"success", "error"} {
		DBBackupsTotal.WithLabelValues(status)
	}

	for _, kind := range []string{"photo", "video"} {
		MediaFilesTotal.WithLabelValues(kind)
		for _, status := range []string{"success", "error", "skipped"} {
			ThumbnailGenerationsTotal.WithLabelValues(kind, status)
		}
		ThumbnailGenerationDuration.WithLabelValues(kind)
	}

	for _, mode := range []string{"incremental", "full"} {
		SyncDuration.WithLabelValues(mode)
		for _, status := range []string{"success", "error"} {
			SyncRunsTotal.WithLabelValues(mode, status)
		}
	}
	for _, outcome := range []string{"missing", "untracked", "duplicate", "failed", "empty_folder"} {
		SyncItemsTotal.WithLabelValues(outcome)
	}

	for _, result := range []string{"memory", "persistent", "miss", "error"} {
		HashCacheLookups.WithLabelValues(result)
	}

	for _, status := range []string{"success", "build_failed", "commit_failed"} {
		RebuildRunsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"delete", "restore", "purge"} {
		for _, status := range []string{"success", "error"} {
			TrashOperationsTotal.WithLabelValues(op, status)
		}
	}
	for _, outcome := range []string{"imported", "duplicate", "rejected"} {
		ImportItemsTotal.WithLabelValues(outcome)
	}

	for _, scope := range []string{"single", "batch"} {
		for _, outcome := range []string{"committed", "rolled_back"} {
			MutationsTotal.WithLabelValues(scope, outcome)
		}
	}

	// --- Filesystem retry metrics (per retry-operation × volume) ---
	volumes := []string{"library", "database", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
