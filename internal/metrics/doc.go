// Package metrics provides Prometheus instrumentation for the media library.
//
// All metrics are registered with promauto at package init and prefixed with
// "media_library_".
//
// # Metric Categories
//
//   - Database: query counts and latency, transaction outcome, index file sizes, backups
//   - Library: indexed records by kind, total bytes, trash size
//   - Sync: runs by mode and status, per-item outcomes, last run, watcher events
//   - Hash cache: lookups by level, hashing time, stale entries removed
//   - Rebuild: runs by status and duration
//   - Mutation: committed and rolled-back date edits, undo failures, tool latency
//   - Thumbnails: generations, latency, worker queue depth and drops
//   - Filesystem: ESTALE retries per operation and volume
//
// InitializeMetrics pre-populates label combinations so dashboards see zero
// values before the first event. Collector periodically publishes totals from
// a StatsProvider (the index).
package metrics
