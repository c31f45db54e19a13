// Package indexer reconciles the media index with the library directory.
//
// A [Synchronizer] run walks the library, skipping any name that starts with
// '.', and compares what it finds with the index:
//   - records whose file is gone are deleted (phase removing_deleted)
//   - files the index does not know are hashed, dated and inserted
//     (phase adding_untracked); a file whose content is already indexed
//     elsewhere is reported as a duplicate and left on disk
//   - directories left empty are pruned bottom-up (phase removing_empty)
//
// Progress is reported through an [EventSink] as one event per item,
// followed by a single complete event carrying [Stats] and [Details].
//
// Two modes exist. Incremental diffs against the current index and is what
// the CLI and [Watcher] run. Full treats the index as empty and is used by
// rebuild against a fresh index file.
//
// The [Watcher] runs an incremental sync at startup, after debounced
// fsnotify events and on a fixed interval, never more than one at a time.
package indexer
