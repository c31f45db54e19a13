/*
Package filesystem provides the file operations the library relies on:
NFS-resilient stat and open, moves that survive crossing devices, and
bottom-up pruning of directories left empty after files are moved away.

# Retry Behavior

StatWithRetry and OpenWithRetry retry only on ESTALE (stale NFS file
handle), with exponential backoff:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors are returned immediately. Retry outcomes are reported to
the package Observer, which the metrics package installs at startup with
SetObserver. Volume labels come from a VolumeResolver that maps path
prefixes to names such as "library" and "database".

# Moving and Pruning

MoveFile renames a file and falls back to copy plus remove when the
destination is on another device. PruneEmptyDirs removes empty directories
under the library root in repeated passes, since removing the last
directory in a folder can empty its parent. A directory holding only hidden
files counts as empty. The root and every dot-directory (thumbnail cache,
trash, backups) are left alone.

	removed, err := filesystem.PruneEmptyDirs(root, filesystem.DefaultPrunePasses, nil)

RemoveEmptyParents walks upward from a single directory and is used after
an edit or delete empties one folder.
*/
package filesystem
