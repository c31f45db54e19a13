// Package rebuild recreates a library index from the files on disk without
// ever leaving production half-written.
//
// [Rebuilder.Run] works in two phases. The first creates a fresh index at
// [TempPath] and runs a full sync into it. If anything fails there the
// temporary file and its -wal/-shm files are deleted and production is not
// touched. The second phase copies production to [BackupPath] (best
// effort), then renames the temporary index and its side files over it.
//
// A crash between the phases leaves a stale temporary index behind.
// [Recover] removes it and restores the backup. It only runs when an
// operator asks for it.
package rebuild
