// Package trash implements reversible deletion.
//
// Deleting a record moves its file into the library's .trash directory and
// replaces its index row with a tombstone holding the full row snapshot.
// Restore reverses that under the original id. Purge and Empty remove the
// tombstone and the trash file for good.
package trash
