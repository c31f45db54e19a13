// Package hashing computes content digests and caches them.
//
// The SHA-256 hex digest returned by Compute is the only identity used for
// deduplication. Short returns an 8-character fragment for filenames; it is
// never used as a key.
//
// Cache fronts Compute with two levels: a bounded in-memory LRU and the
// persistent hash_cache table. Both are keyed on (path, mtime in
// nanoseconds, size), so any change to a file is a different key and the
// old entry is simply never hit again.
package hashing
