// Package database stores the library index in SQLite.
//
// It holds:
//   - media records (photos table), unique by path and by content hash
//   - tombstones for deleted records awaiting restore or purge
//   - the persistent level of the hash cache
//   - a small key-value table for bookkeeping such as the last sync time
//
// The database runs in WAL mode. New indices get their schema from the
// embedded migrations; existing ones are opened as-is and inspected by the
// health package. Writes that must be atomic go through BeginBatch and
// EndBatch.
package database
