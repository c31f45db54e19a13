package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-library/internal/logging"
)

// GetCachedHash returns the persisted digest for the exact file identity.
func (d *Database) GetCachedHash(ctx context.Context, path string, mtimeNs, size int64) (string, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("hash_cache_get", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var hash string
	err = d.db.QueryRowContext(ctx, `
		SELECT content_hash FROM hash_cache
		WHERE file_path = ? AND mtime_ns = ? AND file_size = ?`,
		path, mtimeNs, size,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// PutCachedHash stores or replaces a digest.
func (d *Database) PutCachedHash(ctx context.Context, e HashCacheEntry) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("hash_cache_put", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cachedAt := e.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO hash_cache (file_path, mtime_ns, file_size, content_hash, cached_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Path, e.MtimeNs, e.Size, e.ContentHash, cachedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// DeleteCachedHashes drops every cached identity of path.
func (d *Database) DeleteCachedHashes(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("hash_cache_delete", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.ExecContext(ctx, "DELETE FROM hash_cache WHERE file_path = ?", path)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListCachedPaths returns the distinct paths in the hash cache that start
// with prefix.
func (d *Database) ListCachedPaths(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("hash_cache_list", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT file_path FROM hash_cache WHERE file_path LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	err = rows.Err()
	return paths, err
}

// CountCachedHashes returns the number of persisted entries.
func (d *Database) CountCachedHashes(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hash_cache").Scan(&n)
	return n, err
}

// CopyHashCache imports the hash cache of the index at srcPath, keeping
// entries already present. It returns the number of rows copied.
func (d *Database) CopyHashCache(ctx context.Context, srcPath string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("hash_cache_copy", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	// ATTACH is scoped to one connection.
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS src", srcPath); err != nil {
		return 0, fmt.Errorf("attach %s: %w", srcPath, err)
	}
	defer func() {
		if _, derr := conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE src"); derr != nil {
			logging.Warn("Failed to detach %s: %v", srcPath, derr)
		}
	}()

	result, err := conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO hash_cache (file_path, mtime_ns, file_size, content_hash, cached_at)
		SELECT file_path, mtime_ns, file_size, content_hash, cached_at FROM src.hash_cache`)
	if err != nil {
		return 0, fmt.Errorf("copy hash cache: %w", err)
	}
	return result.RowsAffected()
}
