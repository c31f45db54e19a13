package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"media-library/internal/logging"
)

// ErrDuplicateRows is returned by Migrate when rows share a value that the
// index requires to be unique. Nothing is changed in that case.
var ErrDuplicateRows = errors.New("duplicate rows block unique index")

// uniqueColumns are the photos columns sync relies on to detect moles and
// duplicates.
var uniqueColumns = []string{"content_hash", "current_path"}

// Tables and indices an older index may lack. Every statement is
// idempotent.
var supportingSchema = []string{
	`CREATE TABLE IF NOT EXISTS deleted_photos (
		id INTEGER PRIMARY KEY,
		original_path TEXT NOT NULL,
		trash_filename TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		photo_data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hash_cache (
		file_path TEXT NOT NULL,
		mtime_ns INTEGER NOT NULL,
		file_size INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		cached_at TEXT NOT NULL,
		PRIMARY KEY (file_path, mtime_ns, file_size)
	)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		checkpoint TEXT,
		error TEXT
	)`,
	"CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status)",
	"CREATE INDEX IF NOT EXISTS idx_content_hash ON photos(content_hash)",
	"CREATE INDEX IF NOT EXISTS idx_date_taken ON photos(date_taken)",
	"CREATE INDEX IF NOT EXISTS idx_file_type ON photos(file_type)",
	"CREATE INDEX IF NOT EXISTS idx_rating ON photos(rating)",
	"CREATE INDEX IF NOT EXISTS idx_hash_cache_path ON hash_cache(file_path)",
	"CREATE INDEX IF NOT EXISTS idx_hash_cache_hash ON hash_cache(content_hash)",
}

// Migrate brings an existing index up to the canonical schema by adding
// missing photos columns, supporting tables and indices, and unique indices
// on content_hash and current_path. It never drops or rewrites anything.
// It returns the columns added. If existing rows violate uniqueness the
// whole migration is rolled back with ErrDuplicateRows.
func Migrate(ctx context.Context, dbPath string) ([]string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var hasPhotos int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'photos'").Scan(&hasPhotos); err != nil {
		return nil, err
	}
	if hasPhotos == 0 {
		return nil, fmt.Errorf("no 'photos' table in %s; create a new index instead", dbPath)
	}

	existing, err := columnNames(ctx, tx, "photos")
	if err != nil {
		return nil, fmt.Errorf("read photos columns: %w", err)
	}

	var added []string
	for _, c := range canonicalColumns {
		if existing[c.name] {
			continue
		}
		if c.add == "" {
			logging.Warn("No migration defined for column %s", c.name)
			continue
		}
		if _, err := tx.ExecContext(ctx, c.add); err != nil {
			return nil, fmt.Errorf("add column %s: %w", c.name, err)
		}
		logging.Info("Added column: %s", c.name)
		added = append(added, c.name)
	}

	for _, stmt := range supportingSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	for _, col := range uniqueColumns {
		if err := ensureUnique(ctx, tx, col); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logging.Info("Migration of %s complete, %d columns added", dbPath, len(added))
	return added, nil
}

// duplicateSample caps how many offending values an error lists.
const duplicateSample = 5

func ensureUnique(ctx context.Context, tx *sql.Tx, col string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT %[1]s, COUNT(*) FROM photos WHERE %[1]s IS NOT NULL GROUP BY %[1]s HAVING COUNT(*) > 1", col))
	if err != nil {
		return fmt.Errorf("check %s uniqueness: %w", col, err)
	}
	defer rows.Close()

	var dups []string
	total := 0
	for rows.Next() {
		var (
			value string
			count int
		)
		if err := rows.Scan(&value, &count); err != nil {
			return err
		}
		total++
		if len(dups) < duplicateSample {
			dups = append(dups, fmt.Sprintf("%s (%d rows)", value, count))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if total > 0 {
		return fmt.Errorf("%w: %d duplicate %s values: %s", ErrDuplicateRows, total, col, strings.Join(dups, ", "))
	}

	stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_%[1]s_unique ON photos(%[1]s)", col)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create unique index on %s: %w", col, err)
	}
	return nil
}
