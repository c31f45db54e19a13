package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

const recordColumns = `id, original_filename, current_path, date_taken, content_hash,
	file_size, file_type, width, height, rating`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*MediaRecord, error) {
	var (
		rec                   MediaRecord
		kind                  string
		date                  sql.NullString
		width, height, rating sql.NullInt64
	)

	err := row.Scan(&rec.ID, &rec.OriginalFilename, &rec.Path, &date, &rec.ContentHash,
		&rec.FileSize, &kind, &width, &height, &rating)
	if err != nil {
		return nil, err
	}

	rec.Kind = mediatypes.Kind(kind)
	if date.Valid {
		rec.DateTaken = StringPtr(date.String)
	}
	if width.Valid {
		rec.Width = IntPtr(int(width.Int64))
	}
	if height.Valid {
		rec.Height = IntPtr(int(height.Int64))
	}
	if rating.Valid {
		rec.Rating = IntPtr(int(rating.Int64))
	}
	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// ListPaths returns the set of every indexed root-relative path.
func (d *Database) ListPaths(ctx context.Context) (map[string]struct{}, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_paths", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT current_path FROM photos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	err = rows.Err()
	return paths, err
}

// ListRecords returns every record ordered by id.
func (d *Database) ListRecords(ctx context.Context) ([]MediaRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_records", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM photos ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MediaRecord
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		records = append(records, *rec)
	}
	err = rows.Err()
	return records, err
}

// GetRecord returns the record with the given id or ErrNotFound.
func (d *Database) GetRecord(ctx context.Context, id int64) (*MediaRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_record", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec, err := scanRecord(d.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM photos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, err
}

// GetRecords returns the records for ids in the order given. A missing id
// fails the whole call with ErrNotFound.
func (d *Database) GetRecords(ctx context.Context, ids []int64) ([]MediaRecord, error) {
	records := make([]MediaRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := d.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// GetRecordByPath returns the record indexed at the root-relative path.
func (d *Database) GetRecordByPath(ctx context.Context, path string) (*MediaRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_record_by_path", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec, err := scanRecord(d.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM photos WHERE current_path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("path %s: %w", path, ErrNotFound)
	}
	return rec, err
}

// FindRecordByHash looks up the record holding a digest through q, which
// may be an open transaction so uncommitted inserts are visible.
func FindRecordByHash(ctx context.Context, q Querier, hash string) (*MediaRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM photos WHERE content_hash = ?", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hash %s: %w", hash, ErrNotFound)
	}
	return rec, err
}

// RecordByHash returns the record holding the digest.
func (d *Database) RecordByHash(ctx context.Context, hash string) (*MediaRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return FindRecordByHash(ctx, d.db, hash)
}

// HashExists reports whether any record holds the digest.
func (d *Database) HashExists(ctx context.Context, hash string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, err := FindRecordByHash(ctx, d.db, hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// InsertRecordIgnore inserts rec unless its path or hash is already
// indexed. It reports whether a row was written and, if so, the new id.
func (d *Database) InsertRecordIgnore(ctx context.Context, tx *sql.Tx, rec *MediaRecord) (int64, bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO photos
			(original_filename, current_path, date_taken, content_hash, file_size, file_type, width, height, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OriginalFilename, rec.Path, nullString(rec.DateTaken), rec.ContentHash,
		rec.FileSize, string(rec.Kind), nullInt(rec.Width), nullInt(rec.Height), nullInt(rec.Rating),
	)
	if err != nil {
		return 0, false, err
	}

	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		return 0, false, err
	}

	id, err := result.LastInsertId()
	return id, err == nil, err
}

// InsertRecord inserts rec, failing on any uniqueness conflict. A non-zero
// rec.ID is kept, which restore relies on.
func (d *Database) InsertRecord(ctx context.Context, tx *sql.Tx, rec *MediaRecord) (int64, error) {
	var id any
	if rec.ID > 0 {
		id = rec.ID
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO photos
			(id, original_filename, current_path, date_taken, content_hash, file_size, file_type, width, height, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.OriginalFilename, rec.Path, nullString(rec.DateTaken), rec.ContentHash,
		rec.FileSize, string(rec.Kind), nullInt(rec.Width), nullInt(rec.Height), nullInt(rec.Rating),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// DeleteRecordByPath removes the record indexed at path and returns the
// number of rows removed.
func (d *Database) DeleteRecordByPath(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	result, err := tx.ExecContext(ctx, "DELETE FROM photos WHERE current_path = ?", path)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteRecord removes the record with the given id.
func (d *Database) DeleteRecord(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateRecordLocation rewrites the fields a capture-date edit changes.
func (d *Database) UpdateRecordLocation(ctx context.Context, tx *sql.Tx, id int64, path, filename string, date *string, hash string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE photos
		SET current_path = ?, original_filename = ?, date_taken = ?, content_hash = ?
		WHERE id = ?`,
		path, filename, nullString(date), hash, id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateRecordContent updates the digest and size after a file's bytes
// changed in place.
func (d *Database) UpdateRecordContent(ctx context.Context, tx *sql.Tx, id int64, hash string, size int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE photos SET content_hash = ?, file_size = ? WHERE id = ?", hash, size, id)
	return err
}

// Stats counts records by kind, total bytes, tombstones and records
// without a capture date.
func (d *Database) Stats(ctx context.Context) (LibraryStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats LibraryStats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN file_type = 'photo' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN file_type = 'video' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(file_size), 0),
			COALESCE(SUM(CASE WHEN date_taken IS NULL THEN 1 ELSE 0 END), 0)
		FROM photos`).Scan(&stats.TotalPhotos, &stats.TotalVideos, &stats.TotalBytes, &stats.WithoutDate)
	if err != nil {
		return stats, err
	}

	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deleted_photos").Scan(&stats.TrashItems)
	return stats, err
}

// GetStats implements metrics.StatsProvider.
func (d *Database) GetStats() metrics.Stats {
	stats, err := d.Stats(context.Background())
	if err != nil {
		logging.Warn("Failed to collect library stats: %v", err)
	}
	return metrics.Stats{
		TotalPhotos: stats.TotalPhotos,
		TotalVideos: stats.TotalVideos,
		TotalBytes:  stats.TotalBytes,
		TrashItems:  stats.TrashItems,
		DBFileSizes: FileSizes(d.dbPath),
	}
}
