package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func scanTombstone(row rowScanner) (*Tombstone, error) {
	var (
		t         Tombstone
		deletedAt string
		data      string
	)
	if err := row.Scan(&t.ID, &t.OriginalPath, &t.TrashFilename, &deletedAt, &data); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339, deletedAt)
	if err != nil {
		return nil, fmt.Errorf("tombstone %d: bad deleted_at %q: %w", t.ID, deletedAt, err)
	}
	t.DeletedAt = parsed

	if err := json.Unmarshal([]byte(data), &t.Record); err != nil {
		return nil, fmt.Errorf("tombstone %d: bad photo_data: %w", t.ID, err)
	}
	return &t, nil
}

// InsertTombstone records a deleted record's snapshot.
func (d *Database) InsertTombstone(ctx context.Context, tx *sql.Tx, t *Tombstone) error {
	data, err := json.Marshal(t.Record)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO deleted_photos (id, original_path, trash_filename, deleted_at, photo_data)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.OriginalPath, t.TrashFilename, t.DeletedAt.UTC().Format(time.RFC3339), string(data),
	)
	return err
}

// GetTombstone returns the tombstone for id or ErrNotFound.
func (d *Database) GetTombstone(ctx context.Context, id int64) (*Tombstone, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_tombstone", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	t, err := scanTombstone(d.db.QueryRowContext(ctx, `
		SELECT id, original_path, trash_filename, deleted_at, photo_data
		FROM deleted_photos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tombstone %d: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTombstones returns every tombstone, most recently deleted first.
func (d *Database) ListTombstones(ctx context.Context) ([]Tombstone, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_tombstones", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, original_path, trash_filename, deleted_at, photo_data
		FROM deleted_photos ORDER BY deleted_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tombstone
	for rows.Next() {
		var t *Tombstone
		if t, err = scanTombstone(rows); err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	err = rows.Err()
	return out, err
}

// DeleteTombstone removes the tombstone for id.
func (d *Database) DeleteTombstone(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, "DELETE FROM deleted_photos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("tombstone %d: %w", id, ErrNotFound)
	}
	return nil
}
