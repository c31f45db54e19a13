package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"media-library/internal/logging"
)

// OperationKind names a long-running change recorded in the operations
// ledger.
type OperationKind string

// Ledgered operation kinds
const (
	OpRebuild    OperationKind = "rebuild_database"
	OpUpdateDate OperationKind = "update_date"
	OpDelete     OperationKind = "delete_photos"
	OpImport     OperationKind = "import_photos"
)

// OperationStatus is the lifecycle state of a ledgered operation.
type OperationStatus string

const (
	OpRunning   OperationStatus = "running"
	OpCompleted OperationStatus = "completed"
	OpFailed    OperationStatus = "failed"
)

// Operation is one row of the ledger. A row still running when no process
// is working on it marks an interrupted operation; Checkpoint holds the
// last state it recorded.
type Operation struct {
	ID         string          `json:"id"`
	Kind       OperationKind   `json:"kind"`
	Status     OperationStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Checkpoint json.RawMessage `json:"checkpoint,omitempty"`
	Error      string          `json:"error,omitempty"`
}

const ledgerSchema = `
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		checkpoint TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);`

// ensureLedger creates the operations table on indexes that predate it.
func (d *Database) ensureLedger(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ledger {
		return nil
	}
	if _, err := d.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("create operations table: %w", err)
	}
	d.ledger = true
	return nil
}

// StartOperation records a running operation and returns its id. An empty
// id gets a fresh uuid. checkpoint may be nil.
func (d *Database) StartOperation(ctx context.Context, id string, kind OperationKind, checkpoint any) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("operation_start", start, err) }()

	if id == "" {
		id = uuid.NewString()
	}
	state, err := encodeCheckpoint(checkpoint)
	if err != nil {
		return "", err
	}
	if err = d.ensureLedger(ctx); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := formatTime(time.Now())
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO operations (id, kind, status, started_at, updated_at, checkpoint)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(OpRunning), now, now, state)
	if err != nil {
		return "", fmt.Errorf("start %s operation: %w", kind, err)
	}
	return id, nil
}

// CheckpointOperation replaces the saved state of a running operation.
func (d *Database) CheckpointOperation(ctx context.Context, id string, checkpoint any) error {
	state, err := encodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	return d.updateOperation(ctx, "operation_checkpoint", id,
		"UPDATE operations SET checkpoint = ?, updated_at = ? WHERE id = ? AND status = ?",
		state, formatTime(time.Now()), id, string(OpRunning))
}

// CompleteOperation marks id completed and clears its checkpoint.
func (d *Database) CompleteOperation(ctx context.Context, id string) error {
	return d.updateOperation(ctx, "operation_complete", id,
		"UPDATE operations SET status = ?, checkpoint = NULL, updated_at = ? WHERE id = ?",
		string(OpCompleted), formatTime(time.Now()), id)
}

// FailOperation marks id failed with cause. The checkpoint is kept for
// inspection.
func (d *Database) FailOperation(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return d.updateOperation(ctx, "operation_fail", id,
		"UPDATE operations SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(OpFailed), msg, formatTime(time.Now()), id)
}

func (d *Database) updateOperation(ctx context.Context, name, id, query string, args ...any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(name, start, err) }()

	if err = d.ensureLedger(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetOperation returns the ledger row for id or ErrNotFound.
func (d *Database) GetOperation(ctx context.Context, id string) (*Operation, error) {
	if err := d.ensureLedger(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	op, err := scanOperation(d.db.QueryRowContext(ctx,
		"SELECT "+operationColumns+" FROM operations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return op, err
}

// LatestOperation returns the most recently started operation of kind or
// ErrNotFound.
func (d *Database) LatestOperation(ctx context.Context, kind OperationKind) (*Operation, error) {
	if err := d.ensureLedger(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	op, err := scanOperation(d.db.QueryRowContext(ctx,
		"SELECT "+operationColumns+" FROM operations WHERE kind = ? ORDER BY started_at DESC LIMIT 1", string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no %s operation: %w", kind, ErrNotFound)
	}
	return op, err
}

// IncompleteOperations lists running operations, newest first.
func (d *Database) IncompleteOperations(ctx context.Context) ([]Operation, error) {
	if err := d.ensureLedger(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return ListIncompleteOperations(ctx, d.db)
}

// ListIncompleteOperations reads running operations through q, newest
// first. The health check uses it on a read-only connection.
func ListIncompleteOperations(ctx context.Context, q Querier) ([]Operation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+operationColumns+" FROM operations WHERE status = ? ORDER BY updated_at DESC", string(OpRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// CleanupOperations deletes finished operations last updated before cutoff.
func (d *Database) CleanupOperations(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("operation_cleanup", start, err) }()

	if err = d.ensureLedger(ctx); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM operations WHERE status != ? AND updated_at < ?",
		string(OpRunning), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const operationColumns = "id, kind, status, started_at, updated_at, checkpoint, error"

func scanOperation(row rowScanner) (*Operation, error) {
	var (
		op                 Operation
		kind, status       string
		started, updated   string
		checkpoint, errMsg sql.NullString
	)
	if err := row.Scan(&op.ID, &kind, &status, &started, &updated, &checkpoint, &errMsg); err != nil {
		return nil, err
	}
	op.Kind = OperationKind(kind)
	op.Status = OperationStatus(status)
	op.StartedAt, _ = time.Parse(ledgerTime, started)
	op.UpdatedAt, _ = time.Parse(ledgerTime, updated)
	if checkpoint.Valid {
		op.Checkpoint = json.RawMessage(checkpoint.String)
	}
	op.Error = errMsg.String
	return &op, nil
}

func encodeCheckpoint(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode checkpoint: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// ledgerTime has a fixed width so stored timestamps sort as text.
const ledgerTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(ledgerTime)
}

// Tracker records one operation in the ledger. Ledger write failures are
// logged and never fail the tracked work.
type Tracker struct {
	db     *Database
	id     string
	kind   OperationKind
	active bool
}

// Track starts a ledgered operation. An empty id gets a fresh uuid.
func (d *Database) Track(ctx context.Context, id string, kind OperationKind, checkpoint any) *Tracker {
	t := &Tracker{db: d, id: id, kind: kind}
	started, err := d.StartOperation(ctx, id, kind, checkpoint)
	if err != nil {
		logging.Warn("Operation ledger unavailable for %s: %v", kind, err)
		if t.id == "" {
			t.id = uuid.NewString()
		}
		return t
	}
	t.id, t.active = started, true
	return t
}

// ID returns the operation id.
func (t *Tracker) ID() string {
	return t.id
}

// Checkpoint saves progress. It must not be called while a batch
// transaction is open on the same index.
func (t *Tracker) Checkpoint(ctx context.Context, checkpoint any) {
	if !t.active {
		return
	}
	if err := t.db.CheckpointOperation(context.WithoutCancel(ctx), t.id, checkpoint); err != nil {
		logging.Warn("Failed to checkpoint %s %s: %v", t.kind, t.id, err)
	}
}

// Finish marks the operation completed when err is nil and failed
// otherwise.
func (t *Tracker) Finish(ctx context.Context, err error) {
	if !t.active {
		return
	}
	t.active = false
	ctx = context.WithoutCancel(ctx)

	var ledgerErr error
	if err == nil {
		ledgerErr = t.db.CompleteOperation(ctx, t.id)
	} else {
		ledgerErr = t.db.FailOperation(ctx, t.id, err)
	}
	if ledgerErr != nil {
		logging.Warn("Failed to close %s %s in ledger: %v", t.kind, t.id, ledgerErr)
	}
}
