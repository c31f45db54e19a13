package mutation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"media-library/internal/database"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metrics"
)

var (
	// ErrInvalidMode is returned for an unknown batch mode or interval unit.
	ErrInvalidMode = errors.New("invalid batch mode")
	// ErrInvalidInterval is returned for a sequence interval that is
	// negative or too large to represent.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidRequest marks other batch requests rejected before any
	// change is made.
	ErrInvalidRequest = errors.New("invalid batch request")
)

// IsInvalidRequest reports whether err rejected the request itself, as
// opposed to a failure while applying it.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidMode) || errors.Is(err, ErrInvalidInterval) || errors.Is(err, ErrInvalidRequest)
}

// Mode is how a batch derives each record's new date.
type Mode string

const (
	// ModeSame gives every record the requested date.
	ModeSame Mode = "same"
	// ModeShift moves every record by the offset between the first listed
	// record's date and the requested date.
	ModeShift Mode = "shift"
	// ModeSequence orders records by their current date and assigns the
	// requested date plus i intervals to the i-th.
	ModeSequence Mode = "sequence"
)

// IntervalUnit is the unit of BatchRequest.Interval.
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
)

// DefaultInterval is the sequence step when none is given.
const DefaultInterval = 5 * time.Minute

// BatchRequest describes a batch date edit.
type BatchRequest struct {
	IDs      []int64      `json:"photo_ids"`
	Mode     Mode         `json:"mode"`
	Date     string       `json:"new_date"`
	Interval int          `json:"interval_amount"`
	Unit     IntervalUnit `json:"interval_unit"`
}

// Outcome is the final state of one record in a batch.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// ItemResult is the per-record report of a batch.
type ItemResult struct {
	ID      int64   `json:"id"`
	Outcome Outcome `json:"outcome"`
	OldPath string  `json:"old_path"`
	NewPath string  `json:"new_path,omitempty"`
	OldDate *string `json:"old_date"`
	NewDate string  `json:"new_date"`
	Error   string  `json:"error,omitempty"`
}

// BatchResult reports a batch. Success is false whenever any record
// failed, even though every applied change was then reversed.
type BatchResult struct {
	OperationID string        `json:"operation_id"`
	Mode        Mode          `json:"mode"`
	Success     bool          `json:"success"`
	Items       []ItemResult  `json:"items"`
	BackupPath  string        `json:"backup_path,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// batchCheckpoint is the ledger state of a batch edit.
type batchCheckpoint struct {
	IDs    []int64 `json:"photo_ids"`
	Mode   Mode    `json:"mode"`
	Date   string  `json:"new_date"`
	Backup string  `json:"backup_path,omitempty"`
}

type plannedEdit struct {
	rec  database.MediaRecord
	date string
}

// EditDates applies one date policy to many records in a single index
// transaction. The first failure stops the batch and reverses every
// record already changed. Progress is reported to sink, which may be nil.
func (e *Editor) EditDates(ctx context.Context, req BatchRequest, sink Sink) (*BatchResult, error) {
	start := time.Now()

	plan, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	backup, err := e.db.CreateBackup(ctx, e.backupDir, e.backupKeep)
	if err != nil {
		return nil, fmt.Errorf("back up index before batch: %w", err)
	}

	result := &BatchResult{
		OperationID: uuid.NewString(),
		Mode:        req.Mode,
		Items:       make([]ItemResult, len(plan)),
		BackupPath:  backup,
	}
	for i, p := range plan {
		result.Items[i] = ItemResult{
			ID:      p.rec.ID,
			Outcome: OutcomeSkipped,
			OldPath: p.rec.Path,
			OldDate: p.rec.DateTaken,
			NewDate: p.date,
		}
	}

	logging.Info("[%s] Batch %s edit of %d records starting (%s)",
		result.OperationID, req.Mode, len(plan), joinIDs(req.IDs))

	ids := make([]int64, len(plan))
	for i, p := range plan {
		ids[i] = p.rec.ID
	}
	op := e.db.Track(ctx, result.OperationID, database.OpUpdateDate,
		batchCheckpoint{IDs: ids, Mode: req.Mode, Date: req.Date, Backup: backup})

	tx, err := e.db.BeginBatch()
	if err != nil {
		op.Finish(ctx, err)
		sink.emit(Event{Type: EventError, OperationID: result.OperationID, Total: len(plan), Message: err.Error(), Result: result})
		return nil, fmt.Errorf("begin batch: %w", err)
	}

	log := &undoLog{root: e.layout.Root}
	edits := make([]*EditResult, 0, len(plan))
	var applyErr error
	var failedID int64
	for i, p := range plan {
		rec := p.rec
		edit, err := e.apply(ctx, tx, &rec, p.date, log)
		if err != nil {
			result.Items[i].Outcome = OutcomeFailed
			result.Items[i].Error = err.Error()
			applyErr, failedID = err, rec.ID
			logging.Warn("[%s] Record %d failed: %v", result.OperationID, rec.ID, err)
			break
		}
		result.Items[i].Outcome = OutcomeApplied
		result.Items[i].NewPath = edit.NewPath
		edits = append(edits, edit)
		sink.emit(Event{
			Type:        EventProgress,
			OperationID: result.OperationID,
			Current:     i + 1,
			Total:       len(plan),
			ID:          rec.ID,
			Path:        edit.OldPath,
			NewPath:     edit.NewPath,
		})
	}

	undoErrs, err := e.finish(ctx, tx, log, applyErr)
	op.Finish(ctx, err)

	for i, edit := range edits {
		e.invalidate(ctx, plan[i].rec.Path, edit)
	}
	if applyErr != nil && len(edits) < len(plan) {
		e.invalidate(ctx, plan[len(edits)].rec.Path, nil)
	}
	result.Duration = time.Since(start)

	if err != nil {
		var paths []string
		for i := range result.Items {
			item := &result.Items[i]
			if item.Outcome == OutcomeApplied {
				item.Outcome = OutcomeRolledBack
			}
			if item.Outcome != OutcomeSkipped {
				paths = append(paths, item.OldPath)
			}
		}
		metrics.MutationsTotal.WithLabelValues("batch", "rolled_back").Inc()
		logging.Error("[%s] Batch rolled back after %d of %d records: %v",
			result.OperationID, len(edits), len(plan), err)
		editErr := &EditError{ID: failedID, Err: err, Paths: paths, UndoErrors: undoErrs}
		sink.emit(Event{
			Type:        EventError,
			OperationID: result.OperationID,
			Current:     len(edits),
			Total:       len(plan),
			ID:          failedID,
			Message:     editErr.Error(),
			Result:      result,
		})
		return result, editErr
	}

	result.Success = true
	for _, edit := range edits {
		e.pruneSource(edit)
	}
	metrics.MutationsTotal.WithLabelValues("batch", "committed").Inc()
	logging.Info("[%s] Batch committed: %d records in %v", result.OperationID, len(edits), result.Duration)
	sink.emit(Event{
		Type:        EventComplete,
		OperationID: result.OperationID,
		Current:     len(edits),
		Total:       len(plan),
		Result:      result,
	})
	return result, nil
}

// prepare validates req and computes every record's target date before
// anything is changed.
func (e *Editor) prepare(ctx context.Context, req BatchRequest) ([]plannedEdit, error) {
	switch req.Mode {
	case ModeSame, ModeShift, ModeSequence:
	default:
		return nil, fmt.Errorf("%w %q (want same, shift or sequence)", ErrInvalidMode, req.Mode)
	}

	target, err := library.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ids := uniqueIDs(req.IDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no records selected", ErrInvalidRequest)
	}

	records, err := e.db.GetRecords(ctx, ids)
	if err != nil {
		return nil, err
	}

	return planDates(records, req.Mode, target, req.Interval, req.Unit)
}

// planDates assigns target dates. records must be in request order; shift
// uses the first as reference.
func planDates(records []database.MediaRecord, mode Mode, target time.Time, interval int, unit IntervalUnit) ([]plannedEdit, error) {
	plan := make([]plannedEdit, 0, len(records))

	if mode == ModeSame {
		date := library.FormatDate(target)
		for _, rec := range records {
			plan = append(plan, plannedEdit{rec: rec, date: date})
		}
		return plan, nil
	}

	dates := make(map[int64]time.Time, len(records))
	for _, rec := range records {
		value, ok := rec.Date()
		if !ok {
			return nil, fmt.Errorf("%w: record %d has no capture date, which %s mode needs", ErrInvalidRequest, rec.ID, mode)
		}
		t, err := library.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.ID, err)
		}
		dates[rec.ID] = t
	}

	if mode == ModeShift {
		offset := target.Sub(dates[records[0].ID])
		for _, rec := range records {
			plan = append(plan, plannedEdit{rec: rec, date: library.FormatDate(dates[rec.ID].Add(offset))})
		}
		return plan, nil
	}

	step, err := intervalDuration(interval, unit)
	if err != nil {
		return nil, err
	}

	ordered := append([]database.MediaRecord(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := dates[ordered[i].ID], dates[ordered[j].ID]
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ordered[i].ID < ordered[j].ID
	})
	if n := int64(len(ordered) - 1); n > 0 && int64(step) > math.MaxInt64/n {
		return nil, fmt.Errorf("%w: %d records spaced %v apart overflow the date range", ErrInvalidInterval, len(ordered), step)
	}
	for i, rec := range ordered {
		plan = append(plan, plannedEdit{rec: rec, date: library.FormatDate(target.Add(time.Duration(i) * step))})
	}
	return plan, nil
}

func intervalDuration(amount int, unit IntervalUnit) (time.Duration, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: must not be negative, got %d", ErrInvalidInterval, amount)
	}
	if amount == 0 {
		return DefaultInterval, nil
	}

	var size time.Duration
	switch unit {
	case UnitSeconds:
		size = time.Second
	case UnitMinutes, "":
		size = time.Minute
	case UnitHours:
		size = time.Hour
	default:
		return 0, fmt.Errorf("%w: interval unit %q (want seconds, minutes or hours)", ErrInvalidMode, unit)
	}
	if int64(amount) > math.MaxInt64/int64(size) {
		return 0, fmt.Errorf("%w: %d %s is out of range", ErrInvalidInterval, amount, unit)
	}
	return time.Duration(amount) * size, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
