package mutation

import (
	"context"
	"fmt"
	"path/filepath"

	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
)

type stepKind string

const (
	stepMetadata stepKind = "metadata"
	stepMove     stepKind = "move"
)

// undoStep records one completed side effect. Metadata steps keep the date
// the file carried before; move steps keep both ends of the rename.
type undoStep struct {
	kind      stepKind
	path      string
	priorDate *string
	from      string
	to        string
}

// undoLog collects completed steps so a failed edit can be reversed. Steps
// are appended only after they succeed. When root is set, directories a
// reversed move leaves empty are removed up to it.
type undoLog struct {
	root  string
	steps []undoStep
}

func (l *undoLog) metadataWritten(path string, prior *string) {
	l.steps = append(l.steps, undoStep{kind: stepMetadata, path: path, priorDate: prior})
}

func (l *undoLog) moved(from, to string) {
	l.steps = append(l.steps, undoStep{kind: stepMove, from: from, to: to})
}

func (l *undoLog) len() int {
	return len(l.steps)
}

// replay reverses every step, newest first. A failing step does not stop
// the replay; all failures are logged and returned.
func (l *undoLog) replay(ctx context.Context, writer metadata.Writer) []error {
	var errs []error
	for i := len(l.steps) - 1; i >= 0; i-- {
		step := l.steps[i]

		var err error
		switch step.kind {
		case stepMove:
			logging.Debug("Undo: moving %s back to %s", step.to, step.from)
			if err = filesystem.MoveFile(step.to, step.from); err != nil {
				err = fmt.Errorf("move %s back to %s: %w", step.to, step.from, err)
			} else if l.root != "" {
				filesystem.RemoveEmptyParents(filepath.Dir(step.to), l.root)
			}
		case stepMetadata:
			if step.priorDate == nil {
				logging.Warn("Undo: %s had no capture date before the edit, leaving the written date in place", step.path)
				continue
			}
			logging.Debug("Undo: restoring capture date %s on %s", *step.priorDate, step.path)
			if err = writer.WriteCaptureDate(ctx, step.path, *step.priorDate); err != nil {
				err = fmt.Errorf("restore capture date on %s: %w", step.path, err)
			}
		}

		if err != nil {
			logging.Error("Undo step failed: %v", err)
			metrics.MutationUndoErrors.Inc()
			errs = append(errs, err)
		}
	}
	l.steps = nil
	return errs
}
