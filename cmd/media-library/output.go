package main

import (
	"fmt"
	"io"
	"time"

	"media-library/internal/importer"
	"media-library/internal/indexer"
	"media-library/internal/mutation"
	"media-library/internal/trash"
)

// syncPrinter returns a sink that prints one line per sync event.
func syncPrinter(w io.Writer) indexer.EventSink {
	return func(e indexer.Event) {
		switch e.Type {
		case indexer.EventProgress:
			if e.Total > 0 {
				fmt.Fprintf(w, "[%s] %d/%d %s\n", e.Phase, e.Current, e.Total, e.Path)
			} else {
				fmt.Fprintf(w, "[%s] %d %s\n", e.Phase, e.Current, e.Path)
			}
		case indexer.EventComplete:
			if e.Stats != nil {
				printSyncStats(w, *e.Stats)
			}
		case indexer.EventError:
			fmt.Fprintf(w, "error: %s\n", e.Message)
		}
	}
}

func printSyncStats(w io.Writer, s indexer.Stats) {
	fmt.Fprintf(w, "Removed %d missing, added %d untracked, removed %d empty folders\n",
		s.MissingFiles, s.UntrackedFiles, s.EmptyFolders)
	if s.NameUpdates > 0 {
		fmt.Fprintf(w, "Renamed %d files to their canonical names\n", s.NameUpdates)
	}
	if s.Duplicates > 0 || s.Failed > 0 {
		fmt.Fprintf(w, "Skipped %d duplicates, %d files failed\n", s.Duplicates, s.Failed)
	}
}

// importPrinter returns a sink that prints one line per import event.
func importPrinter(w io.Writer) importer.Sink {
	return func(e importer.Event) {
		switch e.Type {
		case importer.EventStart:
			fmt.Fprintf(w, "Importing %d files\n", e.Total)
		case importer.EventProgress:
			fmt.Fprintf(w, "[%d/%d] %s\n", e.Current, e.Total, e.File)
		case importer.EventRejected:
			fmt.Fprintf(w, "[%d/%d] rejected %s: %s\n", e.Current, e.Total, e.SourcePath, e.Reason)
		case importer.EventComplete:
			fmt.Fprintf(w, "Imported %d, duplicates %d, errors %d\n", e.Imported, e.Duplicates, e.Errors)
		}
	}
}

func printTrashResult(w io.Writer, verb string, r *trash.Result) {
	for _, id := range r.Done {
		fmt.Fprintf(w, "%s %d\n", verb, id)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "failed %d: %s\n", e.ID, e.Err)
	}
	if r.BackupPath != "" {
		fmt.Fprintf(w, "Index backup: %s\n", r.BackupPath)
	}
}

// batchPrinter returns a sink that prints one line per edited record and
// a closing summary.
func batchPrinter(w io.Writer) mutation.Sink {
	return func(e mutation.Event) {
		switch e.Type {
		case mutation.EventProgress:
			fmt.Fprintf(w, "[%d/%d] %d: %s -> %s\n", e.Current, e.Total, e.ID, e.Path, e.NewPath)
		case mutation.EventComplete:
			fmt.Fprintf(w, "Operation %s: %d records updated in %v\n",
				e.OperationID, e.Current, e.Result.Duration.Round(time.Millisecond))
		case mutation.EventError:
			if e.Result != nil {
				for _, item := range e.Result.Items {
					switch item.Outcome {
					case mutation.OutcomeFailed:
						fmt.Fprintf(w, "%d: failed: %s\n", item.ID, item.Error)
					case mutation.OutcomeRolledBack:
						fmt.Fprintf(w, "%d: rolled back\n", item.ID)
					}
				}
			}
			fmt.Fprintf(w, "Operation %s rolled back: %s\n", e.OperationID, e.Message)
		}
	}
}
