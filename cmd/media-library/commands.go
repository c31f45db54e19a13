package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"media-library/internal/database"
	"media-library/internal/health"
	"media-library/internal/importer"
	"media-library/internal/indexer"
	"media-library/internal/metadata"
	"media-library/internal/mutation"
	"media-library/internal/rebuild"
	"media-library/internal/startup"
	"media-library/internal/thumbnails"
	"media-library/internal/trash"

	"github.com/spf13/cobra"
)

// thumbnailDrainPoll is how often import checks whether the thumbnail
// queue has emptied before stopping the worker.
const thumbnailDrainPoll = 100 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index with the files on disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		mode := indexer.ModeIncremental
		if full {
			mode = indexer.ModeFull
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		syncer := indexer.NewSynchronizer(a.cfg, a.db, a.hasher, a.tools)
		result, err := syncer.Run(cmd.Context(), mode, syncPrinter(cmd.OutOrStdout()))
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sync (%s) finished in %v\n", result.Mode, result.Duration.Round(time.Millisecond))
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Build a new index from the library and swap it into place",
	Long: `rebuild indexes every file into a temporary index next to the production
one. Only when that succeeds is production copied to <index>.backup and
replaced. A failure while building leaves production untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog(setupProcess(cfg))

		result, err := rebuild.New(cfg, metadata.NewTools()).Run(cmd.Context(), syncPrinter(cmd.OutOrStdout()))
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rebuilt index with %d files in %v\n", result.Stats.UntrackedFiles, result.Duration.Round(time.Millisecond))
		if result.BackupPath != "" {
			fmt.Fprintf(out, "Previous index saved to %s\n", result.BackupPath)
		}
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Clean up after an interrupted rebuild and restore the pre-rebuild backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog(setupProcess(cfg))

		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
			fmt.Sprintf("Replace %s with %s?", cfg.DatabasePath, rebuild.BackupPath(cfg.DatabasePath)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}

		result, err := rebuild.Recover(cfg, flagForce)
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		out := cmd.OutOrStdout()
		if op := result.Interrupted; op != nil {
			fmt.Fprintf(out, "Rebuild %s started %s was interrupted\n", op.ID, op.StartedAt.Local().Format(time.DateTime))
		}
		if result.RemovedTemp {
			fmt.Fprintln(out, "Removed temporary index")
		}
		if result.RestoredBackup {
			fmt.Fprintf(out, "Restored index from %s\n", result.BackupPath)
		} else {
			fmt.Fprintln(out, "No backup found; index left as is")
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Classify the index schema without modifying it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		report := health.Check(cfg.DatabasePath)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Format())
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Add missing columns and tables to an existing index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog(setupProcess(cfg))

		added, err := health.Migrate(cmd.Context(), cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(added) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema already up to date")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added columns: %s\n", strings.Join(added, ", "))
		return nil
	},
}

var editDateCmd = &cobra.Command{
	Use:   "edit-date ID DATE",
	Short: "Set the capture date of one record",
	Long: `edit-date writes DATE ("YYYY:MM:DD HH:MM:SS") into the file's metadata,
moves it to the canonical folder and name for that date, and updates the
index. Any failure reverses every step.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[:1])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		editor := mutation.NewEditor(a.cfg, a.db, a.tools, a.hasher)
		result, err := editor.EditDate(cmd.Context(), ids[0], args[1])
		if err != nil {
			if editErr, ok := mutation.IsEditError(err); ok {
				for _, u := range editErr.UndoErrors {
					fmt.Fprintf(cmd.ErrOrStderr(), "undo step failed: %s\n", u)
				}
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s -> %s (%s)\n", result.ID, result.OldPath, result.NewPath, result.NewDate)
		return nil
	},
}

var bulkEditDateCmd = &cobra.Command{
	Use:   "bulk-edit-date DATE ID...",
	Short: "Change the capture dates of several records as one unit",
	Long: `bulk-edit-date applies one date policy to every listed record:

  same      every record gets DATE
  shift     every record moves by the offset between the first listed
            record's date and DATE
  sequence  records ordered by current date get DATE, DATE+interval, ...

If any record fails, every record already changed is restored.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		mode, _ := cmd.Flags().GetString("mode")
		interval, _ := cmd.Flags().GetInt("interval")
		unit, _ := cmd.Flags().GetString("unit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		editor := mutation.NewEditor(a.cfg, a.db, a.tools, a.hasher)
		result, err := editor.EditDates(cmd.Context(), mutation.BatchRequest{
			IDs:      ids,
			Mode:     mutation.Mode(mode),
			Date:     args[0],
			Interval: interval,
			Unit:     mutation.IntervalUnit(unit),
		}, batchPrinter(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		if !result.Success {
			return errors.New("batch was rolled back")
		}
		return nil
	},
}

// runTrash runs one multi-id trash operation and reports per-id failures
// as a single error.
func runTrash(cmd *cobra.Command, args []string, verb string, op func(*trash.Trash, []int64) (*trash.Result, error)) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := op(trash.New(a.cfg, a.db), ids)
	if err != nil {
		return err
	}
	printTrashResult(cmd.OutOrStdout(), verb, result)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d of %d failed", len(result.Errors), result.Total())
	}
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Move records and their files to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd, args, "deleted", func(t *trash.Trash, ids []int64) (*trash.Result, error) {
			return t.Delete(cmd.Context(), ids)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore ID...",
	Short: "Return trashed records to the library under their original ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd, args, "restored", func(t *trash.Trash, ids []int64) (*trash.Result, error) {
			return t.Restore(cmd.Context(), ids)
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [ID...]",
	Short: "Permanently remove trashed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		switch {
		case all && len(args) > 0:
			return errors.New("give record ids or --all, not both")
		case !all && len(args) == 0:
			return errors.New("give record ids or --all")
		case !all:
			return runTrash(cmd, args, "purged", func(t *trash.Trash, ids []int64) (*trash.Result, error) {
				return t.Purge(cmd.Context(), ids)
			})
		}

		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Permanently delete everything in the trash?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := trash.New(a.cfg, a.db).Empty(cmd.Context())
		if err != nil {
			return err
		}
		printTrashResult(cmd.OutOrStdout(), "purged", result)
		return nil
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List trashed records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := trash.New(a.cfg, a.db).List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "Trash is empty")
			return nil
		}
		for _, t := range items {
			fmt.Fprintf(out, "%d\t%s\t%s\n", t.ID, t.DeletedAt.Local().Format(time.DateTime), t.OriginalPath)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Copy files or folders into the library under canonical names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		worker := thumbnails.NewWorker(thumbnails.NewGenerator(a.cfg, a.tools), a.cfg.ThumbnailQueue)
		worker.Start()

		im := importer.New(a.cfg, a.db, a.hasher, a.tools, a.tools, worker)
		result, err := im.Import(cmd.Context(), args, importPrinter(cmd.OutOrStdout()))

		for worker.Pending() > 0 {
			time.Sleep(thumbnailDrainPoll)
		}
		worker.Stop()

		if err != nil {
			return err
		}
		for _, f := range result.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %s\n", f.SourcePath, f.Error)
		}
		return nil
	},
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List untracked files whose content is already indexed",
	Long: `duplicates hashes every file the index does not track and lists those
that are byte-identical to an indexed file. Nothing is changed; remove the
copies by hand or with the file manager of your choice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		dups, err := indexer.NewSynchronizer(a.cfg, a.db, a.hasher, a.tools).Duplicates(cmd.Context())
		if err != nil {
			return fmt.Errorf("duplicate scan: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(dups) == 0 {
			fmt.Fprintln(out, "No duplicates found")
			return nil
		}
		for _, d := range dups {
			fmt.Fprintf(out, "%s\tduplicates %s\n", d.Path, d.ExistingPath)
		}
		fmt.Fprintf(out, "%d duplicates\n", len(dups))
		return nil
	},
}

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Check or rebuild the thumbnail cache",
}

var thumbnailsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Count cached, missing and orphaned thumbnails",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := auditThumbnails(cmd, a)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Thumbnails: %d present, %d missing, %d orphaned\n",
			report.Present, len(report.Missing), len(report.Orphans))
		for _, o := range report.Orphans {
			fmt.Fprintf(out, "orphan %s\n", o)
		}
		return nil
	},
}

var thumbnailsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Remove orphaned thumbnails and generate the missing ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if all {
			if err := os.RemoveAll(a.cfg.ThumbnailDir()); err != nil {
				return fmt.Errorf("clear thumbnail cache: %w", err)
			}
		}
		report, err := auditThumbnails(cmd, a)
		if err != nil {
			return err
		}
		removed, err := thumbnails.RemoveOrphans(a.cfg.Layout, report.Orphans)
		if err != nil {
			return fmt.Errorf("remove orphaned thumbnails: %w", err)
		}

		worker := thumbnails.NewWorker(thumbnails.NewGenerator(a.cfg, a.tools), a.cfg.ThumbnailQueue)
		worker.Start()
		for _, job := range report.Missing {
			for !worker.Enqueue(job) {
				if err := cmd.Context().Err(); err != nil {
					worker.Stop()
					return err
				}
				time.Sleep(thumbnailDrainPoll)
			}
		}
		for worker.Pending() > 0 {
			time.Sleep(thumbnailDrainPoll)
		}
		worker.Stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned thumbnails, queued %d missing\n", removed, len(report.Missing))
		return nil
	},
}

func auditThumbnails(cmd *cobra.Command, a *app) (thumbnails.AuditReport, error) {
	records, err := a.db.ListRecords(cmd.Context())
	if err != nil {
		return thumbnails.AuditReport{}, err
	}
	report, err := thumbnails.Audit(a.cfg.Layout, records)
	if err != nil {
		return report, fmt.Errorf("thumbnail audit: %w", err)
	}
	return report, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a timestamped copy of the index and rotate old copies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.db.CreateBackup(cmd.Context(), a.cfg.BackupDir(), a.cfg.BackupKeep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)

		backups, err := database.ListBackups(a.cfg.BackupDir())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d backups kept in %s\n", len(backups), a.cfg.BackupDir())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := startup.GetBuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "media-library %s (commit %s, built %s, %s %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	},
}
