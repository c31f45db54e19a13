package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Persistent flags
var (
	flagConfig  string
	flagLibrary string
	flagYes     bool
	flagForce   bool
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "media-library",
	Short: "Index and maintain a date-organized photo and video library",
	Long: `media-library keeps a SQLite index in step with a directory tree of
photos and videos laid out as YYYY/YYYY-MM-DD/. The filesystem is the
ground truth: sync reconciles the index with it, rebuild recreates the
index from scratch, and date edits rewrite file metadata, rename and
move files, and update the index as one reversible unit.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("MEDIA_LIBRARY_CONFIG"), "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVarP(&flagLibrary, "library", "l", "", "Library root directory (overrides config and LIBRARY_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "Answer yes to confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "Continue with an index that needs migration; let recover restore over a completed rebuild")

	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("full", false, "Treat every file as untracked instead of diffing against the index")

	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(recoverCmd)

	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().Bool("json", false, "Print the report as JSON")
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(editDateCmd)
	rootCmd.AddCommand(bulkEditDateCmd)
	bulkEditDateCmd.Flags().String("mode", "same", "Date policy: same, shift or sequence")
	bulkEditDateCmd.Flags().Int("interval", 0, "Step between records in sequence mode (default 5 minutes)")
	bulkEditDateCmd.Flags().String("unit", "minutes", "Unit of --interval: seconds, minutes or hours")

	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().Bool("all", false, "Empty the whole trash")
	rootCmd.AddCommand(trashCmd)

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(thumbnailsCmd)
	thumbnailsCmd.AddCommand(thumbnailsCheckCmd)
	thumbnailsCmd.AddCommand(thumbnailsRebuildCmd)
	thumbnailsRebuildCmd.Flags().Bool("all", false, "Discard every cached thumbnail and generate them again")

	rootCmd.AddCommand(backupCmd)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
