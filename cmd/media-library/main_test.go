package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"media-library/internal/database"
	"media-library/internal/health"
	"media-library/internal/indexer"
	"media-library/internal/mutation"
	"media-library/internal/startup"
)

// execute runs the root command with args against a fresh output buffer.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		flagLibrary = ""
		flagYes = false
		flagForce = false
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"sync", "rebuild", "recover", "health", "migrate",
		"edit-date", "bulk-edit-date", "delete", "restore", "purge", "trash",
		"import", "backup", "watch", "serve", "version",
		"duplicates", "thumbnails",
	}

	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{name})
			if err != nil || cmd == rootCmd {
				t.Fatalf("command %q not registered", name)
			}
			if cmd.Short == "" {
				t.Errorf("command %q has no short description", name)
			}
		})
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "library", "yes", "force"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s missing", name)
		}
	}
	if syncCmd.Flags().Lookup("full") == nil {
		t.Error("sync --full missing")
	}
	if purgeCmd.Flags().Lookup("all") == nil {
		t.Error("purge --all missing")
	}
	for _, name := range []string{"mode", "interval", "unit"} {
		if bulkEditDateCmd.Flags().Lookup(name) == nil {
			t.Errorf("bulk-edit-date --%s missing", name)
		}
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		args    []string
		want    []int64
		wantErr bool
	}{
		{[]string{"1", "22", "333"}, []int64{1, 22, 333}, false},
		{[]string{}, []int64{}, false},
		{[]string{"0"}, nil, true},
		{[]string{"-4"}, nil, true},
		{[]string{"abc"}, nil, true},
		{[]string{"5", "x"}, nil, true},
	}

	for _, tt := range tests {
		got, err := parseIDs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseIDs(%v) = %v, want %v", tt.args, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIDs(%v) = %v, want %v", tt.args, got, tt.want)
				break
			}
		}
	}
}

func TestConfirm(t *testing.T) {
	t.Cleanup(func() { flagYes = false })

	flagYes = false
	if _, err := confirm(strings.NewReader("y\n"), &bytes.Buffer{}, "Proceed?"); err == nil {
		t.Error("confirm without a terminal and without --yes should fail")
	}

	flagYes = true
	ok, err := confirm(strings.NewReader(""), &bytes.Buffer{}, "Proceed?")
	if err != nil || !ok {
		t.Errorf("confirm with --yes = %v, %v; want true, nil", ok, err)
	}
}

func TestOpenIndex_CreatesMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo_library.db")

	db, err := openIndex(context.Background(), path)
	if err != nil {
		t.Fatalf("openIndex() error = %v", err)
	}
	defer db.Close()

	if got := health.Check(path).Status; got != health.StatusHealthy {
		t.Errorf("status after create = %s, want healthy", got)
	}
}

func TestOpenIndex_RefusesCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo_library.db")
	if err := os.WriteFile(path, []byte("not a database at all, just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := openIndex(context.Background(), path)
	if !errors.Is(err, errIndexNeedsAttention) {
		t.Fatalf("openIndex() error = %v, want errIndexNeedsAttention", err)
	}
	if !strings.Contains(err.Error(), "rebuild") {
		t.Errorf("error %q should point at rebuild", err)
	}
}

func TestOpenIndex_RefusesMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo_library.db")
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`CREATE TABLE photos (id INTEGER PRIMARY KEY, current_path TEXT)`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	_, err = openIndex(context.Background(), path)
	if !errors.Is(err, errIndexNeedsAttention) {
		t.Fatalf("openIndex() error = %v, want errIndexNeedsAttention", err)
	}
	if !strings.Contains(err.Error(), "migrate") {
		t.Errorf("error %q should point at migrate", err)
	}
}

func TestOpenIndex_ForceContinuesWithMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo_library.db")
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`CREATE TABLE photos (id INTEGER PRIMARY KEY, current_path TEXT)`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	flagForce = true
	t.Cleanup(func() { flagForce = false })

	db, err := openIndex(context.Background(), path)
	if err != nil {
		t.Fatalf("openIndex() with --force error = %v", err)
	}
	db.Close()

	if got := health.Check(path).Status; got != health.StatusMissingColumns {
		t.Errorf("status after forced open = %s, want the schema left as is", got)
	}
}

func TestOpenIndex_ForceStillRefusesCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo_library.db")
	if err := os.WriteFile(path, []byte("not a database at all, just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	flagForce = true
	t.Cleanup(func() { flagForce = false })

	if _, err := openIndex(context.Background(), path); !errors.Is(err, errIndexNeedsAttention) {
		t.Fatalf("openIndex() error = %v, want errIndexNeedsAttention", err)
	}
}

func TestSetupRouter(t *testing.T) {
	router := setupRouter(nil)

	routes, err := startup.GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	got := make(map[string]bool)
	for _, r := range routes {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"GET /metrics", "GET /healthz", "GET /livez", "GET /version", "POST /api/sync", "POST /api/bulk-edit-date"} {
		if !got[want] {
			t.Errorf("route %q not registered (have %v)", want, got)
		}
	}
}

func TestSyncPrinter(t *testing.T) {
	var buf bytes.Buffer
	sink := syncPrinter(&buf)

	sink(indexer.Event{Type: indexer.EventProgress, Phase: indexer.PhaseAddingUntracked, Current: 1, Total: 2, Path: "2024/2024-01-01/a.jpg"})
	sink(indexer.Event{Type: indexer.EventProgress, Phase: indexer.PhaseRemovingEmpty, Current: 1, Path: "2023/2023-05-05"})
	sink(indexer.Event{Type: indexer.EventComplete, Stats: &indexer.Stats{UntrackedFiles: 2, EmptyFolders: 1}})
	sink(indexer.Event{Type: indexer.EventError, Message: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if lines[0] != "[adding_untracked] 1/2 2024/2024-01-01/a.jpg" {
		t.Errorf("progress line = %q", lines[0])
	}
	if lines[1] != "[removing_empty] 1 2023/2023-05-05" {
		t.Errorf("prune line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "added 2 untracked") {
		t.Errorf("summary line = %q", lines[2])
	}
	if lines[3] != "error: boom" {
		t.Errorf("error line = %q", lines[3])
	}
}

func TestBatchPrinter(t *testing.T) {
	var buf bytes.Buffer
	sink := batchPrinter(&buf)

	result := &mutation.BatchResult{
		OperationID: "op-1",
		Items: []mutation.ItemResult{
			{ID: 1, Outcome: mutation.OutcomeRolledBack},
			{ID: 2, Outcome: mutation.OutcomeFailed, Error: "bad file"},
			{ID: 3, Outcome: mutation.OutcomeSkipped},
		},
	}
	sink(mutation.Event{Type: mutation.EventProgress, OperationID: "op-1", Current: 1, Total: 3, ID: 1, Path: "a.jpg", NewPath: "2024/2024-01-01/a.jpg"})
	sink(mutation.Event{Type: mutation.EventError, OperationID: "op-1", Current: 1, Total: 3, ID: 2, Message: "boom", Result: result})

	want := []string{
		"[1/3] 1: a.jpg -> 2024/2024-01-01/a.jpg",
		"1: rolled back",
		"2: failed: bad file",
		"Operation op-1 rolled back: boom",
	}
	if got := strings.Split(strings.TrimSpace(buf.String()), "\n"); !reflect.DeepEqual(got, want) {
		t.Errorf("batch output =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	buf.Reset()
	sink(mutation.Event{Type: mutation.EventComplete, OperationID: "op-2", Current: 3, Total: 3, Result: &mutation.BatchResult{Duration: 1500 * time.Microsecond}})
	if got := strings.TrimSpace(buf.String()); got != "Operation op-2: 3 records updated in 2ms" {
		t.Errorf("complete line = %q", got)
	}
}

func TestCLI_EmptyLibraryLifecycle(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "--library", root, "sync")
	if err != nil {
		t.Fatalf("sync error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "finished") {
		t.Errorf("sync output = %q", out)
	}

	out, err = execute(t, "--library", root, "health", "--json")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	var report health.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("health output is not JSON: %v\n%s", err, out)
	}
	if report.Status != health.StatusHealthy {
		t.Errorf("status = %s, want healthy", report.Status)
	}

	out, err = execute(t, "--library", root, "backup")
	if err != nil {
		t.Fatalf("backup error = %v", err)
	}
	backups, _ := database.ListBackups(filepath.Join(root, ".db_backups"))
	if len(backups) != 1 {
		t.Errorf("got %d backups, want 1; output %q", len(backups), out)
	}

	out, err = execute(t, "--library", root, "trash")
	if err != nil {
		t.Fatalf("trash error = %v", err)
	}
	if !strings.Contains(out, "Trash is empty") {
		t.Errorf("trash output = %q", out)
	}

	if _, err := os.Stat(filepath.Join(root, ".logs", logFileName)); err != nil {
		t.Errorf("log file not written: %v", err)
	}
}

func TestCLI_RecoverAfterCompletedRebuild(t *testing.T) {
	root := t.TempDir()

	if out, err := execute(t, "--library", root, "sync"); err != nil {
		t.Fatalf("sync error = %v\n%s", err, out)
	}
	if out, err := execute(t, "--library", root, "rebuild"); err != nil {
		t.Fatalf("rebuild error = %v\n%s", err, out)
	}

	out, err := execute(t, "--library", root, "--yes", "recover")
	if err == nil || !strings.Contains(err.Error(), "completed") {
		t.Fatalf("recover after a completed rebuild = %v, want refusal\n%s", err, out)
	}

	out, err = execute(t, "--library", root, "--yes", "--force", "recover")
	if err != nil {
		t.Fatalf("recover --force error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Restored index") {
		t.Errorf("recover --force output = %q", out)
	}
}

func TestCLI_DuplicatesEmptyLibrary(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "--library", root, "duplicates")
	if err != nil {
		t.Fatalf("duplicates error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "No duplicates found") {
		t.Errorf("duplicates output = %q", out)
	}
}

func TestCLI_ThumbnailsCheckAndRebuild(t *testing.T) {
	root := t.TempDir()
	orphan := filepath.Join(root, ".thumbnails", "ff", "ff", strings.Repeat("f", 64)+".jpg")
	if err := os.MkdirAll(filepath.Dir(orphan), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(orphan, []byte("thumb"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--library", root, "thumbnails", "check")
	if err != nil {
		t.Fatalf("thumbnails check error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 present, 0 missing, 1 orphaned") {
		t.Errorf("thumbnails check output = %q", out)
	}

	out, err = execute(t, "--library", root, "thumbnails", "rebuild")
	if err != nil {
		t.Fatalf("thumbnails rebuild error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Removed 1 orphaned thumbnails, queued 0 missing") {
		t.Errorf("thumbnails rebuild output = %q", out)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan still present: %v", err)
	}
}

func TestCLI_DeleteUnknownID(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "--library", root, "delete", "42")
	if err == nil {
		t.Fatalf("delete of unknown id should fail; output %q", out)
	}
	if !strings.Contains(out, "failed 42") {
		t.Errorf("output %q should report id 42", out)
	}
}

func TestCLI_PurgeAllNeedsConfirmation(t *testing.T) {
	root := t.TempDir()

	if _, err := execute(t, "--library", root, "purge", "--all"); err == nil {
		t.Error("purge --all without a terminal or --yes should fail")
	}

	// Cobra keeps flag values between executions.
	t.Cleanup(func() { _ = purgeCmd.Flags().Set("all", "false") })
	out, err := execute(t, "--library", root, "--yes", "purge", "--all")
	if err != nil {
		t.Fatalf("purge --all --yes error = %v\n%s", err, out)
	}
}

func TestCLI_PurgeArguments(t *testing.T) {
	root := t.TempDir()
	if _, err := execute(t, "--library", root, "purge"); err == nil {
		t.Error("purge without ids or --all should fail")
	}
}
