package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/hashing"
	"media-library/internal/health"
	"media-library/internal/logging"
	"media-library/internal/metadata"
	"media-library/internal/metrics"
	"media-library/internal/startup"

	"go.uber.org/multierr"
	"golang.org/x/term"
)

// logFileName is the file under <root>/.logs that receives a copy of the
// process log.
const logFileName = "media-library.log"

// errIndexNeedsAttention is returned when the health gate refuses to open
// the index.
var errIndexNeedsAttention = errors.New("index needs attention")

// app carries what every command that works on an open index needs.
type app struct {
	cfg    *startup.Config
	db     *database.Database
	tools  *metadata.Tools
	hasher *hashing.Cache

	logFile *os.File
}

// loadConfig builds the configuration from the persistent flags.
func loadConfig() (*startup.Config, error) {
	cfg, err := startup.LoadConfigForLibrary(flagConfig, flagLibrary)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupProcess installs the metrics observers and tees the log into the
// library's log directory. The returned file is nil when the log directory
// cannot be created; logging then stays on stderr.
func setupProcess(cfg *startup.Config) *os.File {
	metrics.InitializeMetrics()
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"library":  cfg.Root,
		"database": filepath.Dir(cfg.DatabasePath),
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	if err := os.MkdirAll(cfg.LogDir(), 0o755); err != nil {
		logging.Warn("Cannot create log directory %s: %v", cfg.LogDir(), err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogDir(), logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Warn("Cannot open log file: %v", err)
		return nil
	}
	logging.SetOutput(f)
	return f
}

// newApp loads the config, passes the index through the health gate and
// builds the hash cache. The caller must defer a.Close().
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logFile := setupProcess(cfg)

	db, err := openIndex(ctx, cfg.DatabasePath)
	if err != nil {
		closeLog(logFile)
		return nil, err
	}

	cache, err := hashing.NewCache(db, cfg.HashCacheSize)
	if err != nil {
		closeLog(logFile)
		return nil, multierr.Append(fmt.Errorf("creating hash cache: %w", err), db.Close())
	}

	return &app{
		cfg:     cfg,
		db:      db,
		tools:   metadata.NewTools(),
		hasher:  cache,
		logFile: logFile,
	}, nil
}

// Close releases the index and the log file.
func (a *app) Close() error {
	err := a.db.Close()
	logging.Sync()
	closeLog(a.logFile)
	return err
}

func closeLog(f *os.File) {
	if f == nil {
		return
	}
	logging.SetOutput(nil)
	_ = f.Close()
}

// openIndex classifies the index at dbPath before opening it. A missing
// index is created. Indexes that need a migration are refused with a
// message naming the command that fixes them unless --force is given;
// corrupted indexes are always refused.
func openIndex(ctx context.Context, dbPath string) (*database.Database, error) {
	report := health.Check(dbPath)
	for _, op := range report.IncompleteOperations {
		logging.Warn("Unfinished %s operation %s from %s; check the library before continuing",
			op.Kind, op.ID, op.StartedAt.Local().Format(time.DateTime))
	}

	switch report.Status {
	case health.StatusMissing:
		logging.Info("No index at %s, creating a new one", dbPath)
		return database.Create(ctx, dbPath)
	case health.StatusHealthy:
		return database.Open(ctx, dbPath)
	case health.StatusExtraColumns:
		logging.Warn("Index has columns this version does not use: %s", strings.Join(report.ExtraColumns, ", "))
		return database.Open(ctx, dbPath)
	case health.StatusMissingColumns, health.StatusMixedSchema:
		if flagForce && report.CanContinue {
			logging.Warn("Continuing with an outdated index (%s); commands that need the missing columns will fail",
				report.Message())
			return database.Open(ctx, dbPath)
		}
		return nil, fmt.Errorf("%w: %s; run 'media-library migrate' first, or pass --force to continue anyway",
			errIndexNeedsAttention, report.Message())
	default:
		return nil, fmt.Errorf("%w: %s; run 'media-library rebuild' to create a new index from the library",
			errIndexNeedsAttention, report.Message())
	}
}

// confirm asks question on out and reads the answer from in. Without a
// terminal on stdin it only proceeds when --yes was given.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if flagYes {
		return true, nil
	}
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return false, errors.New("confirmation required: re-run with --yes")
	}

	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// parseIDs converts record id arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
