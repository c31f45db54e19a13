package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-library/internal/database"
	"media-library/internal/library"
	"media-library/internal/logging"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Defaults applied when neither the config file nor the environment sets a
// value.
const (
	DefaultSyncInterval   = 30 * time.Minute
	DefaultHashCacheSize  = 1000
	DefaultThumbnailQueue = 256
	DefaultMetricsPort    = "9090"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// FileConfig is the on-disk TOML form of the configuration.
type FileConfig struct {
	LibraryDir     string `toml:"library_dir"`
	DatabasePath   string `toml:"database_path,omitempty"`
	SyncInterval   string `toml:"sync_interval,omitempty"`
	HashCacheSize  int    `toml:"hash_cache_size,omitempty"`
	ThumbnailQueue int    `toml:"thumbnail_queue,omitempty"`
	BackupKeep     int    `toml:"backup_keep,omitempty"`
	MetricsPort    string `toml:"metrics_port,omitempty"`
	LogLevel       string `toml:"log_level,omitempty"`
}

// Config holds all application configuration. It is built once and never
// mutated; switching libraries means loading a new Config.
type Config struct {
	library.Layout

	DatabasePath   string
	SyncInterval   time.Duration
	HashCacheSize  int
	ThumbnailQueue int
	BackupKeep     int
	MetricsPort    string
	LogLevel       string
}

// NewConfig returns a Config for root with every other value defaulted.
func NewConfig(root string) *Config {
	return &Config{
		Layout:         library.Layout{Root: root},
		DatabasePath:   filepath.Join(root, library.DefaultDatabaseName),
		SyncInterval:   DefaultSyncInterval,
		HashCacheSize:  DefaultHashCacheSize,
		ThumbnailQueue: DefaultThumbnailQueue,
		BackupKeep:     database.DefaultBackupKeep,
		MetricsPort:    DefaultMetricsPort,
	}
}

// LoadConfig reads the optional TOML file at path, applies environment
// overrides and resolves derived paths. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigForLibrary(path, "")
}

// LoadConfigForLibrary is LoadConfig with libraryDir, when non-empty,
// taking precedence over both the file and LIBRARY_DIR.
func LoadConfigForLibrary(path, libraryDir string) (*Config, error) {
	var fc FileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	return buildConfig(fc, libraryDir)
}

func buildConfig(fc FileConfig, libraryDir string) (*Config, error) {
	if libraryDir == "" {
		libraryDir = getEnv("LIBRARY_DIR", fc.LibraryDir)
	}
	if libraryDir == "" {
		return nil, errors.New("library directory is not configured (set library_dir or LIBRARY_DIR)")
	}

	root, err := filepath.Abs(libraryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library directory path: %w", err)
	}
	cfg := NewConfig(root)

	if dbPath := getEnv("DATABASE_PATH", fc.DatabasePath); dbPath != "" {
		if cfg.DatabasePath, err = filepath.Abs(dbPath); err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}

	if interval := getEnv("SYNC_INTERVAL", fc.SyncInterval); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil || parsed <= 0 {
			logging.Warn("Invalid SYNC_INTERVAL %q, using default: %v", interval, DefaultSyncInterval)
		} else {
			cfg.SyncInterval = parsed
		}
	}

	cfg.HashCacheSize = getEnvInt("HASH_CACHE_SIZE", orDefault(fc.HashCacheSize, DefaultHashCacheSize))
	cfg.ThumbnailQueue = getEnvInt("THUMBNAIL_QUEUE", orDefault(fc.ThumbnailQueue, DefaultThumbnailQueue))
	cfg.BackupKeep = orDefault(fc.BackupKeep, database.DefaultBackupKeep)
	cfg.MetricsPort = getEnv("METRICS_PORT", orDefault(fc.MetricsPort, DefaultMetricsPort))

	cfg.LogLevel = getEnv("LOG_LEVEL", fc.LogLevel)
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}

	return cfg, nil
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}
	return value
}

// LogConfig prints the banner, system information and the effective
// configuration. Long-running commands call it once at startup.
func LogConfig(cfg *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  LIBRARY_DIR:      %s", cfg.Root)
	logging.Info("  DATABASE_PATH:    %s", cfg.DatabasePath)
	logging.Info("  SYNC_INTERVAL:    %v", cfg.SyncInterval)
	logging.Info("  HASH_CACHE_SIZE:  %d", cfg.HashCacheSize)
	logging.Info("  THUMBNAIL_QUEUE:  %d", cfg.ThumbnailQueue)
	logging.Info("  METRICS_PORT:     %s", cfg.MetricsPort)
	logging.Info("  LOG_LEVEL:        %s", logging.GetLevel())
	logging.Info("")
}

// EnsureLayout creates the library root and its reserved directories and
// verifies the root is writable.
func EnsureLayout(cfg *Config) error {
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(cfg.Root, "library"); err != nil {
		return fmt.Errorf("library directory error: %w", err)
	}
	if err := testWriteAccess(cfg.Root); err != nil {
		return fmt.Errorf("library directory is not writable: %w", err)
	}
	logging.Info("  [OK] Library directory is writable")

	for _, dir := range cfg.ReservedDirs() {
		if err := ensureDirectory(dir, filepath.Base(dir)); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
	}
	return nil
}

// ExternalTools are the binaries the metadata collaborators shell out to.
var ExternalTools = []string{"exiftool", "ffprobe", "ffmpeg"}

// LogToolCheck checks each external tool and logs its version. It returns
// the tools that could not be run.
func LogToolCheck() []string {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")

	var missing []string
	for _, name := range ExternalTools {
		if err := checkTool(name); err != nil {
			logging.Warn("  %s check failed: %v", name, err)
			missing = append(missing, name)
			continue
		}
		logging.Info("  [OK] %s is available", name)
	}
	if len(missing) > 0 {
		logging.Warn("  Date edits and imports for affected media types will fail")
	}
	return missing
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered ops routes
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	for _, route := range routes {
		logging.Info("    %-6s %s", route.Method, route.Path)
	}
}

// LogServerStarted logs the ops endpoint addresses
func LogServerStarted(port string, startupDuration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", startupDuration)
	logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", port)
	logging.Info("  Health:          http://0.0.0.0:%s/healthz", port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___          __    _ __
   /  |/  /__  ____/ (_)___ _   / /   (_) /_  _________ ________  __
  / /|_/ / _ \/ __  / / __ '/  / /   / / __ \/ ___/ __ '/ ___/ / / /
 / /  / /  __/ /_/ / / /_/ /  / /___/ / /_/ / /  / /_/ / /  / /_/ /
/_/  /_/\___/\__,_/_/\__,_/  /_____/_/_.___/_/   \__,_/_/   \__, /
                                                           /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// checkTool verifies name is on PATH and answers a version query.
func checkTool(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	versionFlag := "-version"
	if name == "exiftool" {
		versionFlag = "-ver"
	}

	output, err := exec.CommandContext(ctx, name, versionFlag).Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", name, err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(lines[0]))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
