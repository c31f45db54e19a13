// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional TOML file and then applies environment
// overrides:
//
//   - LIBRARY_DIR: Library root (required, or library_dir in the file)
//   - DATABASE_PATH: Index file (default: <root>/photo_library.db)
//   - SYNC_INTERVAL: Periodic incremental sync as Go duration (default: 30m)
//   - HASH_CACHE_SIZE: In-memory digest cache entries (default: 1000)
//   - THUMBNAIL_QUEUE: Pending thumbnail jobs before new ones are dropped (default: 256)
//   - METRICS_PORT: Ops server port for serve (default: 9090)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// The resulting [Config] embeds [library.Layout], so reserved directories
// such as TrashDir and BackupDir are derived from the root in one place.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogConfig], [EnsureLayout], [LogToolCheck], [LogHTTPRoutes],
// [LogServerStarted] and the shutdown helpers print the sectioned startup
// output used by the long-running commands.
package startup
