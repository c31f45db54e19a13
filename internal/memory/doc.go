// Package memory keeps the long-running commands (serve and watch) inside a
// container's memory budget.
//
// [ConfigureFromEnv] sets the Go soft memory limit from the environment:
//
//   - GOMEMLIMIT: standard Go variable, used as is when set.
//   - MEMORY_LIMIT: container limit in bytes, typically passed through the
//     Kubernetes Downward API.
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap, between 0
//     and 1 (default 0.85). The rest is left for exiftool, ffprobe and
//     ffmpeg child processes.
//
// A [Monitor] samples heap usage against that limit. Above the critical
// water mark it pauses background work, and it resumes once usage drops
// below the high water mark. The thumbnail worker waits on it before
// decoding each image.
package memory
