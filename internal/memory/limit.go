package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"media-library/internal/logging"
)

// DefaultRatio is the share of MEMORY_LIMIT given to the Go heap.
const DefaultRatio = 0.85

// Limit sources
const (
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// Limit describes the soft memory limit in effect after configuration.
type Limit struct {
	// Bytes is the Go soft memory limit, 0 when none is set.
	Bytes int64
	// Source is one of SourceGoMemLimit, SourceMemoryLimit or SourceNone.
	Source string
	// Container is the MEMORY_LIMIT value, 0 when it was not used.
	Container int64
	Ratio     float64
}

// ConfigureFromEnv sets the Go soft memory limit from GOMEMLIMIT or
// MEMORY_LIMIT and MEMORY_RATIO. Call it before the heavy allocations of a
// long-running command.
func ConfigureFromEnv() Limit {
	return configure(os.Getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) Limit {
	if env := getenv("GOMEMLIMIT"); env != "" {
		// The runtime parsed GOMEMLIMIT at startup; a negative argument only reads it.
		current := setLimit(-1)
		if current <= 0 || current == math.MaxInt64 {
			return Limit{Source: SourceNone}
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return Limit{Bytes: current, Source: SourceGoMemLimit}
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, no memory limit configured")
		return Limit{Source: SourceNone}
	}
	container, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || container <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return Limit{Source: SourceNone}
	}

	ratio := DefaultRatio
	if r := getenv("MEMORY_RATIO"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using %.2f", r, err, DefaultRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using %.2f", r, DefaultRatio)
		default:
			ratio = parsed
		}
	}

	limit := int64(float64(container) * ratio)
	setLimit(limit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		formatBytes(limit), ratio*100, formatBytes(container))

	return Limit{Bytes: limit, Source: SourceMemoryLimit, Container: container, Ratio: ratio}
}

// formatBytes renders b with a binary unit suffix.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
