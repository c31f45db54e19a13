package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"media-library/internal/filesystem"
	"media-library/internal/metrics"
)

const (
	chunkSize = 1 << 20
	shortLen  = 8
)

// Compute returns the lowercase hex SHA-256 of the file at path, reading it
// in 1 MiB chunks.
func Compute(path string) (string, error) {
	start := time.Now()
	defer func() { metrics.HashComputeDuration.Observe(time.Since(start).Seconds()) }()

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns the cosmetic filename fragment of digest.
func Short(digest string) string {
	if len(digest) <= shortLen {
		return digest
	}
	return digest[:shortLen]
}
