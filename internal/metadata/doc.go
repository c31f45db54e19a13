// Package metadata reads and writes the embedded metadata the library
// depends on: capture dates and rendered dimensions.
//
// Photos go through exiftool, videos through ffprobe and ffmpeg, and common
// image formats are measured with the Go image decoders. Every external
// call runs with a timeout. Failures come back as *Error with a Kind
// derived from how the tool failed (missing binary, deadline, non-zero
// exit), so callers can branch on the kind instead of on message text.
package metadata
