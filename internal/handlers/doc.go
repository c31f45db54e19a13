// Package handlers provides the HTTP handlers of the operations endpoint
// served by "media-library serve".
//
// It includes handlers for:
//   - Index health and liveness probes
//   - Build version information
//   - Prometheus metrics
//   - Triggering a sync with a streamed progress report
package handlers
