// Package middleware provides HTTP middleware for the operations endpoint.
//
// It includes:
//   - Request logging in W3C Extended Log Format, tagged with a request id
//   - Prometheus request counters and latency histograms
package middleware
