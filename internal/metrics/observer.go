package metrics

import (
	"media-library/internal/filesystem"

	"github.com/prometheus/client_golang/prometheus"
)

// retryObserver feeds filesystem retry events into the
// media_library_filesystem_* series.
type retryObserver struct {
	attempts, successes, failures, stale *prometheus.CounterVec
	duration                             *prometheus.HistogramVec
}

// NewFilesystemObserver returns the observer cmd installs with
// filesystem.SetObserver.
func NewFilesystemObserver() filesystem.Observer {
	return &retryObserver{
		attempts:  FilesystemRetryAttempts,
		successes: FilesystemRetrySuccess,
		failures:  FilesystemRetryFailures,
		stale:     FilesystemStaleErrors,
		duration:  FilesystemRetryDuration,
	}
}

func (o *retryObserver) ObserveRetryAttempt(op, volume string) {
	o.attempts.WithLabelValues(op, volume).Inc()
}

func (o *retryObserver) ObserveRetrySuccess(op, volume string) {
	o.successes.WithLabelValues(op, volume).Inc()
}

func (o *retryObserver) ObserveRetryFailure(op, volume string) {
	o.failures.WithLabelValues(op, volume).Inc()
}

func (o *retryObserver) ObserveRetryDuration(op, volume string, seconds float64) {
	o.duration.WithLabelValues(op, volume).Observe(seconds)
}

func (o *retryObserver) ObserveStaleError(op, volume string) {
	o.stale.WithLabelValues(op, volume).Inc()
}
