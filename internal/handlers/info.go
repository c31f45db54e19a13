package handlers

import (
	"net/http"
	"time"

	"media-library/internal/logging"
	"media-library/internal/startup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	startup.BuildInfo
	Uptime string `json:"uptime"`
}

// GetVersion reports build information and how long the process has run.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// promErrorLogger routes promhttp errors into the application log.
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...interface{}) {
	logging.Warn("metrics endpoint: %v", v)
}

// MetricsHandler serves the default Prometheus registry. Collection errors
// are logged and the remaining series are still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}
