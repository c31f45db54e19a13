package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-library/internal/database"
	"media-library/internal/health"
	"media-library/internal/logging"
	"media-library/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string        `json:"status"`
	Version  string        `json:"version"`
	Uptime   string        `json:"uptime"`
	Index    health.Report `json:"index"`
	Syncing  bool          `json:"syncing"`
	LastSync string        `json:"lastSync,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`

	Stats *database.LibraryStats `json:"stats,omitempty"`
}

// usable reports whether the index can serve reads as it is.
func usable(r health.Report) bool {
	return r.Status == health.StatusHealthy || r.Status == health.StatusExtraColumns
}

// HealthCheck reports the structural health of the index and the sync
// state. It answers 503 when the index needs an operator decision.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := health.Check(h.dbPath)

	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Index:        report,
		Syncing:      h.syncer.IsSyncing(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if last := h.syncer.LastSyncTime(); !last.IsZero() {
		response.LastSync = last.Format(time.RFC3339)
	}

	if usable(report) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if stats, err := h.stats.Stats(ctx); err != nil {
			logging.Warn("Health check could not read library stats: %v", err)
		} else {
			response.Stats = &stats
		}
	} else {
		response.Status = statusDegraded
	}

	status := http.StatusOK
	if response.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// LivenessCheck answers 200 while the process can serve requests. HEAD
// gets headers only.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
