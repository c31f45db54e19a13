package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"media-library/internal/indexer"
	"media-library/internal/logging"
)

// ndjsonWriter writes one JSON document per line and flushes after each.
type ndjsonWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
	started bool
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	flusher, _ := w.(http.Flusher)
	return &ndjsonWriter{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

func (n *ndjsonWriter) write(v interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.w.Header().Set("Cache-Control", "no-cache")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}

	if err := n.enc.Encode(v); err != nil {
		logging.Debug("sync stream write failed: %v", err)
		return
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
}

// TriggerSync runs a sync and streams its events as newline-delimited JSON.
// The mode query parameter selects "incremental" (default) or "full".
// The run continues to completion if the client disconnects.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	mode := indexer.Mode(r.URL.Query().Get("mode"))
	switch mode {
	case "":
		mode = indexer.ModeIncremental
	case indexer.ModeIncremental, indexer.ModeFull:
	default:
		writeJSONError(w, http.StatusBadRequest, "mode must be incremental or full")
		return
	}

	out := newNDJSONWriter(w)
	_, err := h.syncer.SyncNow(context.WithoutCancel(r.Context()), mode, func(e indexer.Event) {
		out.write(e)
	})

	switch {
	case errors.Is(err, indexer.ErrSyncInProgress):
		writeJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		logging.Error("Sync via API failed: %v", err)
		if !out.started {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
	}
}
