package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"media-library/internal/database"
	"media-library/internal/indexer"
	"media-library/internal/logging"
	"media-library/internal/mutation"
)

// BulkEditDate applies a batch date edit and streams its progress as
// newline-delimited JSON. The body is a mutation.BatchRequest. No sync
// runs while the batch does, and the batch completes even if the client
// disconnects.
func (h *Handlers) BulkEditDate(w http.ResponseWriter, r *http.Request) {
	var req mutation.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out := newNDJSONWriter(w)
	err := h.syncer.Exclusive(func() error {
		_, err := h.editor.EditDates(context.WithoutCancel(r.Context()), req, func(e mutation.Event) {
			out.write(e)
		})
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, indexer.ErrSyncInProgress):
		writeJSONError(w, http.StatusConflict, err.Error())
	case out.started:
		// The error event already closed the stream.
		logging.Warn("Batch date edit via API failed: %v", err)
	case mutation.IsInvalidRequest(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		logging.Error("Batch date edit via API failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
