package handlers

import (
	"encoding/json"
	"net/http"

	"media-library/internal/logging"
)

// writeJSON writes v as a JSON body with the given status. Encoding errors
// can only be logged once the header is out.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode %T response: %v", v, err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
