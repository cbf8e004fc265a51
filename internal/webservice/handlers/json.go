// Package handlers provides HTTP handlers for the server.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

func newRequestID() string {
	return uuid.New().String()
}

// decodeJSON reads a single JSON document of at most maxBytes from r into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// writeJSON answers with v encoded as JSON.
func writeJSON(w http.ResponseWriter, reqID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		slog.Error("Error encoding response", "req_id", reqID, "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("Error writing response", "req_id", reqID, "err", err)
	}
}
