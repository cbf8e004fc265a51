package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/public-data-space/zenodo-adapter/internal/webservice/metrics"
)

// Create is a handler ingesting a record as a new dataset.
type Create struct {
	assets       AssetService
	maxBodyBytes int64
}

// NewCreate creates a new Create handler.
func NewCreate(assets AssetService, maxBodyBytes int64) *Create {
	return &Create{assets: assets, maxBodyBytes: maxBodyBytes}
}

// ServeHTTP decodes the creation message and answers with the ingested dataset.
func (h *Create) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := newRequestID()

	var msg models.CreateRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &msg); err != nil {
		http.Error(w, "Invalid creation message", http.StatusBadRequest)
		slog.Error("Invalid creation message", "req_id", reqID, "err", err)
		return
	}

	recordID := strings.TrimSpace(msg.Data.RecordID)
	if recordID == "" {
		http.Error(w, "Missing record ID", http.StatusBadRequest)
		slog.Error("Missing record ID", "req_id", reqID)
		return
	}

	slog.Info("Request recv'd", "req_id", reqID, "record", recordID, "api", msg.DataSource.Data.APIURL)
	ds, err := h.assets.Create(r.Context(), recordID, msg.DataSource.Data)
	if err != nil {
		http.Error(w, "Data asset could not be created", http.StatusNotFound)
		slog.Error("Data asset could not be created", "req_id", reqID, "record", recordID, "err", err)
		return
	}

	slog.Info("Data asset created", "req_id", reqID, "dataset", ds.ResourceID, "distributions", len(ds.Distributions))
	writeJSON(w, reqID, ds)
}

// Delete is a handler removing every access record of a dataset.
type Delete struct {
	assets AssetService
}

// NewDelete creates a new Delete handler.
func NewDelete(assets AssetService) *Delete {
	return &Delete{assets: assets}
}

// ServeHTTP deletes the dataset named in the path.
func (h *Delete) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := newRequestID()
	id := r.PathValue("id")

	slog.Info("Request recv'd", "req_id", reqID, "dataset", id)
	if err := h.assets.Delete(r.Context(), id); err != nil {
		http.Error(w, "Data asset could not be deleted", http.StatusNotFound)
		slog.Error("Data asset could not be deleted", "req_id", reqID, "dataset", id, "err", err)
		return
	}

	writeJSON(w, reqID, map[string]string{"status": "success"})
}
