package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/files"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/public-data-space/zenodo-adapter/internal/webservice/metrics"
)

// GetFile is a handler answering with the download link of a distribution.
type GetFile struct {
	files        FileService
	maxBodyBytes int64
}

// NewGetFile creates a new GetFile handler.
func NewGetFile(f FileService, maxBodyBytes int64) *GetFile {
	return &GetFile{files: f, maxBodyBytes: maxBodyBytes}
}

// ServeHTTP decodes the file request and answers with {"link": url}.
func (h *GetFile) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := newRequestID()

	var msg models.FileRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &msg); err != nil {
		http.Error(w, "Invalid file request", http.StatusBadRequest)
		slog.Error("Invalid file request", "req_id", reqID, "err", err)
		return
	}

	link, err := h.files.Link(r.Context(), msg.DatasetID, msg.DistributionID)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		slog.Error("File not found", "req_id", reqID, "dataset", msg.DatasetID, "distribution", msg.DistributionID, "err", err)
		return
	}

	writeJSON(w, reqID, map[string]string{"link": link})
}

// Stream is a handler proxying the content of a distribution.
type Stream struct {
	files FileService
}

// NewStream creates a new Stream handler.
func NewStream(f FileService) *Stream {
	return &Stream{files: f}
}

// ServeHTTP streams the distribution named in the path, presented under the filename query parameter.
func (h *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := newRequestID()
	datasetID, distributionID := r.PathValue("datasetId"), r.PathValue("distributionId")

	slog.Info("Request recv'd", "req_id", reqID, "dataset", datasetID, "distribution", distributionID)
	// Downloads are not bound by the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("Could not lift write deadline", "req_id", reqID, "err", err)
	}

	err := h.files.Stream(r.Context(), w, datasetID, distributionID, r.URL.Query().Get("filename"))
	if err == nil {
		return
	}

	code := http.StatusNotFound
	switch {
	case errors.Is(err, files.ErrInvalidURL):
		code = http.StatusInternalServerError
	case errors.Is(err, files.ErrUpstream):
		code = http.StatusBadGateway
	}
	http.Error(w, http.StatusText(code), code)
	slog.Error("File could not be streamed", "req_id", reqID, "dataset", datasetID, "distribution", distributionID, "status", code, "err", err)
}
