package handlers

import (
	"context"
	"io"
	"net/http"
)

const maxUploadSize = 50 << 20

// CSVLoader imports a ThingSpeak CSV export
type CSVLoader interface {
	LoadFromCSV(ctx context.Context, reader io.Reader) (int, error)
}

// UploadHandler handles POST /api/upload-csv (multipart field "file")
type UploadHandler struct {
	loader CSVLoader
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(loader CSVLoader) *UploadHandler {
	return &UploadHandler{loader: loader}
}

// Handle imports the uploaded CSV export
func (h *UploadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, LoadResponse{
			Success: false,
			Message: "invalid multipart form: " + err.Error(),
		})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, LoadResponse{
			Success: false,
			Message: "missing or invalid file: " + err.Error(),
		})
		return
	}
	defer file.Close()

	count, err := h.loader.LoadFromCSV(r.Context(), file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, LoadResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, LoadResponse{
		Success: true,
		Message: "CSV imported successfully",
		Count:   count,
	})
}
