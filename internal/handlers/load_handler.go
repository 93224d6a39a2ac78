package handlers

import (
	"context"
	"net/http"
)

// FeedLoader backfills readings from feed exports on disk
type FeedLoader interface {
	LoadFromFolder(ctx context.Context, folderPath string) (int, int, error)
}

// LoadHandler handles POST /api/load requests
type LoadHandler struct {
	loader        FeedLoader
	rawDataFolder string
}

// NewLoadHandler creates a new LoadHandler instance
func NewLoadHandler(loader FeedLoader, rawDataFolder string) *LoadHandler {
	return &LoadHandler{
		loader:        loader,
		rawDataFolder: rawDataFolder,
	}
}

// LoadResponse represents the response from load endpoint
type LoadResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Count      int    `json:"count,omitempty"`
	FilesCount int    `json:"files_count,omitempty"`
}

// Handle loads every feed export in the configured folder
func (h *LoadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	count, filesCount, err := h.loader.LoadFromFolder(r.Context(), h.rawDataFolder)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, LoadResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, LoadResponse{
		Success:    true,
		Message:    "Feed exports loaded successfully",
		Count:      count,
		FilesCount: filesCount,
	})
}
