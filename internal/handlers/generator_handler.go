package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"aquamon/internal/database"
	"aquamon/internal/services"
)

const (
	defaultGenerateWindow = 24 * time.Hour
	defaultGenerateStep   = time.Minute
)

// HistoryGenerator writes simulated history into the store
type HistoryGenerator interface {
	GenerateHistory(ctx context.Context, store services.BatchWriter, start, end time.Time, step time.Duration) (int, error)
}

// GeneratorHandler handles POST /api/generate-dummy requests
type GeneratorHandler struct {
	generator HistoryGenerator
	store     services.BatchWriter
	now       func() time.Time
}

// NewGeneratorHandler creates a new GeneratorHandler instance
func NewGeneratorHandler(generator HistoryGenerator, store services.BatchWriter) *GeneratorHandler {
	return &GeneratorHandler{
		generator: generator,
		store:     store,
		now:       time.Now,
	}
}

// GenerateRequest is the optional body of generate-dummy. Empty fields
// default to the last 24 hours at one-minute steps.
type GenerateRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Step  string `json:"step"`
}

// GenerateResponse represents the response from generate-dummy endpoint
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Handle generates simulated readings for the requested window
func (h *GeneratorHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Message: "invalid request body"})
		return
	}

	end := h.now().UTC()
	if req.End != "" {
		t, ok := database.ParseBoundary(req.End)
		if !ok {
			writeJSON(w, http.StatusBadRequest, GenerateResponse{Message: "invalid end time"})
			return
		}
		end = t
	}
	start := end.Add(-defaultGenerateWindow)
	if req.Start != "" {
		t, ok := database.ParseBoundary(req.Start)
		if !ok {
			writeJSON(w, http.StatusBadRequest, GenerateResponse{Message: "invalid start time"})
			return
		}
		start = t
	}
	step := defaultGenerateStep
	if req.Step != "" {
		d, err := time.ParseDuration(req.Step)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, GenerateResponse{Message: "invalid step"})
			return
		}
		step = d
	}
	if step <= 0 {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Message: "invalid step"})
		return
	}
	if services.GeneratePoints(start, end, step) > services.MaxGeneratePoints {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{
			Message: fmt.Sprintf("window and step exceed the limit of %d readings", services.MaxGeneratePoints),
		})
		return
	}

	count, err := h.generator.GenerateHistory(r.Context(), h.store, start, end, step)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GenerateResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success: true,
		Message: "Dummy data generated successfully",
		Count:   count,
	})
}
