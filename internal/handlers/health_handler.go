package handlers

import (
	"context"
	"net/http"
	"time"

	"aquamon/internal/services"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource exposes collector counters
type StatsSource interface {
	Stats() services.CollectorStats
}

// HealthHandler handles GET /health
type HealthHandler struct {
	db        Pinger
	collector StatsSource
}

// NewHealthHandler creates a new HealthHandler. collector may be nil.
func NewHealthHandler(db Pinger, collector StatsSource) *HealthHandler {
	return &HealthHandler{db: db, collector: collector}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                   `json:"status"`
	Database  string                   `json:"database"`
	Collector *services.CollectorStats `json:"collector,omitempty"`
}

// Handle reports 200 when the database answers a ping and 503 otherwise
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.collector != nil {
		stats := h.collector.Stats()
		resp.Collector = &stats
	}

	writeJSON(w, status, resp)
}
