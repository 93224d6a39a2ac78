package handlers

import (
	"context"
	"net/http"

	"aquamon/internal/logger"
	"aquamon/internal/models"
)

// SetpointsReader reads the setpoints singleton
type SetpointsReader interface {
	GetSetpoints(ctx context.Context) (models.Setpoints, error)
}

// SetpointsHandler handles GET /api/setpoints so dashboards can draw the
// bands before the first readings arrive
type SetpointsHandler struct {
	store  SetpointsReader
	logger *logger.Logger
}

// NewSetpointsHandler creates a new SetpointsHandler
func NewSetpointsHandler(store SetpointsReader, log *logger.Logger) *SetpointsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SetpointsHandler{store: store, logger: log.WithComponent("api")}
}

// Handle responds with the current setpoints
func (h *SetpointsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sp, err := h.store.GetSetpoints(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read setpoints")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}
