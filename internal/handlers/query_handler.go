package handlers

import (
	"context"
	"errors"
	"net/http"

	"aquamon/internal/logger"
	"aquamon/internal/models"
	"aquamon/internal/services"
)

// ReadingsQuerier serves the read views of the readings table
type ReadingsQuerier interface {
	Latest(ctx context.Context) (*models.ReadingsResponse, error)
	Range(ctx context.Context, startDate, endDate string) (*models.ReadingsResponse, error)
	Current(ctx context.Context) (models.Reading, error)
}

// QueryHandler handles the GET /api/temperature endpoints
type QueryHandler struct {
	queryService ReadingsQuerier
	logger       *logger.Logger
}

// NewQueryHandler creates a new QueryHandler instance
func NewQueryHandler(queryService ReadingsQuerier, log *logger.Logger) *QueryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QueryHandler{queryService: queryService, logger: log.WithComponent("api")}
}

// HandleLatest handles GET /api/temperature/latest
func (h *QueryHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryService.Latest(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRange handles GET /api/temperature?startDate=...&endDate=...
func (h *QueryHandler) HandleRange(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("startDate")
	endDate := r.URL.Query().Get("endDate")

	result, err := h.queryService.Range(r.Context(), startDate, endDate)
	if errors.Is(err, services.ErrMissingRange) || errors.Is(err, services.ErrInvertedRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCurrent handles GET /api/temperature/current
func (h *QueryHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	reading, err := h.queryService.Current(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (h *QueryHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithRequestID(RequestID(r.Context())).Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
