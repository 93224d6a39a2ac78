package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"aquamon/internal/logger"
)

// Routes collects the endpoint handlers. Nil optional handlers leave their
// route unregistered.
type Routes struct {
	Query     *QueryHandler
	Setpoints *SetpointsHandler
	Health    *HealthHandler

	Load      *LoadHandler
	Upload    *UploadHandler
	Generator *GeneratorHandler
	Stream    http.HandlerFunc
}

// NewRouter builds the API router wrapped in the CORS and request logging middleware
func NewRouter(rt Routes, log *logger.Logger) http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/temperature/latest", rt.Query.HandleLatest).Methods("GET")
	api.HandleFunc("/temperature/current", rt.Query.HandleCurrent).Methods("GET")
	api.HandleFunc("/temperature", rt.Query.HandleRange).Methods("GET")
	api.HandleFunc("/setpoints", rt.Setpoints.Handle).Methods("GET")

	if rt.Load != nil {
		api.HandleFunc("/load", rt.Load.Handle).Methods("POST")
	}
	if rt.Upload != nil {
		api.HandleFunc("/upload-csv", rt.Upload.Handle).Methods("POST")
	}
	if rt.Generator != nil {
		api.HandleFunc("/generate-dummy", rt.Generator.Handle).Methods("POST")
	}
	if rt.Stream != nil {
		router.HandleFunc("/ws", rt.Stream).Methods("GET")
	}

	router.HandleFunc("/health", rt.Health.Handle).Methods("GET")

	return CORS(RequestLogger(log)(router))
}
