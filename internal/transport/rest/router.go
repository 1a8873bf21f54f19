package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/service"
	"burrito-analytics/internal/transport/rest/handler"
)

// Container holds all dependencies for the router
type Container struct {
	SnapshotService *service.SnapshotService
	Log             *logger.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	analyticsHandler := handler.NewAnalyticsHandler(c.SnapshotService, c.Log)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/forms/{formId}/snapshot", analyticsHandler.GetSnapshot).Methods("GET")
	v1.HandleFunc("/forms/{formId}/snapshot/refresh", analyticsHandler.RefreshSnapshot).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
