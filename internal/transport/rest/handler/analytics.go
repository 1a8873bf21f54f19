package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"burrito-analytics/internal/client"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/service"
)

// AnalyticsHandler handles snapshot endpoints
type AnalyticsHandler struct {
	snapshotSvc *service.SnapshotService
	log         *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(snapshotSvc *service.SnapshotService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		snapshotSvc: snapshotSvc,
		log:         log.With("handler", "analytics"),
	}
}

// GetSnapshot handles GET /v1/forms/{formId}/snapshot
//
// Query params: from/to (RFC3339) bound the window, forceRefresh bypasses the
// cache.
func (h *AnalyticsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formId"]

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	forceRefresh := r.URL.Query().Get("forceRefresh") == "true"

	h.respond(w, r, formID, window, forceRefresh)
}

// RefreshSnapshot handles POST /v1/forms/{formId}/snapshot/refresh
func (h *AnalyticsHandler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formId"]

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respond(w, r, formID, window, true)
}

func (h *AnalyticsHandler) respond(w http.ResponseWriter, r *http.Request, formID string, window *model.Window, forceRefresh bool) {
	snapshot, err := h.snapshotSvc.GetSnapshot(r.Context(), formID, window, forceRefresh)
	if err != nil {
		var upstream *client.UpstreamError
		switch {
		case errors.Is(err, service.ErrFormIDRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrFormNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &upstream):
			writeError(w, http.StatusBadGateway, upstream.Error())
		default:
			h.log.Error("snapshot request failed", "formId", formID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func parseWindow(r *http.Request) (*model.Window, error) {
	query := r.URL.Query()
	window := &model.Window{}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("invalid from timestamp")
		}
		window.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("invalid to timestamp")
		}
		window.To = &to
	}
	return model.NormalizeWindow(window), nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
