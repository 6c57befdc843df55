package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"sitestats/internal/clientip"
	"sitestats/internal/config"
	"sitestats/internal/middleware"
	"sitestats/internal/service"
	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// Actions accepted by the action endpoint
const (
	ActionRecordVisit = "record_visit"
	ActionGetStats    = "get_stats"
)

// StatsHandler handles visit recording and stats reads
type StatsHandler struct {
	visitor  service.VisitorService
	settings config.SettingsProvider
	logger   *logger.Logger
	now      func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(visitor service.VisitorService, settings config.SettingsProvider, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		visitor:  visitor,
		settings: settings,
		logger:   log.Named("stats_handler"),
		now:      time.Now,
	}
}

// VisitRequest is the JSON body of POST /api/site-stats/visit
type VisitRequest struct {
	IsNewSession bool `json:"is_new_session"`
}

// HandleAction handles POST /api/site-stats, dispatching on the form field "action"
func (h *StatsHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid request", nil), h.logger)
		return
	}

	switch action := r.PostForm.Get("action"); action {
	case ActionRecordVisit:
		isNewSession, err := parseFlag(r.PostForm.Get("is_new_session"))
		if err != nil {
			middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid is_new_session value", map[string]interface{}{
				"is_new_session": r.PostForm.Get("is_new_session"),
			}), h.logger)
			return
		}
		h.recordVisit(w, r, isNewSession)

	case ActionGetStats:
		h.getStats(w, r)

	default:
		middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid action", map[string]interface{}{
			"action": action,
		}), h.logger)
	}
}

// RecordVisit handles POST /api/site-stats/visit
func (h *StatsHandler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req VisitRequest
	// An empty body means a plain page view
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid JSON body", nil), h.logger)
		return
	}

	h.recordVisit(w, r, req.IsNewSession)
}

// GetStats handles POST /api/site-stats/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.getStats(w, r)
}

// GetConfig handles GET /api/site-stats/config
func (h *StatsHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.settings.Current(r.Context()).Display(), h.logger)
}

func (h *StatsHandler) recordVisit(w http.ResponseWriter, r *http.Request, isNewSession bool) {
	clientID := clientip.FromRequest(r)

	result, err := h.visitor.RecordVisit(r.Context(), clientID, isNewSession, h.now())
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}

	writeSuccess(w, result, h.logger)
}

// getStats refreshes the caller's presence before reading, so an open page keeps counting as online
func (h *StatsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := clientip.FromRequest(r)
	now := h.now()

	if err := h.visitor.UpdateOnlinePresence(ctx, clientID, now); err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}

	stats, err := h.visitor.GetStats(ctx, clientID, now)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}

	writeSuccess(w, stats, h.logger)
}

// parseFlag treats an absent value as false
func parseFlag(value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}
