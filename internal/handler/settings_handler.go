package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"sitestats/internal/config"
	"sitestats/internal/domain"
	"sitestats/internal/middleware"
	"sitestats/internal/service"
	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// SettingsHandler serves the admin endpoints
type SettingsHandler struct {
	settings config.SettingsStore
	visitor  service.VisitorService
	logger   *logger.Logger
	now      func() time.Time
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings config.SettingsStore, visitor service.VisitorService, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		visitor:  visitor,
		logger:   log.Named("settings_handler"),
		now:      time.Now,
	}
}

// CleanupResponse reports the outcome of a manual presence cleanup
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// Get handles GET /api/site-stats/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.settings.Current(r.Context()), h.logger)
}

// Update handles PUT /api/site-stats/settings. Omitted fields keep their current value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings := h.settings.Current(ctx)

	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid JSON body", nil), h.logger)
		return
	}

	if err := settings.Validate(); err != nil {
		middleware.WriteError(w, r, errors.NewInvalidRequestError("Invalid settings", map[string]interface{}{
			"reason": err.Error(),
		}), h.logger)
		return
	}

	if err := h.settings.Update(ctx, settings); err != nil {
		middleware.WriteError(w, r, errors.NewStorageError("Failed to save settings", err), h.logger)
		return
	}

	h.logAdmin(r).WithFields(map[string]interface{}{
		"anti_spam_interval":  settings.AntiSpamInterval,
		"session_interval":    settings.SessionInterval,
		"online_user_timeout": settings.OnlineUserTimeout,
		"update_interval_ms":  settings.UpdateIntervalMs,
		"animation_speed":     settings.AnimationSpeed,
	}).Info("Stats settings updated")

	writeSuccess(w, h.current(r), h.logger)
}

// Cleanup handles POST /api/site-stats/cleanup
func (h *SettingsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.visitor.CleanupOnlinePresence(r.Context(), h.now())
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}

	h.logAdmin(r).WithField("removed", removed).Info("Manual presence cleanup")
	writeSuccess(w, CleanupResponse{Removed: removed}, h.logger)
}

func (h *SettingsHandler) current(r *http.Request) domain.Settings {
	return h.settings.Current(r.Context())
}

func (h *SettingsHandler) logAdmin(r *http.Request) *logger.Logger {
	log := h.logger.WithField("request_id", middleware.GetRequestID(r.Context()))
	if claims, ok := middleware.GetAdminClaims(r); ok {
		log = log.WithField("admin", claims.Subject)
	}
	return log
}
