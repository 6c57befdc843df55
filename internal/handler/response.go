package handler

import (
	"encoding/json"
	"net/http"

	"sitestats/internal/middleware"
	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// SuccessResponse is the envelope for every successful API response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// writeSuccess writes data inside the success envelope with status 200
func writeSuccess(w http.ResponseWriter, data interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data}); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// NotFound returns a JSON 404 handler for the router
func NotFound(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, errors.NewNotFoundError("Not found"), log)
	}
}

// MethodNotAllowed returns a JSON 405 handler for the router
func MethodNotAllowed(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, errors.NewMethodNotAllowedError(r.Method), log)
	}
}
