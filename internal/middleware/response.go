package middleware

import (
	"encoding/json"
	"net/http"

	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// WriteError writes err as the JSON error envelope. Server-side failures are
// logged at error level, client mistakes at debug.
func WriteError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	appErr := errors.From(err)
	requestID := GetRequestID(r.Context())

	entry := log.WithFields(map[string]interface{}{
		"request_id": requestID,
		"error_type": appErr.Type,
		"path":       r.URL.Path,
	}).WithError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(&errors.ErrorResponse{
		Success:   false,
		Error:     appErr.Message,
		ErrorType: appErr.Type,
		Details:   appErr.Details,
		RequestID: requestID,
	})
}
