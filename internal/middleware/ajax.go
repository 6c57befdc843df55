package middleware

import (
	"net/http"

	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// RequireAjax rejects requests that do not carry X-Requested-With: XMLHttpRequest
func RequireAjax(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
				WriteError(w, r, errors.NewInvalidRequestError("Invalid request", nil), log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
