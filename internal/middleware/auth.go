package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// AdminClaims represents JWT claims for admin users
type AdminClaims struct {
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims grant the admin role
func (c *AdminClaims) IsAdmin() bool {
	if c.Role == "admin" {
		return true
	}
	for _, role := range c.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}

// AdminAuth requires an HS256 bearer token carrying the admin role.
// An empty secret disables the admin surface entirely.
func AdminAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	log = log.Named("admin_auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				WriteError(w, r, errors.NewUnauthorizedError("Admin access is not configured"), log)
				return
			}

			claims, err := parseAdminToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				log.WithError(err).Warn("Admin authentication failed")
				WriteError(w, r, errors.NewUnauthorizedError("Authentication failed"), log)
				return
			}

			if !claims.IsAdmin() {
				log.WithField("subject", claims.Subject).Warn("Admin authorization failed")
				WriteError(w, r, errors.NewUnauthorizedError("Insufficient privileges"), log)
				return
			}

			ctx := context.WithValue(r.Context(), AdminClaimsContextKey, claims)
			log.WithField("subject", claims.Subject).Debug("Admin authorized")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseAdminToken validates a "Bearer <token>" header value
func parseAdminToken(authHeader, secret string) (*AdminClaims, error) {
	if authHeader == "" {
		return nil, fmt.Errorf("no authorization header")
	}

	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

// GetAdminClaims retrieves admin claims from request context
func GetAdminClaims(r *http.Request) (*AdminClaims, bool) {
	claims, ok := r.Context().Value(AdminClaimsContextKey).(*AdminClaims)
	return claims, ok
}
