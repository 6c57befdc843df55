package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.ErrorResponse {
	t.Helper()
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		allowed        []string
		origin         string
		method         string
		expectedOrigin string
		expectedStatus int
	}{
		{"any origin when unconfigured", nil, "https://blog.example", http.MethodPost, "https://blog.example", http.StatusOK},
		{"listed origin", []string{"https://blog.example"}, "https://blog.example", http.MethodGet, "https://blog.example", http.StatusOK},
		{"unlisted origin", []string{"https://blog.example"}, "https://evil.example", http.MethodGet, "", http.StatusOK},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, "https://any.example", http.StatusOK},
		{"preflight", nil, "https://blog.example", http.MethodOptions, "https://blog.example", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed
			handler := CORS(cfg, logger.NewNop())(okHandler)

			req := httptest.NewRequest(tt.method, "/api/site-stats", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", seen)
}

func TestWriteError(t *testing.T) {
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, errors.NewBusyError("stats storage is busy", nil), logger.NewNop())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeError(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "stats storage is busy", body.Error)
	assert.Equal(t, errors.ErrorTypeBusy, body.ErrorType)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims AdminClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminAuth(t *testing.T) {
	const secret = "test-secret"
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name           string
		secret         string
		header         string
		expectedStatus int
	}{
		{
			name:           "admin role",
			secret:         secret,
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: future}}),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "admin in roles list",
			secret:         secret,
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, AdminClaims{Roles: []string{"viewer", "admin"}}),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing header",
			secret:         secret,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong scheme",
			secret:         secret,
			header:         "Basic abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "not an admin",
			secret:         secret,
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, AdminClaims{Role: "viewer"}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired",
			secret:         secret,
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong secret",
			secret:         secret,
			header:         "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, AdminClaims{Role: "admin"}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "other hmac algorithm",
			secret:         secret,
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS512, AdminClaims{Role: "admin"}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "admin disabled",
			secret:         "",
			header:         "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, AdminClaims{Role: "admin"}),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuth(tt.secret, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := GetAdminClaims(r)
				assert.True(t, ok)
				assert.True(t, claims.IsAdmin())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/site-stats/settings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusUnauthorized {
				assert.Equal(t, errors.ErrorTypeUnauthorized, decodeError(t, rec).ErrorType)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2, logger.NewNop())
	handler := limiter.Middleware(okHandler)

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/site-stats", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("203.0.113.1:1001").Code)

	rec := send("203.0.113.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, errors.ErrorTypeRateLimit, decodeError(t, rec).ErrorType)

	// Budgets are per client
	assert.Equal(t, http.StatusOK, send("203.0.113.2:1000").Code)
}

func TestRateLimiter_ConcurrentFirstRequests(t *testing.T) {
	limiter := NewRateLimiter(0.001, 5, logger.NewNop())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Allow("203.0.113.40") {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := NewRateLimiter(0, 1, logger.NewNop()).Middleware(okHandler)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRequireAjax(t *testing.T) {
	handler := RequireAjax(logger.NewNop())(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/site-stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request", decodeError(t, rec).Error)

	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
