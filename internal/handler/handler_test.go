package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitestats/internal/config"
	"sitestats/internal/domain"
	"sitestats/internal/middleware"
	"sitestats/internal/repository"
	"sitestats/internal/service"
	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

const testSecret = "handler-test-secret"

type apiResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
}

type testServer struct {
	router   http.Handler
	store    *repository.MemoryStore
	settings *config.StaticSettings
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	settings := config.NewStaticSettings(domain.DefaultSettings())
	visitor := service.NewVisitorService(
		repository.NewRepositories(store, logger.NewNop()),
		repository.NewMutexLocker(time.Second),
		settings,
		time.UTC,
		logger.NewNop(),
	)

	router := NewRouter(RouterConfig{
		Visitor:        visitor,
		Settings:       settings,
		HealthChecks:   map[string]HealthChecker{"storage": store},
		StorageDriver:  "memory",
		Version:        "test",
		JWTSecret:      testSecret,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Logger:         logger.NewNop(),
	})

	return &testServer{router: router, store: store, settings: settings}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func actionRequest(form url.Values, ajax bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/site-stats", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "203.0.113.10:52000"
	if ajax {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	return req
}

func adminRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.AdminClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleAction_RecordVisit(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, actionRequest(url.Values{"action": {"record_visit"}, "is_new_session": {"1"}}, true))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	var result domain.VisitResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, domain.VisitResult{IsNewVisitor: true, TodayVisitCount: 1}, result)

	rec, body = srv.do(t, actionRequest(url.Values{"action": {"record_visit"}, "is_new_session": {"true"}}, true))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, domain.VisitResult{IsNewVisitor: false, TodayVisitCount: 2}, result)
}

func TestHandleAction_GetStats(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, actionRequest(url.Values{"action": {"get_stats"}}, true))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats domain.StatsSnapshot
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, domain.StatsSnapshot{TodayVisitCount: 1, OnlineUsers: 1}, stats)
	assert.JSONEq(t, `{"total_visitors":0,"total_views":0,"today_visit_count":1,"online_users":1}`, string(body.Data))
}

func TestHandleAction_Rejections(t *testing.T) {
	tests := []struct {
		name          string
		form          url.Values
		ajax          bool
		expectedError string
	}{
		{"missing ajax header", url.Values{"action": {"get_stats"}}, false, "Invalid request"},
		{"unknown action", url.Values{"action": {"delete_everything"}}, true, "Invalid action"},
		{"missing action", url.Values{}, true, "Invalid action"},
		{"malformed session flag", url.Values{"action": {"record_visit"}, "is_new_session": {"maybe"}}, true, "Invalid is_new_session value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			rec, body := srv.do(t, actionRequest(tt.form, tt.ajax))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, body.Success)
			assert.Equal(t, tt.expectedError, body.Error)
			assert.Equal(t, string(errors.ErrorTypeInvalidRequest), body.ErrorType)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{"/api/site-stats", "/api/site-stats/visit"} {
		rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
		assert.Equal(t, "Method not allowed", body.Error)
		assert.Equal(t, string(errors.ErrorTypeMethodNotAllowed), body.ErrorType)
	}
}

func TestRouter_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrorTypeNotFound), body.ErrorType)
}

func TestRecordVisit_JSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/site-stats/visit", nil)
	rec, body := srv.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_new_visitor":true,"today_visit_count":1}`, string(body.Data))

	req = httptest.NewRequest(http.MethodPost, "/api/site-stats/visit", strings.NewReader(`{"is_new_session":true}`))
	rec, body = srv.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_new_visitor":false,"today_visit_count":2}`, string(body.Data))

	req = httptest.NewRequest(http.MethodPost, "/api/site-stats/visit", strings.NewReader(`{"is_new_session":`))
	rec, body = srv.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", body.Error)
}

func TestGetStats_REST(t *testing.T) {
	srv := newTestServer(t)

	_, _ = srv.do(t, httptest.NewRequest(http.MethodPost, "/api/site-stats/visit", nil))

	rec, body := srv.do(t, httptest.NewRequest(http.MethodPost, "/api/site-stats/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_visitors":1,"total_views":1,"today_visit_count":1,"online_users":1}`, string(body.Data))
}

func TestGetConfig(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/site-stats/config", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"update_interval_ms":3000,"animation_speed":"normal"}`, string(body.Data))
}

func TestSettings_RequiresAdmin(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, httptest.NewRequest(http.MethodGet, "/api/site-stats/settings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errors.ErrorTypeUnauthorized), body.ErrorType)
}

func TestSettings_GetAndUpdate(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, adminRequest(t, http.MethodGet, "/api/site-stats/settings", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	var settings domain.Settings
	require.NoError(t, json.Unmarshal(body.Data, &settings))
	assert.Equal(t, domain.DefaultSettings(), settings)

	rec, body = srv.do(t, adminRequest(t, http.MethodPut, "/api/site-stats/settings", `{"anti_spam_interval":60,"animation_speed":"fast"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &settings))
	assert.Equal(t, 60, settings.AntiSpamInterval)
	assert.Equal(t, "fast", settings.AnimationSpeed)
	assert.Equal(t, domain.DefaultSessionInterval, settings.SessionInterval)

	assert.Equal(t, 60, srv.settings.Current(context.Background()).AntiSpamInterval)

	// Display config follows the update immediately
	_, body = srv.do(t, httptest.NewRequest(http.MethodGet, "/api/site-stats/config", nil))
	assert.JSONEq(t, `{"update_interval_ms":3000,"animation_speed":"fast"}`, string(body.Data))
}

func TestSettings_UpdateRejectsInvalid(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, adminRequest(t, http.MethodPut, "/api/site-stats/settings", `{"update_interval_ms":10}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid settings", body.Error)

	rec, _ = srv.do(t, adminRequest(t, http.MethodPut, "/api/site-stats/settings", `not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, domain.DefaultSettings(), srv.settings.Current(context.Background()))
}

func TestCleanup(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	stale := domain.PresenceMap{"198.51.100.1": time.Now().Add(-10 * time.Minute).Unix()}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, srv.store.Write(ctx, repository.DocumentPresence, raw))

	rec, body := srv.do(t, adminRequest(t, http.MethodPost, "/api/site-stats/cleanup", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, string(body.Data))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "memory", health.StorageDriver)
	assert.Equal(t, map[string]string{"storage": "healthy"}, health.Checks)
}

type brokenChecker struct{}

func (brokenChecker) Health(ctx context.Context) error { return stderrors.New("connection refused") }

func TestHealth_Unhealthy(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{"redis": brokenChecker{}}, "redis", "test", logger.NewNop())

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
}

// failingVisitor returns the same error from every operation
type failingVisitor struct {
	err error
}

func (f failingVisitor) RecordVisit(ctx context.Context, clientID string, isNewSession bool, now time.Time) (*domain.VisitResult, error) {
	return nil, f.err
}

func (f failingVisitor) UpdateOnlinePresence(ctx context.Context, clientID string, now time.Time) error {
	return f.err
}

func (f failingVisitor) GetStats(ctx context.Context, clientID string, now time.Time) (*domain.StatsSnapshot, error) {
	return nil, f.err
}

func (f failingVisitor) CleanupOnlinePresence(ctx context.Context, now time.Time) (int, error) {
	return 0, f.err
}

func TestStatsHandler_StorageErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   errors.ErrorType
	}{
		{"storage", errors.NewStorageError("failed to save visitor ledger", stderrors.New("disk full")), http.StatusInternalServerError, errors.ErrorTypeStorage},
		{"busy", errors.NewBusyError("stats storage is busy, try again", nil), http.StatusServiceUnavailable, errors.ErrorTypeBusy},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError, errors.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatsHandler(failingVisitor{err: tt.err}, config.NewStaticSettings(domain.DefaultSettings()), logger.NewNop())

			for _, handle := range []http.HandlerFunc{h.RecordVisit, h.GetStats} {
				rec := httptest.NewRecorder()
				handle(rec, httptest.NewRequest(http.MethodPost, "/", nil))

				assert.Equal(t, tt.expectedStatus, rec.Code)

				var body apiResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.False(t, body.Success)
				assert.Equal(t, string(tt.expectedType), body.ErrorType)
				assert.NotContains(t, body.Error, "disk full")
			}
		})
	}
}
