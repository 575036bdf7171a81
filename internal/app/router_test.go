package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedicated/internal/domain"
	"dedicated/internal/handler"
	"dedicated/internal/middleware"
)

const testSecret = "router-secret"

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func newTestRouter(db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	return NewRouter(RouterDeps{
		BookingHandler:  handler.NewBookingHandler(nil, nil),
		WalletHandler:   handler.NewWalletHandler(nil),
		RealtimeHandler: handler.NewRealtimeHandler(nil, log),
		DB:              db,
		Log:             log,
		JWTSecret:       testSecret,
		RequestTimeout:  time.Second,
	})
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(stubPinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newTestRouter(stubPinger{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unavailable"`)
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(stubPinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/bookings", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_EnforcesRoles(t *testing.T) {
	r := newTestRouter(stubPinger{})

	userToken, err := middleware.IssueToken(testSecret, "user-1", domain.UserRoleUser, time.Hour)
	require.NoError(t, err)
	driverToken, err := middleware.IssueToken(testSecret, "driver-1", domain.UserRoleDriver, time.Hour)
	require.NoError(t, err)
	adminToken, err := middleware.IssueToken(testSecret, "admin-1", domain.UserRoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		method, path, token string
	}{
		{http.MethodPost, "/v1/bookings/b1/assign-driver", userToken},
		{http.MethodPost, "/v1/bookings/b1/start", userToken},
		{http.MethodPost, "/v1/bookings", driverToken},
		{http.MethodPatch, "/v1/bookings/b1/status", driverToken},
		{http.MethodDelete, "/v1/bookings/b1", driverToken},
		{http.MethodPost, "/v1/admin/commission", driverToken},
		{http.MethodGet, "/v1/admin/bookings/nearby?lat=1&lng=1&radiusKm=2", userToken},
		{http.MethodGet, "/v1/bookings/available", userToken},
		{http.MethodGet, "/v1/ws", adminToken},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}
