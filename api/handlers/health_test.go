package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/piwi3910/neuroroute/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_HandleHealth_AllUp(t *testing.T) {
	h := NewHealthHandler(&mockPinger{}, &mockPinger{}, "1.0.0", true, false, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.HandleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, api.DependencyOK, resp.Services.Database)
	assert.Equal(t, api.DependencyOK, resp.Services.Redis)
	assert.True(t, resp.Config.CacheEnabled)
	assert.False(t, resp.Config.SwaggerEnabled)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHealthHandler_HandleHealth_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(&mockPinger{err: errors.New("conn refused")}, nil, "1.0.0", true, true, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.HandleHealth(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, api.DependencyError, resp.Services.Database)
	assert.Equal(t, api.DependencyDisabled, resp.Services.Redis)
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	h := NewHealthHandler(nil, nil, "1.0.0", false, false, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.HandleHealthz(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHealthHandler_ConcurrentRequests(t *testing.T) {
	h := NewHealthHandler(&mockPinger{}, &mockPinger{}, "1.0.0", true, false, zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/health", nil)
			h.HandleHealth(w, r)
			assert.Equal(t, http.StatusOK, w.Code)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
