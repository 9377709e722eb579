package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/piwi3910/neuroroute/api"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// Pinger is the minimal liveness probe a dependency exposes to HealthHandler.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health: liveness plus the database/redis
// dependency status and feature-flag block spec'd for operators.
type HealthHandler struct {
	database       Pinger // nil when the caller supplies none
	redis          Pinger // nil when the caller supplies none
	logger         *zap.Logger
	version        string
	startedAt      time.Time
	cacheEnabled   bool
	swaggerEnabled bool
}

// NewHealthHandler creates the health handler. database/redis may be nil
// when the corresponding dependency isn't configured; their status then
// reports as "disabled" rather than being probed.
func NewHealthHandler(database, redis Pinger, version string, cacheEnabled, swaggerEnabled bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		database:       database,
		redis:          redis,
		logger:         logger,
		version:        version,
		startedAt:      time.Now(),
		cacheEnabled:   cacheEnabled,
		swaggerEnabled: swaggerEnabled,
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth serves GET /health.
// @Summary Health check
// @Description Liveness, dependency status and feature flags
// @Tags health
// @Produce json
// @Success 200 {object} api.HealthResponse "service ok or degraded"
// @Failure 503 {object} api.HealthResponse "service error"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := h.probe(ctx, h.database)
	redisStatus := h.probe(ctx, h.redis)

	resp := api.HealthResponse{
		Status:    overallStatus(dbStatus, redisStatus),
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Seconds(),
		Services: api.HealthServices{
			Database: dbStatus,
			Redis:    redisStatus,
		},
		Config: api.HealthConfig{
			CacheEnabled:   h.cacheEnabled,
			SwaggerEnabled: h.swaggerEnabled,
		},
	}

	status := http.StatusOK
	if resp.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

// HandleHealthz serves GET /healthz, the Kubernetes-style liveness probe:
// it reports the process is running without probing dependencies.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Seconds(),
	})
}

func (h *HealthHandler) probe(ctx context.Context, p Pinger) api.DependencyStatus {
	if p == nil {
		return api.DependencyDisabled
	}
	if err := p.Ping(ctx); err != nil {
		if h.logger != nil {
			h.logger.Warn("dependency health check failed", zap.Error(err))
		}
		return api.DependencyError
	}
	return api.DependencyOK
}

func overallStatus(services ...api.DependencyStatus) string {
	degraded := false
	for _, s := range services {
		switch s {
		case api.DependencyError:
			return "error"
		case api.DependencyUnknown:
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "ok"
}
