// Package metrics provides internal metrics collection for the router.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector collects request, routing, cache, circuit-breaker, and database
// metrics for Prometheus scraping.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	fallbacksTotal      *prometheus.CounterVec
	fallbackFailures    *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates and registers all router metrics under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "llm_requests_total", Help: "Total number of LLM provider requests"},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "llm_request_duration_seconds", Help: "LLM request duration in seconds", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "llm_tokens_used_total", Help: "Total number of tokens used"},
		[]string{"provider", "model", "type"},
	)
	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "llm_cost_total", Help: "Total LLM cost in USD"},
		[]string{"provider", "model"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_hits_total", Help: "Total number of cache hits"},
		[]string{"cache_type"},
	)
	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_misses_total", Help: "Total number of cache misses"},
		[]string{"cache_type"},
	)

	c.circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed,1=half-open,2=open)"},
		[]string{"provider", "model", "mode"},
	)
	c.fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fallbacks_total", Help: "Total number of primary->fallback transitions"},
		[]string{"primary", "fallback"},
	)
	c.fallbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fallback_failures_total", Help: "Total number of failed primary->fallback transitions"},
		[]string{"primary", "fallback"},
	)
	c.errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "errors_total", Help: "Total number of errors by code"},
		[]string{"code"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "db_connections_open", Help: "Number of open database connections"},
		[]string{"database"},
	)
	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "db_connections_idle", Help: "Number of idle database connections"},
		[]string{"database"},
	)
	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "db_query_duration_seconds", Help: "Database query duration in seconds", Buckets: prometheus.DefBuckets},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records one completed provider adapter call.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// RecordCacheHit records a cache hit for cacheType ("local" or "redis").
func (c *Collector) RecordCacheHit(cacheType string) { c.cacheHits.WithLabelValues(cacheType).Inc() }

// RecordCacheMiss records a cache miss for cacheType.
func (c *Collector) RecordCacheMiss(cacheType string) { c.cacheMisses.WithLabelValues(cacheType).Inc() }

// SetCircuitBreakerState publishes the current state as a gauge (0/1/2).
func (c *Collector) SetCircuitBreakerState(provider, model, mode string, state int) {
	c.circuitBreakerState.WithLabelValues(provider, model, mode).Set(float64(state))
}

// RecordFallback records a primary->fallback transition attempt.
func (c *Collector) RecordFallback(primary, fallback string) {
	c.fallbacksTotal.WithLabelValues(primary, fallback).Inc()
}

// RecordFallbackFailure records a failed primary->fallback transition.
func (c *Collector) RecordFallbackFailure(primary, fallback string) {
	c.fallbackFailures.WithLabelValues(primary, fallback).Inc()
}

// RecordError increments the per-code error counter.
func (c *Collector) RecordError(code string) {
	c.errorsTotal.WithLabelValues(code).Inc()
}

// RecordDBConnections reports current pool occupancy.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records one query's duration.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
