/*
Command neuroroute runs the LLM request router's HTTP service.

# Overview

cmd/neuroroute is the executable entry point: it loads configuration from
environment variables (internal/settings), opens the database and Redis
connections, builds the provider set, the model registry, the prompt cache
and circuit breaker, assembles the router (llm/router.Router), and serves
POST /prompt, POST /chat, GET /models, GET /health, GET /healthz and the
config push channel at GET /ws/config on the main port. When metrics are
enabled, a second listener on the next port serves GET /metrics.

# Core types

  - Server      — owns every long-lived dependency and the two HTTP listeners
  - Middleware   — func(http.Handler) http.Handler
  - JWTAuth      — HS256 bearer-token middleware populating request context

# Commands

  - serve    start the HTTP and metrics servers
  - version  print build version information
  - health   probe a running instance's /health endpoint

# Middleware chain

Recovery, RequestID, RequestLogger, MetricsMiddleware, SecurityHeaders,
CORS, RateLimiter (per-IP token bucket), and JWTAuth when
ENABLE_JWT_AUTH=true.

See cmd/migrate for schema migration independent of this binary.
*/
package main
