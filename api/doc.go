// Package api defines the HTTP wire contract for neuroroute.
//
// # API Overview
//
// neuroroute exposes:
//   - POST /prompt  — single-prompt completion through the router
//   - POST /chat    — multi-turn chat completion through the router
//   - GET  /models   — the current model catalog
//   - GET  /health   — liveness/readiness with dependency status
//
// # Authentication
//
// When ENABLE_JWT_AUTH is set, routes other than /health and /healthz
// require a bearer token:
//
//	Authorization: Bearer <jwt>
//
// # Base URL
//
// The default base URL is:
//
//	http://localhost:8080
package api
