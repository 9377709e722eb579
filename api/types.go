// Package api defines the wire types for neuroroute's HTTP surface: the
// request/response bodies for POST /prompt, POST /chat, GET /models and
// GET /health, plus the shared success/error envelopes every handler writes
// through.
package api

import (
	"encoding/json"
	"time"
)

// =============================================================================
// Prompt / Chat request types
// =============================================================================

// Options carries the per-request generation and routing tuning knobs
// accepted by both POST /prompt and POST /chat.
type Options struct {
	MaxTokens        int      `json:"maxTokens,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"topP,omitempty"`
	FrequencyPenalty *float32 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float32 `json:"presencePenalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
	CostOptimize     *bool    `json:"costOptimize,omitempty"`
	QualityOptimize  *bool    `json:"qualityOptimize,omitempty"`
	LatencyOptimize  *bool    `json:"latencyOptimize,omitempty"`
	FallbackEnabled  *bool    `json:"fallbackEnabled,omitempty"`
	ChainEnabled     *bool    `json:"chainEnabled,omitempty"`
	CacheStrategy    string   `json:"cacheStrategy,omitempty" example:"default"`
	CacheTTL         int      `json:"cacheTTL,omitempty"`
}

// PromptRequest is the POST /prompt request body.
type PromptRequest struct {
	Prompt  string   `json:"prompt" example:"Summarize the attached report"`
	Model   string   `json:"model,omitempty" example:"gpt-4o"`
	Options *Options `json:"options,omitempty"`
}

// Message is a single chat turn accepted by POST /chat and echoed back in
// CompletionResponse.Messages.
type Message struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content"`
}

// ToolSchema is a tool definition a POST /chat caller may offer the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	Messages   []Message    `json:"messages"`
	Model      string       `json:"model,omitempty"`
	Tools      []ToolSchema `json:"tools,omitempty"`
	ToolChoice string       `json:"toolChoice,omitempty" example:"auto"`
	Options    *Options     `json:"options,omitempty"`
}

// =============================================================================
// Completion response (shared by POST /prompt and POST /chat)
// =============================================================================

// TokenUsage is the response's token accounting.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Classification surfaces the router's intent classification for the
// request, when classification ran.
type Classification struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Features   []string `json:"features,omitempty"`
	Domain     string   `json:"domain,omitempty"`
}

// CompletionResponse is the response body for both POST /prompt and
// POST /chat. Messages is only populated for /chat.
type CompletionResponse struct {
	Response       string          `json:"response"`
	Messages       []Message       `json:"messages,omitempty"`
	ModelUsed      string          `json:"model_used"`
	Tokens         TokenUsage      `json:"tokens"`
	Cached         bool            `json:"cached,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	Cost           *float64        `json:"cost,omitempty"`
	ModelChain     []string        `json:"model_chain,omitempty"`
}

// =============================================================================
// GET /models
// =============================================================================

// ModelInfo is the GET /models projection of one catalog entry.
type ModelInfo struct {
	ID           string   `json:"id" example:"gpt-4o"`
	Provider     string   `json:"provider" example:"openai"`
	Capabilities []string `json:"capabilities,omitempty"`
	Cost         float64  `json:"cost"`
	Quality      float64  `json:"quality"`
	MaxTokens    int      `json:"maxTokens"`
	Available    bool     `json:"available"`
}

// ModelListResponse is the GET /models response body.
type ModelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// =============================================================================
// GET /health
// =============================================================================

// DependencyStatus is one dependency's reported health in HealthResponse.
type DependencyStatus string

const (
	DependencyOK       DependencyStatus = "ok"
	DependencyError    DependencyStatus = "error"
	DependencyUnknown  DependencyStatus = "unknown"
	DependencyDisabled DependencyStatus = "disabled"
)

// HealthServices is the services block of HealthResponse.
type HealthServices struct {
	Database DependencyStatus `json:"database"`
	Redis    DependencyStatus `json:"redis"`
}

// HealthConfig is the config block of HealthResponse: the feature flags a
// caller needs to interpret the rest of the response.
type HealthConfig struct {
	CacheEnabled   bool `json:"cache_enabled"`
	SwaggerEnabled bool `json:"swagger_enabled"`
}

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status    string         `json:"status" example:"ok"` // ok | degraded | error
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Uptime    float64        `json:"uptime"` // seconds
	Services  HealthServices `json:"services"`
	Config    HealthConfig   `json:"config"`
}

// =============================================================================
// Envelopes
// =============================================================================

// Response is the generic success envelope used by endpoints that don't
// have a dedicated response struct (e.g. admin/management routes).
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"requestId,omitempty"`
}

// ErrorInfo is the nested error carried by Response.Error.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
}

// ErrorResponse is the flat error body POST /prompt, POST /chat and
// GET /models return directly on failure.
type ErrorResponse struct {
	Error         string    `json:"error"`
	Code          string    `json:"code"`
	StatusCode    int       `json:"statusCode"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"requestId,omitempty"`
}
