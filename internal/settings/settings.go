// Package settings loads the router's process configuration from the
// enumerated environment variables (see SPEC_FULL.md "Configuration").
// Priority: built-in default -> environment variable. There is no config
// file layer; the enumerated env vars are the entire surface.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings is the fully resolved process configuration.
type Settings struct {
	Port    int
	Host    string
	NodeEnv string // development | test | production

	DatabaseURL    string
	RedisURL       string
	RedisCacheTTL  int // seconds

	OpenAIAPIKey    string
	AnthropicAPIKey string
	LMStudioURL     string
	LMStudioTimeout int // ms

	JWTSecret string

	LogLevel      string
	APIRateLimit  int
	APITimeout    int // ms

	EnableCache         bool
	EnableSwagger       bool
	EnableJWTAuth       bool
	EnableDynamicConfig bool
	EnableMetrics       bool
	EnableTracing       bool

	CostOptimize      bool
	QualityOptimize   bool
	LatencyOptimize   bool
	FallbackEnabled   bool
	ChainEnabled      bool
	CacheStrategy     string // default | aggressive | minimal | none
	AutoDegradedMode  bool
	FallbackLevels    int
	RequestTimeoutMs  int
	MonitorFallbacks  bool

	// Ambient, not in the enumerated list but needed to drive internal/telemetry.
	OTLPEndpoint string
	ServiceName  string
	SampleRate   float64
}

// Load resolves Settings from the process environment, applying defaults
// for anything unset.
func Load() (*Settings, error) {
	s := &Settings{
		Port:                envInt("PORT", 8080),
		Host:                envStr("HOST", "0.0.0.0"),
		NodeEnv:             envStr("NODE_ENV", "development"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		RedisURL:            envStr("REDIS_URL", ""),
		RedisCacheTTL:       envInt("REDIS_CACHE_TTL", 300),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		AnthropicAPIKey:     envStr("ANTHROPIC_API_KEY", ""),
		LMStudioURL:         envStr("LMSTUDIO_URL", ""),
		LMStudioTimeout:     envInt("LMSTUDIO_TIMEOUT", 60000),
		JWTSecret:           envStr("JWT_SECRET", ""),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		APIRateLimit:        envInt("API_RATE_LIMIT", 100),
		APITimeout:          envInt("API_TIMEOUT", 30000),
		EnableCache:         envBool("ENABLE_CACHE", true),
		EnableSwagger:       envBool("ENABLE_SWAGGER", false),
		EnableJWTAuth:       envBool("ENABLE_JWT_AUTH", false),
		EnableDynamicConfig: envBool("ENABLE_DYNAMIC_CONFIG", true),
		EnableMetrics:       envBool("ENABLE_METRICS", true),
		EnableTracing:       envBool("ENABLE_TRACING", false),
		CostOptimize:        envBool("COST_OPTIMIZE", false),
		QualityOptimize:     envBool("QUALITY_OPTIMIZE", true),
		LatencyOptimize:     envBool("LATENCY_OPTIMIZE", false),
		FallbackEnabled:     envBool("FALLBACK_ENABLED", true),
		ChainEnabled:        envBool("CHAIN_ENABLED", false),
		CacheStrategy:       envStr("CACHE_STRATEGY", "default"),
		AutoDegradedMode:    envBool("AUTO_DEGRADED_MODE", false),
		FallbackLevels:      envInt("FALLBACK_LEVELS", 2),
		RequestTimeoutMs:    envInt("REQUEST_TIMEOUT_MS", 30000),
		MonitorFallbacks:    envBool("MONITOR_FALLBACKS", true),
		OTLPEndpoint:        envStr("OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:         envStr("SERVICE_NAME", "neuroroute"),
		SampleRate:          envFloat("OTEL_SAMPLE_RATE", 0.1),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks structurally-required invariants.
func (s *Settings) Validate() error {
	var errs []string
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, "PORT must be in 1..65535")
	}
	switch s.NodeEnv {
	case "development", "test", "production":
	default:
		errs = append(errs, "NODE_ENV must be one of development, test, production")
	}
	switch s.CacheStrategy {
	case "default", "aggressive", "minimal", "none":
	default:
		errs = append(errs, "CACHE_STRATEGY must be one of default, aggressive, minimal, none")
	}
	if s.FallbackLevels < 0 {
		errs = append(errs, "FALLBACK_LEVELS must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
