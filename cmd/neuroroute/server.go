package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/piwi3910/neuroroute/api/handlers"
	"github.com/piwi3910/neuroroute/internal/database"
	"github.com/piwi3910/neuroroute/internal/kv"
	"github.com/piwi3910/neuroroute/internal/metrics"
	"github.com/piwi3910/neuroroute/internal/server"
	"github.com/piwi3910/neuroroute/internal/settings"
	"github.com/piwi3910/neuroroute/llm"
	"github.com/piwi3910/neuroroute/llm/cache"
	"github.com/piwi3910/neuroroute/llm/circuitbreaker"
	"github.com/piwi3910/neuroroute/llm/config"
	"github.com/piwi3910/neuroroute/llm/providers"
	"github.com/piwi3910/neuroroute/llm/providers/anthropic"
	"github.com/piwi3910/neuroroute/llm/providers/openai"
	"github.com/piwi3910/neuroroute/llm/providers/openaicompat"
	"github.com/piwi3910/neuroroute/llm/router"
)

// Server owns every long-lived dependency of a running neuroroute instance:
// the database/cache connections, the router pipeline, the HTTP and metrics
// listeners, and the config push channel.
type Server struct {
	cfg    *settings.Settings
	logger *zap.Logger

	db          *gorm.DB
	kvStore     *kv.Store
	registry    *config.Registry
	router      *router.Router
	pushChannel *server.PushChannel
	collector   *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager

	routerCtx    context.Context
	routerCancel context.CancelFunc
	wg           sync.WaitGroup
}

// NewServer wires settings into a ready-to-Start Server: opens the database
// and Redis connections, builds the model registry (seeding its default
// catalog), the prompt cache, circuit breaker, provider set and router, and
// assembles the HTTP handlers and mux.
func NewServer(cfg *settings.Settings, logger *zap.Logger) (*Server, error) {
	db, err := openDatabase(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	kvStore, err := openKV(cfg.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}

	cipher := config.NewCipher(cfg.JWTSecret, logger)
	registry := config.NewRegistry(db, cipher, map[string]string{
		"cache.strategy": cfg.CacheStrategy,
	}, logger)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := config.SeedDefaultCatalog(seedCtx, registry, logger); err != nil {
		seedCancel()
		return nil, fmt.Errorf("seed model catalog: %w", err)
	}
	seedCancel()

	promptCache := cache.New(kvStore, cache.Config{
		Strategy: cache.Strategy(cfg.CacheStrategy),
		BaseTTL:  time.Duration(cfg.RedisCacheTTL) * time.Second,
	}, logger)

	breaker := circuitbreaker.New(kvStore, logger)

	providerSet := buildProviders(cfg, logger)

	routerCtx, routerCancel := context.WithCancel(context.Background())
	neuroRouter := router.New(registry, promptCache, breaker, providerSet, logger)

	collector := metrics.NewCollector("neuroroute", logger)
	pushChannel := server.NewPushChannel(logger)
	registry.AddListener("*", func(event config.ConfigChangeEvent) {
		pushChannel.Broadcast(event)
	})

	return &Server{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		kvStore:      kvStore,
		registry:     registry,
		router:       neuroRouter,
		pushChannel:  pushChannel,
		collector:    collector,
		routerCtx:    routerCtx,
		routerCancel: routerCancel,
	}, nil
}

func openKV(redisURL string, logger *zap.Logger) (*kv.Store, error) {
	cfg := kv.DefaultConfig()
	if redisURL == "" {
		return kv.New(cfg, logger)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cfg.Addr = opts.Addr
	cfg.Password = opts.Password
	cfg.DB = opts.DB
	return kv.New(cfg, logger)
}

// buildProviders constructs a provider from every backend with credentials
// present in cfg. Gemini has no corresponding settings field and stays
// unconfigured; an operator wanting it would need a settings addition.
func buildProviders(cfg *settings.Settings, logger *zap.Logger) map[string]llm.Provider {
	out := make(map[string]llm.Provider)

	if cfg.OpenAIAPIKey != "" {
		out["openai"] = openai.NewOpenAIProvider(providers.OpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.OpenAIAPIKey,
				Timeout: time.Duration(cfg.APITimeout) * time.Millisecond,
			},
		}, logger)
	}

	if cfg.AnthropicAPIKey != "" {
		out["anthropic"] = anthropic.NewClaudeProvider(providers.ClaudeConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.AnthropicAPIKey,
				Timeout: time.Duration(cfg.APITimeout) * time.Millisecond,
			},
		}, logger)
	}

	if cfg.LMStudioURL != "" {
		out["lmstudio"] = openaicompat.New(openaicompat.Config{
			ProviderName: "lmstudio",
			BaseURL:      cfg.LMStudioURL,
			Timeout:      time.Duration(cfg.LMStudioTimeout) * time.Millisecond,
		}, logger)
	}

	return out
}

// Start launches the router's background workers and both HTTP listeners.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.router.Run(s.routerCtx); err != nil {
			s.logger.Error("router background workers stopped", zap.Error(err))
		}
	}()

	if err := s.startHTTPServer(); err != nil {
		return err
	}
	return s.startMetricsServer()
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	promptHandler := handlers.NewPromptHandler(s.router, s.logger)
	chatHandler := handlers.NewChatHandler(s.router, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.registry, s.logger)

	var dbPinger handlers.Pinger
	if pm, err := database.NewPoolManager(s.db, database.DefaultPoolConfig(), s.logger); err == nil {
		dbPinger = pm
	}
	healthHandler := handlers.NewHealthHandler(dbPinger, s.kvStore, Version, s.cfg.EnableCache, s.cfg.EnableSwagger, s.logger)

	mux.HandleFunc("POST /prompt", promptHandler.HandlePrompt)
	mux.HandleFunc("POST /chat", chatHandler.HandleCompletion)
	mux.HandleFunc("GET /models", modelsHandler.HandleList)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealthz)
	mux.Handle("GET /ws/config", s.pushChannel)

	skipAuth := []string{"/health", "/healthz"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		CORS(nil),
		RateLimiter(s.routerCtx, float64(s.cfg.APIRateLimit)/60.0, s.cfg.APIRateLimit, s.logger),
	}
	if s.cfg.EnableJWTAuth {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWTSecret, skipAuth, s.logger))
	}

	handler := Chain(mux, middlewares...)

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpManager = server.NewManager(handler, serverCfg, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	if !s.cfg.EnableMetrics {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsCfg := server.DefaultConfig()
	metricsCfg.Addr = fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port+1)
	s.metricsManager = server.NewManager(mux, metricsCfg, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks until the HTTP manager receives an OS shutdown
// signal, then tears down the router workers and the metrics listener too.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.routerCancel()

	if s.metricsManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}

	s.wg.Wait()

	if err := s.kvStore.Close(); err != nil {
		s.logger.Warn("redis close error", zap.Error(err))
	}
}
