package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/piwi3910/neuroroute/internal/database"
	"github.com/piwi3910/neuroroute/internal/kv"
	"github.com/piwi3910/neuroroute/llm"
	"github.com/piwi3910/neuroroute/llm/cache"
	"github.com/piwi3910/neuroroute/llm/circuitbreaker"
	"github.com/piwi3910/neuroroute/llm/config"
	"github.com/piwi3910/neuroroute/llm/router"
	"github.com/piwi3910/neuroroute/types"
)

// fakeProvider is a scriptable llm.Provider stand-in for handler tests
// that need a real *router.Router rather than a mock interface.
type fakeProvider struct {
	name      string
	replyText string
	failWith  *llm.Error
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &llm.ChatResponse{
		Model:   req.Model,
		Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(f.replyText)}},
		Usage:   llm.ChatUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) SupportsNativeFunctionCalling() bool { return false }
func (f *fakeProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}

// newTestRouter builds a fully wired in-memory Router (sqlite registry,
// miniredis-backed cache/breaker) serving a single "mock-model" backed by
// the given fake provider, for exercising the HTTP handlers end to end.
func newTestRouter(t *testing.T, provider *fakeProvider) *router.Router {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Config{}, &database.ModelConfig{}, &database.AuditLog{}))
	cipher := config.NewCipher("test-secret", zap.NewNop())
	registry := config.NewRegistry(db, cipher, nil, zap.NewNop())

	require.NoError(t, registry.SetModelConfig(context.Background(), &config.ModelInfo{
		ID:        "mock-model",
		Provider:  provider.name,
		Cost:      0.01,
		Quality:   0.8,
		MaxTokens: 4096,
		Available: true,
	}))
	require.NoError(t, registry.RefreshModels(context.Background()))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := kv.NewFromClient(client, zap.NewNop())
	promptCache := cache.New(store, cache.Config{Strategy: cache.StrategyDefault, BaseTTL: time.Minute}, zap.NewNop())
	breaker := circuitbreaker.New(store, zap.NewNop())

	providers := map[string]llm.Provider{provider.name: provider}
	return router.New(registry, promptCache, breaker, providers, zap.NewNop())
}
