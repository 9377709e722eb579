package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/neuroroute/internal/kv"
	llmpkg "github.com/piwi3910/neuroroute/llm"
)

// ErrCacheMiss is returned by Get when no entry exists for key.
var ErrCacheMiss = errors.New("cache miss")

// DefaultKeyPrefix is the default prefix under which cache entries live in
// the KV store, and the prefix a bare clear("") call sweeps.
const DefaultKeyPrefix = "neuroroute:cache:"

// Strategy is the cache's operating mode.
type Strategy string

const (
	StrategyNone       Strategy = "none"
	StrategyMinimal    Strategy = "minimal"
	StrategyDefault    Strategy = "default"
	StrategyAggressive Strategy = "aggressive"
)

// minimalMinPromptLen is the "skip prompts shorter than 50 characters on
// read" threshold for the minimal strategy.
const minimalMinPromptLen = 50

// Classification is the subset of the classifier's output the cache's TTL
// policy needs. It mirrors llm/classifier.Result's Type/Complexity fields
// without importing that package, to keep cache free of a dependency on C5.
type Classification struct {
	Type       string // e.g. "factual", "mathematical", "conversational", ...
	Complexity string // "simple", "medium", "complex", "very-complex"
}

// CacheEntry is the opaque value stored per key — a normalized response plus
// the bookkeeping needed to compute hit stats and expiry.
type CacheEntry struct {
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	HitCount  int             `json:"hit_count"`
}

// PromptCache implements C1's get/set/delete/clear contract: a KV-backed
// opaque-blob cache keyed by a deterministic fingerprint over the
// normalized request, with a classification-driven TTL policy. Any KV error
// is swallowed and logged — the cache must never be why a request fails.
type PromptCache struct {
	store    *kv.Store
	strategy Strategy
	baseTTL  time.Duration
	prefix   string
	logger   *zap.Logger
}

// Config configures a PromptCache.
type Config struct {
	Strategy Strategy
	BaseTTL  time.Duration // default 300s if zero
	Prefix   string        // default DefaultKeyPrefix if empty
}

// New constructs a PromptCache.
func New(store *kv.Store, cfg Config, logger *zap.Logger) *PromptCache {
	if cfg.BaseTTL <= 0 {
		cfg.BaseTTL = 300 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultKeyPrefix
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyDefault
	}
	return &PromptCache{
		store:    store,
		strategy: cfg.Strategy,
		baseTTL:  cfg.BaseTTL,
		prefix:   cfg.Prefix,
		logger:   logger.With(zap.String("component", "cache")),
	}
}

// GenerateKey computes the deterministic fingerprint for req: SHA-256 over
// the canonicalized request, truncated to the first 16 hex characters (8
// bytes of digest), per spec's cache-key contract.
func GenerateKey(req *llmpkg.ChatRequest) string {
	data, err := json.Marshal(canonicalize(req))
	if err != nil {
		data = []byte(req.Model)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalize reduces a ChatRequest to exactly the fields the cache key
// contract names, so fields like TraceID/UserID (which vary per call but
// don't change the expected response) never bust the cache.
func canonicalize(req *llmpkg.ChatRequest) map[string]any {
	model := req.Model
	if model == "" {
		model = "auto"
	}
	m := map[string]any{
		"messages":    req.Messages,
		"model":       model,
		"maxTokens":   req.MaxTokens,
		"temperature": req.Temperature,
	}
	if len(req.Tools) > 0 {
		m["toolsFingerprint"] = req.Tools
	}
	if req.ToolChoice != "" {
		m["toolChoice"] = req.ToolChoice
	}
	return m
}

// Get looks up key, skipping the lookup entirely for minimal-strategy
// requests whose prompt is shorter than the threshold, and no-op for the
// none strategy. promptLen is the length of the user-visible prompt text,
// used only to evaluate the minimal strategy's read-time skip.
func (c *PromptCache) Get(ctx context.Context, key string, promptLen int) (*CacheEntry, error) {
	if c.strategy == StrategyNone {
		return nil, ErrCacheMiss
	}
	if c.strategy == StrategyMinimal && promptLen < minimalMinPromptLen {
		return nil, ErrCacheMiss
	}

	raw, err := c.store.Get(ctx, c.fullKey(key))
	if kv.IsMiss(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	entry.HitCount++
	if updated, err := json.Marshal(entry); err == nil {
		ttl := time.Until(entry.ExpiresAt)
		if ttl > 0 {
			if err := c.store.Set(ctx, c.fullKey(key), updated, ttl); err != nil {
				c.logger.Warn("cache hit-count update failed", zap.Error(err))
			}
		}
	}

	return &entry, nil
}

// Set stores value under key with the TTL computed from the base TTL and
// classification. A nil classification uses the base TTL unmodified.
func (c *PromptCache) Set(ctx context.Context, key string, value json.RawMessage, class *Classification) error {
	if c.strategy == StrategyNone {
		return nil
	}

	ttl := c.resolveTTL(class)
	entry := CacheEntry{Response: value, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(ttl)}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return nil
	}
	if err := c.store.Set(ctx, c.fullKey(key), data, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Delete removes the entry at key.
func (c *PromptCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, c.fullKey(key)); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Clear deletes every entry under prefix (relative to the cache's own key
// prefix); an empty prefix clears the entire cache namespace.
func (c *PromptCache) Clear(ctx context.Context, prefix string) error {
	n, err := c.store.DeletePrefix(ctx, c.fullKey(prefix))
	if err != nil {
		c.logger.Warn("cache clear failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	c.logger.Info("cache cleared", zap.String("prefix", prefix), zap.Int64("count", n))
	return nil
}

func (c *PromptCache) fullKey(key string) string {
	return c.prefix + key
}

// resolveTTL applies the classification-driven multiplier. At most one
// multiplier applies; factual (or mathematical) combined with simple picks
// the larger of the two candidate multipliers, per spec.
func (c *PromptCache) resolveTTL(class *Classification) time.Duration {
	if class == nil {
		return c.baseTTL
	}

	var multiplier float64 = 1
	isFactual := class.Type == "factual" || class.Type == "mathematical"
	isConversational := class.Type == "conversational"
	isSimple := class.Complexity == "simple"
	isVeryComplex := class.Complexity == "very-complex"

	switch {
	case isFactual && isSimple:
		multiplier = max(2, 1.5)
	case isFactual:
		multiplier = 2
	case isConversational:
		multiplier = 0.5
	case isSimple:
		multiplier = 1.5
	case isVeryComplex:
		multiplier = 1 / 1.5
	}

	return time.Duration(float64(c.baseTTL) * multiplier)
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
