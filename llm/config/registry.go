package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/piwi3910/neuroroute/internal/database"
)

// entryTTL is the per-entry TTL for the in-memory config cache, per spec's
// "per-process in-memory map with per-entry TTL (default 60s)".
const entryTTL = 60 * time.Second

// ModelInfo is the registry's hydrated view of a model catalog entry — the
// shape the router's selectModel/fallback logic operates on.
type ModelInfo struct {
	ID           string   `json:"id"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities"`
	Cost         float64  `json:"cost"`
	Quality      float64  `json:"quality"`
	MaxTokens    int      `json:"maxTokens"`
	Latency      float64  `json:"latency"`
	Priority     int      `json:"priority"`
	Available    bool     `json:"available"`
}

// modelMeta is the shape stored in ModelConfig.Config (jsonb) beyond the
// columns the relational schema names directly.
type modelMeta struct {
	Cost      float64 `json:"cost"`
	Quality   float64 `json:"quality"`
	MaxTokens int     `json:"maxTokens"`
}

// ConfigChangeEvent is emitted to listeners on every mutation.
type ConfigChangeEvent struct {
	Key       string    `json:"key"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives ConfigChangeEvents. Panics inside a listener are
// recovered and logged — one bad subscriber must not corrupt a mutation or
// take down the caller.
type Listener func(ConfigChangeEvent)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Registry implements C2: a runtime-mutable model catalog and key/value
// config store, backed by a relational store, fronted by a per-entry-TTL
// in-memory cache, with encrypted credential storage and change
// notification.
type Registry struct {
	db     *gorm.DB
	cipher *Cipher
	logger *zap.Logger

	mu       sync.RWMutex
	cache    map[string]cacheEntry
	defaults map[string]string

	modelsMu sync.RWMutex
	models   map[string]*ModelInfo
	latency  map[string]*LatencyWindow

	listenersMu sync.RWMutex
	listeners   map[string][]Listener // key, or "*" for all keys
}

// NewRegistry constructs a Registry. defaults holds the process-start
// key/value fallbacks GetString consults on a store miss; the default model
// catalog is not part of it and is seeded separately by SeedDefaultCatalog.
func NewRegistry(db *gorm.DB, cipher *Cipher, defaults map[string]string, logger *zap.Logger) *Registry {
	return &Registry{
		db:        db,
		cipher:    cipher,
		logger:    logger.With(zap.String("component", "registry")),
		cache:     make(map[string]cacheEntry),
		defaults:  defaults,
		models:    make(map[string]*ModelInfo),
		latency:   make(map[string]*LatencyWindow),
		listeners: make(map[string][]Listener),
	}
}

// GetString implements get<K>(key, default). It consults the in-memory
// cache first, then the persistent store, then process-start defaults,
// finally the caller's default.
func (r *Registry) GetString(ctx context.Context, key, def string) string {
	if v, ok := r.cacheGet(key); ok {
		return v
	}

	var row database.Config
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == nil {
		r.cacheSet(key, row.Value)
		return row.Value
	}
	if err != gorm.ErrRecordNotFound {
		r.logger.Warn("registry read failed, falling back to defaults", zap.String("key", key), zap.Error(err))
	}

	if v, ok := r.defaults[key]; ok {
		return v
	}
	return def
}

// SetString implements set<K>(key, value): write-through to the store,
// refresh the cache entry, then notify listeners synchronously.
func (r *Registry) SetString(ctx context.Context, key, value string) error {
	old := r.GetString(ctx, key, "")

	row := database.Config{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("registry: set %q: %w", key, err)
	}

	r.cacheSet(key, value)
	r.audit(ctx, key, old, value)
	r.notify(ConfigChangeEvent{Key: key, OldValue: old, NewValue: value, Timestamp: time.Now()})
	return nil
}

// Reset reverts key to its process-start default, notifying listeners.
func (r *Registry) Reset(ctx context.Context, key string) error {
	old := r.GetString(ctx, key, "")
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&database.Config{}).Error; err != nil {
		return fmt.Errorf("registry: reset %q: %w", key, err)
	}

	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()

	def := r.defaults[key]
	r.notify(ConfigChangeEvent{Key: key, OldValue: old, NewValue: def, Timestamp: time.Now()})
	return nil
}

// GetAPIKey decrypts and returns the stored credential for provider, or ""
// if absent or undecryptable.
func (r *Registry) GetAPIKey(ctx context.Context, provider string) string {
	stored := r.GetString(ctx, apiKeyKey(provider), "")
	if stored == "" {
		return ""
	}
	return r.cipher.Decrypt(stored)
}

// SetAPIKey encrypts key and stores it for provider.
func (r *Registry) SetAPIKey(ctx context.Context, provider, key string) error {
	stored, err := r.cipher.Encrypt(key)
	if err != nil {
		return fmt.Errorf("registry: encrypt api key for %s: %w", provider, err)
	}
	return r.SetString(ctx, apiKeyKey(provider), stored)
}

func apiKeyKey(provider string) string {
	return "api_key." + provider
}

// GetModelConfig returns the hydrated ModelInfo for id, consulting the
// in-memory map before the relational store.
func (r *Registry) GetModelConfig(ctx context.Context, id string) (*ModelInfo, error) {
	r.modelsMu.RLock()
	if m, ok := r.models[id]; ok {
		defer r.modelsMu.RUnlock()
		cp := *m
		return &cp, nil
	}
	r.modelsMu.RUnlock()

	var row database.ModelConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("registry: get model %q: %w", id, err)
	}

	info := rowToModelInfo(row)
	r.modelsMu.Lock()
	r.models[id] = info
	r.modelsMu.Unlock()

	cp := *info
	return &cp, nil
}

// SetModelConfig upserts cfg and notifies listeners under the "model:<id>"
// key, and under "*".
func (r *Registry) SetModelConfig(ctx context.Context, cfg *ModelInfo) error {
	row, err := modelInfoToRow(cfg)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("registry: set model %q: %w", cfg.ID, err)
	}

	r.modelsMu.Lock()
	old := r.models[cfg.ID]
	cp := *cfg
	r.models[cfg.ID] = &cp
	r.modelsMu.Unlock()

	key := "model:" + cfg.ID
	r.notify(ConfigChangeEvent{Key: key, OldValue: old, NewValue: cfg, Timestamp: time.Now()})
	return nil
}

// GetAllModelConfigs returns every known ModelInfo, hydrating the
// in-memory map from the store if it is still empty (first call after
// startup).
func (r *Registry) GetAllModelConfigs(ctx context.Context) ([]*ModelInfo, error) {
	r.modelsMu.RLock()
	empty := len(r.models) == 0
	r.modelsMu.RUnlock()

	if empty {
		if err := r.RefreshModels(ctx); err != nil {
			return nil, err
		}
	}

	r.modelsMu.RLock()
	defer r.modelsMu.RUnlock()
	out := make([]*ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// RefreshModels re-reads the entire ModelConfig table, preserving each
// existing entry's Available/Latency fields (the health loop's probed
// values) across the refresh — spec's "refreshed every 15 minutes;
// preserve availability and rolling latency across refresh".
func (r *Registry) RefreshModels(ctx context.Context) error {
	var rows []database.ModelConfig
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("registry: refresh models: %w", err)
	}

	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()

	fresh := make(map[string]*ModelInfo, len(rows))
	for _, row := range rows {
		info := rowToModelInfo(row)
		if prev, ok := r.models[info.ID]; ok {
			info.Available = prev.Available
			info.Latency = prev.Latency
		}
		fresh[info.ID] = info
	}
	r.models = fresh
	return nil
}

// SetAvailability records the health loop's probe result for id without
// going through the relational store — availability is transient.
func (r *Registry) SetAvailability(id string, available bool) {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()
	if m, ok := r.models[id]; ok {
		m.Available = available
	}
}

// RecordLatency feeds a new per-call measurement into id's LatencyWindow and
// updates ModelInfo.Latency to the window's rolling average.
func (r *Registry) RecordLatency(id string, latencyMs float64) {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()

	w, ok := r.latency[id]
	if !ok {
		w = NewLatencyWindow()
		r.latency[id] = w
	}
	w.Record(latencyMs)

	if m, ok := r.models[id]; ok {
		m.Latency = w.Average()
	}
}

// AddListener subscribes fn to mutations of key, or every key when key is
// "*".
func (r *Registry) AddListener(key string, fn Listener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners[key] = append(r.listeners[key], fn)
}

func (r *Registry) notify(event ConfigChangeEvent) {
	r.listenersMu.RLock()
	fns := append(append([]Listener{}, r.listeners[event.Key]...), r.listeners["*"]...)
	r.listenersMu.RUnlock()

	for _, fn := range fns {
		r.invokeListener(fn, event)
	}
}

func (r *Registry) invokeListener(fn Listener, event ConfigChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("config listener panicked", zap.Any("recovered", rec), zap.String("key", event.Key))
		}
	}()
	fn(event)
}

func (r *Registry) audit(ctx context.Context, key, oldValue, newValue string) {
	entry := database.AuditLog{Key: key, OldValue: oldValue, NewValue: newValue, CreatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.logger.Warn("audit log write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Registry) cacheGet(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (r *Registry) cacheSet(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(entryTTL)}
}

func rowToModelInfo(row database.ModelConfig) *ModelInfo {
	var meta modelMeta
	_ = json.Unmarshal(row.Config, &meta)

	return &ModelInfo{
		ID:           row.ID,
		Provider:     row.Provider,
		Capabilities: []string(row.Capabilities),
		Cost:         meta.Cost,
		Quality:      meta.Quality,
		MaxTokens:    meta.MaxTokens,
		Priority:     row.Priority,
		Available:    row.Enabled,
	}
}

func modelInfoToRow(info *ModelInfo) (database.ModelConfig, error) {
	meta := modelMeta{Cost: info.Cost, Quality: info.Quality, MaxTokens: info.MaxTokens}
	raw, err := json.Marshal(meta)
	if err != nil {
		return database.ModelConfig{}, fmt.Errorf("registry: marshal model meta: %w", err)
	}

	return database.ModelConfig{
		ID:           info.ID,
		Name:         info.ID,
		Provider:     info.Provider,
		Enabled:      info.Available,
		Priority:     info.Priority,
		Capabilities: info.Capabilities,
		Config:       datatypes.JSON(raw),
		UpdatedAt:    time.Now(),
	}, nil
}
