// Package kv provides the shared Redis-backed key/value store used by the
// response cache (C1) and the circuit breaker (C3). Both components need
// nothing more than get/set-with-ttl/delete/delete-by-prefix over opaque
// bytes, so they share one client and one connection pool instead of each
// dialing Redis on its own.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("kv: key miss")

// IsMiss reports whether err is (or wraps) ErrMiss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// Config configures the shared KV store connection.
type Config struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Store is a thin, concurrency-safe wrapper over a *redis.Client.
type Store struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New dials Redis and verifies connectivity before returning.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv: connect: %w", err)
	}

	return &Store{client: client, logger: logger.With(zap.String("component", "kv"))}, nil
}

// NewFromClient wraps an existing *redis.Client, used by tests against
// miniredis where the caller already constructed the client.
func NewFromClient(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger.With(zap.String("component", "kv"))}
}

// Get returns the raw value stored at key, or ErrMiss if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("kv: store closed")
	}

	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with the given TTL. A zero TTL means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("kv: store closed")
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %q: %w", key, err)
	}
	return nil
}

// SetNX stores value at key only if it does not already exist, returning
// whether the set took effect. Used by the circuit breaker to avoid two
// concurrent workers stomping each other's half-open probe slot.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, fmt.Errorf("kv: store closed")
	}

	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv: setnx %q: %w", key, err)
	}
	return ok, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("kv: store closed")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// DeletePrefix deletes every key under prefix, used by Cache.clear(prefix).
// Uses SCAN rather than KEYS to avoid blocking Redis on large keyspaces.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return 0, fmt.Errorf("kv: store closed")
	}

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 256).Result()
		if err != nil {
			return deleted, fmt.Errorf("kv: scan %q*: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("kv: delete scanned keys: %w", err)
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Ping checks connectivity, used by the /health endpoint's redis check.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("kv: store closed")
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
