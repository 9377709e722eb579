// Package circuitbreaker implements the per-(provider, model, mode)
// three-state breaker described by the router's design: closed, open, and
// half-open, backed by the shared KV store so every worker process sees the
// same trip decision.
package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/neuroroute/internal/kv"
)

// Status is the externally observable breaker state for a given
// (provider, model, mode) tuple.
type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half-open"
)

// ttl is how long an "open" entry survives in the KV store before it
// disappears on its own — losing the entry is indistinguishable from a
// reset, which is intentional: a KV outage must fail open, not closed.
const ttl = 60 * time.Second

// halfOpenAfter is how long after opening the breaker starts reporting
// half-open on read, permitting one probe request through.
const halfOpenAfter = 30 * time.Second

// ErrOpen is returned by Allow when the breaker is tripped and the
// half-open window hasn't elapsed yet.
var ErrOpen = errors.New("circuitbreaker: open")

// record is the JSON value stored under circuit_breaker:<provider>:<model>[:mode].
type record struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Breaker consults and mutates circuit-breaker state in the shared KV store.
// It holds no in-memory state of its own beyond the store handle — the KV
// entry is the single source of truth across every router instance.
type Breaker struct {
	store  *kv.Store
	logger *zap.Logger
}

// New returns a Breaker backed by store.
func New(store *kv.Store, logger *zap.Logger) *Breaker {
	return &Breaker{store: store, logger: logger.With(zap.String("component", "circuitbreaker"))}
}

func key(provider, model, mode string) string {
	if mode == "" || mode == "unary" {
		return fmt.Sprintf("circuit_breaker:%s:%s", provider, model)
	}
	return fmt.Sprintf("circuit_breaker:%s:%s:%s", provider, model, mode)
}

// Allow reports the current status for (provider, model, mode) and, for a
// tripped breaker still within its open window, returns ErrOpen so the
// caller can fail fast with model_unavailable without placing an outbound
// call. A KV read failure is treated as closed: the breaker is advisory and
// must not itself become an outage.
func (b *Breaker) Allow(ctx context.Context, provider, model, mode string) (Status, error) {
	raw, err := b.store.Get(ctx, key(provider, model, mode))
	if kv.IsMiss(err) {
		return StatusClosed, nil
	}
	if err != nil {
		b.logger.Warn("circuit breaker read failed, failing open",
			zap.String("provider", provider), zap.String("model", model), zap.Error(err))
		return StatusClosed, nil
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		b.logger.Warn("circuit breaker entry corrupt, failing open", zap.Error(err))
		return StatusClosed, nil
	}

	if rec.Status != string(StatusOpen) {
		return StatusClosed, nil
	}

	if time.Since(rec.Timestamp) > halfOpenAfter {
		return StatusHalfOpen, nil
	}

	return StatusOpen, ErrOpen
}

// Trip opens the breaker for (provider, model, mode). Call only for
// non-retryable classified errors (model_authentication, model_quota_exceeded,
// model_content_filtered) — retryable-but-persistent failures exhaust their
// own retries and surface without tripping the breaker.
func (b *Breaker) Trip(ctx context.Context, provider, model, mode string) error {
	rec := record{Status: string(StatusOpen), Timestamp: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("circuitbreaker: marshal: %w", err)
	}
	if err := b.store.Set(ctx, key(provider, model, mode), raw, ttl); err != nil {
		return fmt.Errorf("circuitbreaker: trip: %w", err)
	}
	b.logger.Warn("circuit breaker tripped",
		zap.String("provider", provider), zap.String("model", model), zap.String("mode", mode))
	return nil
}

// Reset closes the breaker for (provider, model, mode), called after the
// first success following a half-open probe (or any success while closed,
// which is a no-op delete).
func (b *Breaker) Reset(ctx context.Context, provider, model, mode string) error {
	if err := b.store.Delete(ctx, key(provider, model, mode)); err != nil {
		return fmt.Errorf("circuitbreaker: reset: %w", err)
	}
	return nil
}
