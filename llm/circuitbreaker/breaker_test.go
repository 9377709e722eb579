package circuitbreaker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/neuroroute/internal/kv"
)

func newTestBreaker(t *testing.T) (*Breaker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := kv.NewFromClient(client, zap.NewNop())
	return New(store, zap.NewNop()), mr
}

func TestBreaker_ClosedByDefault(t *testing.T) {
	b, _ := newTestBreaker(t)
	status, err := b.Allow(context.Background(), "openai", "gpt-4.1", "unary")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, status)
}

func TestBreaker_TripThenOpen(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Trip(ctx, "openai", "gpt-4.1", "unary"))

	status, err := b.Allow(ctx, "openai", "gpt-4.1", "unary")
	require.ErrorIs(t, err, ErrOpen)
	require.Equal(t, StatusOpen, status)
}

func TestBreaker_HalfOpenAfterWindow(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Trip(ctx, "openai", "gpt-4.1", "unary"))
	// Allow measures the open window against the wall clock, which
	// miniredis's FastForward does not move, so age the stored record instead.
	raw, err := json.Marshal(record{Status: string(StatusOpen), Timestamp: time.Now().Add(-31 * time.Second)})
	require.NoError(t, err)
	require.NoError(t, b.store.Set(ctx, key("openai", "gpt-4.1", "unary"), raw, ttl))

	status, err := b.Allow(ctx, "openai", "gpt-4.1", "unary")
	require.NoError(t, err)
	require.Equal(t, StatusHalfOpen, status)
}

func TestBreaker_ResetClosesIt(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Trip(ctx, "openai", "gpt-4.1", "unary"))
	require.NoError(t, b.Reset(ctx, "openai", "gpt-4.1", "unary"))

	status, err := b.Allow(ctx, "openai", "gpt-4.1", "unary")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, status)
}

func TestBreaker_KVOutageFailsOpen(t *testing.T) {
	b, mr := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Trip(ctx, "openai", "gpt-4.1", "unary"))
	mr.Close()

	status, err := b.Allow(ctx, "openai", "gpt-4.1", "unary")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, status)
}

func TestBreaker_DistinctModesAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Trip(ctx, "openai", "gpt-4.1", "unary"))

	status, err := b.Allow(ctx, "openai", "gpt-4.1", "stream")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, status)
}
