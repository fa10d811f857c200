package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "rl"), mr
}

func TestLimiter_FixedWindow(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	p := Policy{Limit: 5, Window: 15 * time.Minute}

	// Allow never increments: many checks cost nothing.
	for i := 0; i < 10; i++ {
		ok, _, err := l.Allow(ctx, "login", "k", p)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, "login", "k", p))
	}

	// The 6th attempt inside the window is rejected.
	ok, retry, err := l.Allow(ctx, "login", "k", p)
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retry, time.Duration(0))
	require.LessOrEqual(t, retry, 15*time.Minute)
}

func TestLimiter_WindowExpiry(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()
	p := Policy{Limit: 2, Window: time.Minute}

	require.NoError(t, l.Record(ctx, "login", "k", p))
	require.NoError(t, l.Record(ctx, "login", "k", p))

	ok, _, err := l.Allow(ctx, "login", "k", p)
	require.NoError(t, err)
	require.False(t, ok)

	// After the window elapses the counter resets lazily.
	mr.FastForward(2 * time.Minute)
	ok, _, err = l.Allow(ctx, "login", "k", p)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLimiter_KeysIsolated(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	p := Policy{Limit: 1, Window: time.Minute}

	require.NoError(t, l.Record(ctx, "login", "a", p))
	ok, _, err := l.Allow(ctx, "login", "a", p)
	require.NoError(t, err)
	require.False(t, ok)

	// Different key and different scope are untouched.
	ok, _, err = l.Allow(ctx, "login", "b", p)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, err = l.Allow(ctx, "reset", "a", p)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLimiter_ZeroLimitDisables(t *testing.T) {
	l, _ := setupLimiter(t)
	ok, _, err := l.Allow(context.Background(), "x", "k", Policy{})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Record(context.Background(), "x", "k", Policy{}))
}

func TestLimiter_StoreUnavailable(t *testing.T) {
	l, mr := setupLimiter(t)
	mr.Close()
	p := Policy{Limit: 5, Window: time.Minute}

	_, _, err := l.Allow(context.Background(), "login", "k", p)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, l.Record(context.Background(), "login", "k", p), ErrStoreUnavailable)

	nilLimiter := New(nil, "rl")
	_, _, err = nilLimiter.Allow(context.Background(), "login", "k", p)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestKeyStrategy(t *testing.T) {
	tests := []struct {
		strategy KeyStrategy
		want     string
	}{
		{KeyByIP, "ip:10.0.0.1"},
		{KeyByAccount, "acct:alice@example.com"},
		{KeyByIPAccount, "ip:10.0.0.1:acct:alice@example.com"},
	}
	for _, tt := range tests {
		got := tt.strategy.Key("10.0.0.1", "Alice@Example.com")
		require.Equal(t, tt.want, got)
	}

	// Missing pieces fall back to placeholders rather than colliding
	// on empty strings.
	require.Equal(t, "ip:unknown", KeyByIP.Key("", "x"))
	require.Equal(t, "acct:anon", KeyByAccount.Key("x", ""))
}
