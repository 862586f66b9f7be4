package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestCheck_InclusiveBoundary(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := New(client, ModeStrict)
	ctx := context.Background()

	limit := 5
	for i := 1; i <= limit; i++ {
		allowed, err := l.Check(ctx, "q", limit, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d (current == limit allows)", i)
	}

	allowed, err := l.Check(ctx, "q", limit, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "request past the limit is rejected")
}

func TestCheck_WindowExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := New(client, ModeStrict)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "w", 3, time.Minute)
		require.NoError(t, err)
	}
	allowed, err := l.Check(ctx, "w", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(time.Minute + time.Second)

	allowed, err = l.Check(ctx, "w", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "counter resets after the window expires")
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := New(client, ModeStrict)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Check(ctx, "a", 2, time.Minute)
		require.NoError(t, err)
	}
	allowed, err := l.Check(ctx, "b", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFallback_Strict(t *testing.T) {
	l := New(nil, ModeStrict)
	allowed, err := l.Check(context.Background(), "k", 10, time.Minute)
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestFallback_Degraded(t *testing.T) {
	l := New(nil, ModeDegraded)
	for i := 0; i < 100; i++ {
		allowed, err := l.Check(context.Background(), "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "degraded mode always allows")
	}
}

func TestFallback_Local(t *testing.T) {
	l := New(nil, ModeLocal)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, err := l.Check(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}
	allowed, err := l.Check(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Advance the clock past the window.
	now := time.Now()
	l.nowFn = func() time.Time { return now.Add(2 * time.Minute) }
	allowed, err = l.Check(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "local window expires")
}

func TestParseFallbackMode(t *testing.T) {
	mode, err := ParseFallbackMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, mode)

	mode, err = ParseFallbackMode("degraded")
	require.NoError(t, err)
	assert.Equal(t, ModeDegraded, mode)

	_, err = ParseFallbackMode("yolo")
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := New(client, ModeStrict)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Check(ctx, "r", 2, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, l.Reset(ctx, "r"))

	allowed, err := l.Check(ctx, "r", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
