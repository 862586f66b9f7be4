// Package ratelimit provides a Redis-backed fixed-window counter
// shared across workers, with a configurable failure mode for when the
// backing store is unreachable.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FallbackMode selects behavior when Redis is unavailable.
type FallbackMode string

const (
	// ModeStrict fails closed: callers surface a 503-equivalent.
	ModeStrict FallbackMode = "strict"
	// ModeDegraded fails open with a warning event.
	ModeDegraded FallbackMode = "degraded"
	// ModeLocal falls back to per-process counters. Not cross-worker
	// safe; development only.
	ModeLocal FallbackMode = "local"
)

// ParseFallbackMode validates a configured mode string.
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch FallbackMode(s) {
	case ModeStrict, ModeDegraded, ModeLocal:
		return FallbackMode(s), nil
	case "":
		return ModeStrict, nil
	}
	return "", fmt.Errorf("unknown rate limiter fallback mode %q", s)
}

// ErrServiceUnavailable is returned in strict mode when the backing
// store cannot be reached.
var ErrServiceUnavailable = errors.New("rate limiter backing store unavailable")

// Limiter is a distributed counter with expiry windows.
type Limiter struct {
	redis *redis.Client
	mode  FallbackMode

	mu    sync.Mutex
	local map[string]*localWindow
	nowFn func() time.Time
}

type localWindow struct {
	count     int64
	expiresAt time.Time
}

// New creates a limiter over the given client. client may be nil, in
// which case every check takes the fallback path.
func New(client *redis.Client, mode FallbackMode) *Limiter {
	return &Limiter{
		redis: client,
		mode:  mode,
		local: make(map[string]*localWindow),
		nowFn: time.Now,
	}
}

// incrScript atomically increments a counter and stamps its expiry on
// first touch, returning the current count.
var incrScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	local ttl = redis.call('TTL', KEYS[1])
	if count == 1 or ttl == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// Check increments the counter under key and reports whether the caller
// is within limit for the window. The boundary is inclusive: the request
// that brings the count exactly to limit is allowed.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, current, err := l.check(ctx, key, limit, window)
	slog.Info("rate limit decision",
		"key", key,
		"allowed", allowed,
		"current", current,
		"limit", limit,
		"window_seconds", int(window.Seconds()),
	)
	return allowed, err
}

func (l *Limiter) check(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, error) {
	if l.redis != nil {
		result, err := incrScript.Run(ctx, l.redis, []string{key}, int(window.Seconds())).Result()
		if err == nil {
			count, ok := result.(int64)
			if !ok {
				return false, 0, fmt.Errorf("unexpected rate limit script result: %v", result)
			}
			return count <= int64(limit), count, nil
		}
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		return l.fallback(key, limit, window, err)
	}
	return l.fallback(key, limit, window, errors.New("no redis client configured"))
}

func (l *Limiter) fallback(key string, limit int, window time.Duration, cause error) (bool, int64, error) {
	switch l.mode {
	case ModeDegraded:
		slog.Warn("rate limiter degraded: allowing request", "key", key, "error", cause)
		return true, 0, nil
	case ModeLocal:
		allowed, current := l.checkLocal(key, limit, window)
		return allowed, current, nil
	default:
		slog.Error("rate limiter strict: rejecting request", "key", key, "error", cause)
		return false, 0, fmt.Errorf("%w: %v", ErrServiceUnavailable, cause)
	}
}

// checkLocal mirrors the Redis semantics against an in-process map.
func (l *Limiter) checkLocal(key string, limit int, window time.Duration) (bool, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	w := l.local[key]
	if w == nil || now.After(w.expiresAt) {
		w = &localWindow{expiresAt: now.Add(window)}
		l.local[key] = w
	}
	w.count++
	return w.count <= int64(limit), w.count
}

// Reset clears the counter under key (admin use).
func (l *Limiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.local, key)
	l.mu.Unlock()
	if l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}
