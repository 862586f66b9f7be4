package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/road-engineering/dem-elevation/internal/ratelimit"
)

// Default per-client request limits.
const (
	DefaultMinuteLimit = 60
	DefaultHourLimit   = 1000
)

// RateLimit enforces per-client request limits through the distributed
// limiter. In strict fallback mode an unreachable backing store rejects
// with 503; degraded and local modes are handled inside the limiter.
type RateLimit struct {
	limiter     *ratelimit.Limiter
	minuteLimit int
	hourLimit   int
}

func NewRateLimit(limiter *ratelimit.Limiter) *RateLimit {
	return &RateLimit{limiter: limiter, minuteLimit: DefaultMinuteLimit, hourLimit: DefaultHourLimit}
}

// Middleware returns the rate limiting handler.
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := clientKey(r)

		minuteOK, err := rl.limiter.Check(r.Context(), "req:"+clientID+":minute", rl.minuteLimit, time.Minute)
		if err != nil {
			respondLimiterOutage(w, err)
			return
		}
		hourOK, err := rl.limiter.Check(r.Context(), "req:"+clientID+":hour", rl.hourLimit, time.Hour)
		if err != nil {
			respondLimiterOutage(w, err)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.minuteLimit))
		if !minuteOK || !hourOK {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondLimiterOutage(w http.ResponseWriter, err error) {
	if !errors.Is(err, ratelimit.ErrServiceUnavailable) {
		slog.Error("rate limit check failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   "service_unavailable",
		"message": "Rate limiter temporarily unavailable.",
	})
}

// clientKey identifies the caller by IP; RealIP runs earlier in the
// stack so RemoteAddr holds the true client address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
