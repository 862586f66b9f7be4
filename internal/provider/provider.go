// Package provider implements the external elevation HTTP APIs used when
// no object-storage dataset covers a point. Providers form an ordered
// chain the orchestrator walks; each one wraps its requests with a
// distributed rate-limit check.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/road-engineering/dem-elevation/internal/ratelimit"
)

// ErrRateLimited signals that a provider's quota or per-second rate is
// exhausted. The orchestrator skips the provider for a cool-off.
var ErrRateLimited = errors.New("provider rate limited")

// ErrNoElevation signals a well-formed response without data for the
// point (ocean, out of coverage).
var ErrNoElevation = errors.New("provider has no elevation for point")

// ElevationProvider is the capability the fallback chain iterates.
type ElevationProvider interface {
	Name() string
	// CheckRateLimit reserves quota for one request. ErrRateLimited
	// means the provider must be skipped this request.
	CheckRateLimit(ctx context.Context) error
	// FetchElevation returns the elevation in meters at the point.
	FetchElevation(ctx context.Context, lat, lon float64) (float64, error)
}

// Config describes one provider instance from the environment.
type Config struct {
	Name       string
	Endpoint   string
	APIKey     string
	DailyQuota int
	PerSecond  int
}

// limits wires a provider's two rate windows to the shared limiter.
type limits struct {
	name    string
	limiter *ratelimit.Limiter
	daily   int
	perSec  int
}

func (l limits) check(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if l.perSec > 0 {
		allowed, err := l.limiter.Check(ctx, "provider:"+l.name+":second", l.perSec, time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: %s per-second", ErrRateLimited, l.name)
		}
	}
	if l.daily > 0 {
		allowed, err := l.limiter.Check(ctx, "provider:"+l.name+":day", l.daily, 24*time.Hour)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: %s daily quota", ErrRateLimited, l.name)
		}
	}
	return nil
}

// defaultHTTPClient is shared across providers; per-request deadlines
// come from the caller's context.
var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

// BuildChain constructs the ordered provider chain from configuration.
// Unknown names are rejected so misconfiguration fails at startup.
func BuildChain(configs []Config, limiter *ratelimit.Limiter) ([]ElevationProvider, error) {
	var chain []ElevationProvider
	for _, cfg := range configs {
		lim := limits{name: cfg.Name, limiter: limiter, daily: cfg.DailyQuota, perSec: cfg.PerSecond}
		switch cfg.Name {
		case "gpxz":
			chain = append(chain, newGPXZ(cfg, lim))
		case "opentopodata":
			chain = append(chain, newOpenTopoData(cfg, lim))
		case "google":
			chain = append(chain, newGoogle(cfg, lim))
		default:
			return nil, fmt.Errorf("unknown elevation provider %q", cfg.Name)
		}
	}
	return chain, nil
}
