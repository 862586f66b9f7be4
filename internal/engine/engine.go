// Package engine owns the per-process elevation serving state: the
// loaded spatial index, the source catalog, the policy selector, the
// raster sampler and the external provider chain (whose providers carry
// the rate limiter), plus the per-provider cool-off state. It
// drives the fallback state machine that turns a coordinate into an
// elevation with provenance.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/road-engineering/dem-elevation/internal/config"
	"github.com/road-engineering/dem-elevation/internal/index"
	"github.com/road-engineering/dem-elevation/internal/provider"
	"github.com/road-engineering/dem-elevation/internal/selector"
)

// DefaultTimeout bounds a single request when the caller supplies no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// DefaultProviderCoolOff is how long a rate-limited provider is skipped
// before it is consulted again.
const DefaultProviderCoolOff = 5 * time.Minute

// TileSampler is the sampling capability the orchestrator drives.
// *sampler.Sampler implements it; tests substitute fakes.
type TileSampler interface {
	Sample(ctx context.Context, tile *index.TileEntry, lat, lon float64) (float64, bool, error)
}

// Engine is created at startup and shared read-only by request handlers.
type Engine struct {
	idx       *index.SpatialIndex
	catalog   *config.SourceCatalog
	sampler   TileSampler
	providers []provider.ElevationProvider
	timeout   time.Duration
	coolOff   time.Duration

	// Campaign ids whose catalog source is disabled; never selected.
	excluded map[string]bool

	mu         sync.Mutex
	coolOffEnd map[string]time.Time
	nowFn      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the default per-request time limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithProviderCoolOff overrides the rate-limit cool-off window.
func WithProviderCoolOff(d time.Duration) Option {
	return func(e *Engine) { e.coolOff = d }
}

// New assembles an engine over a validated index and source catalog.
// catalog may be nil in tests; serving binaries always pass one.
func New(idx *index.SpatialIndex, catalog *config.SourceCatalog, s TileSampler, providers []provider.ElevationProvider, opts ...Option) *Engine {
	e := &Engine{
		idx:        idx,
		catalog:    catalog,
		sampler:    s,
		providers:  providers,
		timeout:    DefaultTimeout,
		coolOff:    DefaultProviderCoolOff,
		excluded:   make(map[string]bool),
		coolOffEnd: make(map[string]time.Time),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.applyCatalog()
	return e
}

// Index exposes the read-only spatial index for coverage queries.
func (e *Engine) Index() *index.SpatialIndex { return e.idx }

// Catalog exposes the loaded source catalog.
func (e *Engine) Catalog() *config.SourceCatalog { return e.catalog }

// applyCatalog runs once at construction, before any request is served:
// campaigns inherit priority and cost-per-query from their collection's
// object-storage descriptor, campaigns of disabled sources are excluded
// from selection, and providers whose http-api descriptor is disabled
// are dropped from the chain. A provider with no matching descriptor
// stays in the chain.
func (e *Engine) applyCatalog() {
	if e.catalog == nil {
		return
	}

	for _, col := range e.idx.Collections {
		desc, ok := e.storageSourceFor(col.Country)
		if !ok {
			continue
		}
		for id, campaign := range col.Campaigns {
			if !desc.Enabled {
				e.excluded[id] = true
				continue
			}
			campaign.Priority = desc.Priority
			campaign.CostPerQuery = desc.CostPerQuery
		}
		if !desc.Enabled {
			slog.Warn("catalog source disabled, excluding collection",
				"source", desc.ID, "country", col.Country, "campaigns", len(col.Campaigns))
		}
	}

	kept := make([]provider.ElevationProvider, 0, len(e.providers))
	for _, p := range e.providers {
		desc, ok := e.apiSourceFor(p.Name())
		if ok && !desc.Enabled {
			slog.Warn("catalog source disabled, dropping provider",
				"source", desc.ID, "provider", p.Name())
			continue
		}
		kept = append(kept, p)
	}
	e.providers = kept
}

// storageSourceFor finds the object-storage descriptor covering a
// collection's country.
func (e *Engine) storageSourceFor(country string) (config.SourceDescriptor, bool) {
	for _, s := range e.catalog.ElevationSources {
		if s.Type == config.SourceObjectStorage && strings.EqualFold(s.Metadata["country"], country) {
			return s, true
		}
	}
	return config.SourceDescriptor{}, false
}

// apiSourceFor finds the http-api descriptor for a provider by its
// naming convention: the descriptor id leads with the provider name.
func (e *Engine) apiSourceFor(name string) (config.SourceDescriptor, bool) {
	for _, s := range e.catalog.ElevationSources {
		if s.Type == config.SourceHTTPAPI && strings.HasPrefix(s.ID, name) {
			return s, true
		}
	}
	return config.SourceDescriptor{}, false
}

// allowed drops matches whose campaign belongs to a disabled source.
func (e *Engine) allowed(matches []selector.DatasetMatch) []selector.DatasetMatch {
	if len(e.excluded) == 0 {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if !e.excluded[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept
}

// providerCooling reports whether a provider is inside its cool-off.
func (e *Engine) providerCooling(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	end, ok := e.coolOffEnd[name]
	return ok && e.nowFn().Before(end)
}

// startCoolOff puts a provider on ice after a rate-limit signal.
func (e *Engine) startCoolOff(name string) {
	e.mu.Lock()
	e.coolOffEnd[name] = e.nowFn().Add(e.coolOff)
	e.mu.Unlock()
}

// newSelector builds a selector for the request's policy.
func (e *Engine) newSelector(p selector.Policy) *selector.Selector {
	return selector.New(e.idx, p)
}
