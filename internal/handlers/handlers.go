// Package handlers provides the HTTP facade over the elevation engine
// and the coverage query service. Handlers parse and validate the
// request, call the engine, and serialize the documented contract; all
// fallback logic lives below them.
package handlers

import (
	"github.com/road-engineering/dem-elevation/internal/cache"
	"github.com/road-engineering/dem-elevation/internal/coverage"
	"github.com/road-engineering/dem-elevation/internal/engine"
)

// Handlers holds the request-scoped dependencies.
type Handlers struct {
	engine   *engine.Engine
	coverage *coverage.Service
	cache    *cache.Cache
}

// New wires handlers over a started engine.
func New(eng *engine.Engine) *Handlers {
	return &Handlers{
		engine:   eng,
		coverage: coverage.New(eng.Index()),
	}
}

// SetCache configures the optional Redis result cache.
func (h *Handlers) SetCache(c *cache.Cache) {
	h.cache = c
}
