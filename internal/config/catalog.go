package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

// SourceType distinguishes object-storage datasets from HTTP APIs.
type SourceType string

const (
	SourceObjectStorage SourceType = "object-storage"
	SourceHTTPAPI       SourceType = "http-api"
)

// SourceDescriptor is one entry of the source catalog. All fields are
// required; startup rejects incomplete descriptors rather than guessing.
type SourceDescriptor struct {
	ID           string            `json:"id"`
	Type         SourceType        `json:"type"`
	Path         string            `json:"path"`
	CRS          string            `json:"crs"`
	ResolutionM  float64           `json:"resolution_m"`
	Bounds       geo.Bounds        `json:"bounds"`
	Priority     int               `json:"priority"`
	CostPerQuery float64           `json:"cost_per_query"`
	Enabled      bool              `json:"enabled"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SourceCatalog is the parsed configuration document.
type SourceCatalog struct {
	SchemaVersion    string             `json:"schema_version"`
	LastUpdated      time.Time          `json:"last_updated"`
	ElevationSources []SourceDescriptor `json:"elevation_sources"`
}

// CatalogSchemaVersion is the supported catalog document version.
const CatalogSchemaVersion = "1.0"

// LoadCatalog reads and validates the source catalog.
func LoadCatalog(path string) (*SourceCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog %s: %w", path, err)
	}
	var catalog SourceCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse source catalog %s: %w", path, err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	slog.Info("source catalog loaded", "path", path, "sources", len(catalog.ElevationSources))
	return &catalog, nil
}

// Validate enforces the descriptor contract: id, type, path, crs,
// resolution_m and priority present, ids unique, bounds well-formed.
// cost_per_query, enabled and metadata are not checked for presence; an
// absent cost or enabled flag reads as zero or false.
func (c *SourceCatalog) Validate() error {
	if c.SchemaVersion != CatalogSchemaVersion {
		return fmt.Errorf("source catalog schema version %q unsupported, want %q",
			c.SchemaVersion, CatalogSchemaVersion)
	}
	seen := make(map[string]bool, len(c.ElevationSources))
	for i, s := range c.ElevationSources {
		if s.ID == "" {
			return fmt.Errorf("source %d: missing id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if s.Type != SourceObjectStorage && s.Type != SourceHTTPAPI {
			return fmt.Errorf("source %s: unknown type %q", s.ID, s.Type)
		}
		if s.Path == "" {
			return fmt.Errorf("source %s: missing path or endpoint", s.ID)
		}
		if s.CRS == "" {
			return fmt.Errorf("source %s: missing crs", s.ID)
		}
		if s.ResolutionM <= 0 {
			return fmt.Errorf("source %s: missing resolution_m", s.ID)
		}
		if !s.Bounds.Valid() || s.Bounds.Area() <= 0 {
			return fmt.Errorf("source %s: invalid bounds %s", s.ID, s.Bounds)
		}
		if s.Priority <= 0 {
			return fmt.Errorf("source %s: missing priority", s.ID)
		}
	}
	return nil
}

// Enabled returns the enabled descriptors in catalog order.
func (c *SourceCatalog) Enabled() []SourceDescriptor {
	var out []SourceDescriptor
	for _, s := range c.ElevationSources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// ByID finds a descriptor.
func (c *SourceCatalog) ByID(id string) (SourceDescriptor, bool) {
	for _, s := range c.ElevationSources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceDescriptor{}, false
}
