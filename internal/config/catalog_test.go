package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/road-engineering/dem-elevation/internal/geo"
)

func validCatalog() SourceCatalog {
	return SourceCatalog{
		SchemaVersion: CatalogSchemaVersion,
		ElevationSources: []SourceDescriptor{
			{
				ID:           "au_elvis_s3",
				Type:         SourceObjectStorage,
				Path:         "s3://road-engineering-elevation-data",
				CRS:          "EPSG:4326",
				ResolutionM:  1,
				Bounds:       geo.Bounds{MinLat: -44, MaxLat: -9, MinLon: 112, MaxLon: 154},
				Priority:     1,
				CostPerQuery: 0,
				Enabled:      true,
			},
			{
				ID:           "gpxz_api",
				Type:         SourceHTTPAPI,
				Path:         "https://api.gpxz.io/v1/elevation/point",
				CRS:          "EPSG:4326",
				ResolutionM:  1,
				Bounds:       geo.Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180},
				Priority:     10,
				CostPerQuery: 0.001,
				Enabled:      true,
			},
		},
	}
}

func TestCatalogValidate_OK(t *testing.T) {
	c := validCatalog()
	require.NoError(t, c.Validate())

	assert.Len(t, c.Enabled(), 2)
	src, ok := c.ByID("gpxz_api")
	require.True(t, ok)
	assert.Equal(t, SourceHTTPAPI, src.Type)
}

func TestCatalogValidate_Failures(t *testing.T) {
	mutations := map[string]func(*SourceCatalog){
		"schema version":   func(c *SourceCatalog) { c.SchemaVersion = "0.1" },
		"missing id":       func(c *SourceCatalog) { c.ElevationSources[0].ID = "" },
		"duplicate id":     func(c *SourceCatalog) { c.ElevationSources[1].ID = c.ElevationSources[0].ID },
		"unknown type":     func(c *SourceCatalog) { c.ElevationSources[0].Type = "carrier-pigeon" },
		"missing path":     func(c *SourceCatalog) { c.ElevationSources[0].Path = "" },
		"missing crs":      func(c *SourceCatalog) { c.ElevationSources[0].CRS = "" },
		"zero resolution":  func(c *SourceCatalog) { c.ElevationSources[0].ResolutionM = 0 },
		"empty bounds":     func(c *SourceCatalog) { c.ElevationSources[0].Bounds = geo.Bounds{} },
		"missing priority": func(c *SourceCatalog) { c.ElevationSources[0].Priority = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := validCatalog()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elevation_sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"schema_version": "1.0",
		"elevation_sources": [{
			"id": "au_elvis_s3",
			"type": "object-storage",
			"path": "s3://road-engineering-elevation-data",
			"crs": "EPSG:4326",
			"resolution_m": 1,
			"bounds": {"min_lat": -44, "max_lat": -9, "min_lon": 112, "max_lon": 154},
			"priority": 1,
			"cost_per_query": 0,
			"enabled": true
		}]
	}`), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, catalog.ElevationSources, 1)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadProvidersFromEnv(t *testing.T) {
	t.Setenv("ELEVATION_PROVIDERS", "gpxz, opentopodata,google")
	t.Setenv("GPXZ_API_KEY", "k1")
	t.Setenv("GPXZ_DAILY_QUOTA", "100")
	t.Setenv("GPXZ_RATE_PER_SECOND", "1")
	t.Setenv("GOOGLE_API_KEY", "k2")

	configs, err := loadProviders()
	require.NoError(t, err)
	require.Len(t, configs, 3)

	assert.Equal(t, "gpxz", configs[0].Name)
	assert.Equal(t, "k1", configs[0].APIKey)
	assert.Equal(t, 100, configs[0].DailyQuota)
	assert.Equal(t, 1, configs[0].PerSecond)
	assert.Equal(t, "opentopodata", configs[1].Name)
	assert.Equal(t, "google", configs[2].Name)
	assert.Equal(t, "k2", configs[2].APIKey)
}

func TestConfigLoad_Defaults(t *testing.T) {
	t.Setenv("ELEVATION_PROVIDERS", "")
	t.Setenv("DEM_BUCKET", "road-engineering-elevation-data")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8001", cfg.Server.Port)
	assert.Equal(t, "ap-southeast-2", cfg.Storage.Region)
	assert.NotZero(t, cfg.Builder.Workers)
	require.NoError(t, cfg.Validate())
}
