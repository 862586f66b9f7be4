// Package config loads service configuration from the environment and
// the source catalog document. Everything is resolved once at startup;
// nothing reloads mid-query.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/road-engineering/dem-elevation/internal/builder"
	"github.com/road-engineering/dem-elevation/internal/provider"
	"github.com/road-engineering/dem-elevation/internal/ratelimit"
)

// Config is the resolved environment configuration.
type Config struct {
	Server struct {
		Host        string
		Port        string
		Environment string
	}
	Storage struct {
		Bucket    string
		Region    string
		Anonymous bool
	}
	Index struct {
		Path string
	}
	Catalog struct {
		Path string
	}
	Redis struct {
		URL string
	}
	RateLimiter struct {
		FallbackMode ratelimit.FallbackMode
	}
	Builder struct {
		Workers            int
		CheckpointInterval int
	}
	Providers []provider.Config
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Server.Host = getEnv("HOST", "0.0.0.0")
	cfg.Server.Port = getEnv("PORT", "8001")
	cfg.Server.Environment = getEnv("ENVIRONMENT", "development")

	cfg.Storage.Bucket = getEnv("DEM_BUCKET", "")
	cfg.Storage.Region = getEnv("AWS_REGION", "ap-southeast-2")
	cfg.Storage.Anonymous = getEnvBool("DEM_BUCKET_ANONYMOUS", false)

	cfg.Index.Path = getEnv("SPATIAL_INDEX_PATH", "config/spatial_index.json")
	cfg.Catalog.Path = getEnv("SOURCE_CATALOG_PATH", "config/elevation_sources.json")

	cfg.Redis.URL = getEnv("REDIS_URL", "")

	mode, err := ratelimit.ParseFallbackMode(os.Getenv("RATE_LIMITER_FALLBACK_MODE"))
	if err != nil {
		return nil, err
	}
	cfg.RateLimiter.FallbackMode = mode

	cfg.Builder.Workers = getEnvInt("BUILDER_WORKERS", builder.DefaultWorkers)
	cfg.Builder.CheckpointInterval = getEnvInt("BUILDER_CHECKPOINT_INTERVAL", builder.DefaultCheckpointInterval)

	providers, err := loadProviders()
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	return cfg, nil
}

// loadProviders reads the ordered provider chain. ELEVATION_PROVIDERS is
// a comma-separated name list; per-provider settings follow the pattern
// <NAME>_API_KEY, <NAME>_DAILY_QUOTA, <NAME>_RATE_PER_SECOND.
func loadProviders() ([]provider.Config, error) {
	names := strings.TrimSpace(os.Getenv("ELEVATION_PROVIDERS"))
	if names == "" {
		return nil, nil
	}
	var configs []provider.Config
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		upper := strings.ToUpper(name)
		cfg := provider.Config{
			Name:       name,
			Endpoint:   os.Getenv(upper + "_ENDPOINT"),
			APIKey:     os.Getenv(upper + "_API_KEY"),
			DailyQuota: getEnvInt(upper+"_DAILY_QUOTA", 0),
			PerSecond:  getEnvInt(upper+"_RATE_PER_SECOND", 0),
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks the settings a serving process cannot start without.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" && len(c.Providers) == 0 {
		return fmt.Errorf("no DEM_BUCKET and no ELEVATION_PROVIDERS configured")
	}
	return nil
}
