// DEM Elevation API
//
// Serves point and bulk elevation queries over the indexed DEM corpus
// plus the external provider chain, and read-only campaign coverage
// queries for the map UI.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/road-engineering/dem-elevation/internal/cache"
	"github.com/road-engineering/dem-elevation/internal/config"
	"github.com/road-engineering/dem-elevation/internal/engine"
	"github.com/road-engineering/dem-elevation/internal/handlers"
	"github.com/road-engineering/dem-elevation/internal/index"
	custommw "github.com/road-engineering/dem-elevation/internal/middleware"
	"github.com/road-engineering/dem-elevation/internal/provider"
	"github.com/road-engineering/dem-elevation/internal/ratelimit"
	"github.com/road-engineering/dem-elevation/internal/sampler"
	"github.com/road-engineering/dem-elevation/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// A schema mismatch or structural failure must not serve: exit 2.
	idx, err := index.Load(cfg.Index.Path)
	if err != nil {
		slog.Error("spatial index unusable", "path", cfg.Index.Path, "error", err)
		os.Exit(2)
	}

	// Source catalog is validated at startup; incomplete descriptors
	// reject the whole document.
	catalog, err := config.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		slog.Error("source catalog rejected", "path", cfg.Catalog.Path, "error", err)
		os.Exit(2)
	}

	ctx := context.Background()

	store, err := storage.NewS3Store(ctx, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Anonymous)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	// Redis backs both the result cache and the distributed limiter.
	// The cache is optional; the limiter degrades per its fallback mode.
	var redisClient *redis.Client
	redisCache, err := cache.New()
	if err != nil {
		slog.Warn("redis cache initialization failed, caching disabled", "error", err)
	} else {
		redisClient = redisCache.Client()
		defer redisCache.Close()
	}

	limiter := ratelimit.New(redisClient, cfg.RateLimiter.FallbackMode)

	providerChain, err := provider.BuildChain(cfg.Providers, limiter)
	if err != nil {
		log.Fatalf("Failed to build provider chain: %v", err)
	}
	slog.Info("provider chain configured", "providers", len(providerChain))

	demSampler := sampler.New(store)
	defer demSampler.Close()

	eng := engine.New(idx, catalog, demSampler, providerChain)

	h := handlers.New(eng)
	if redisCache != nil {
		h.SetCache(redisCache)
	}

	requestLimiter := custommw.NewRateLimit(limiter)

	r := chi.NewRouter()
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.Logger)
	r.Use(custommw.Recoverer)
	r.Use(custommw.Timeout(30 * time.Second))
	r.Use(custommw.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(custommw.ContentType("application/json"))
		r.Use(requestLimiter.Middleware)

		r.Get("/elevation/point", h.GetElevation)
		r.Post("/elevation/point", h.GetElevation)
		r.Post("/elevation/points", h.GetElevations)
		r.Get("/elevation/coverage", h.GetCoverageSummary)

		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/campaigns/in-bounds", h.CampaignsInBounds)
		r.Get("/campaigns/clusters", h.CampaignClusters)
		r.Get("/campaigns/{id}", h.GetCampaign)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"environment", cfg.Server.Environment,
			"tiles", idx.TotalTileCount,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("server exited")
}
