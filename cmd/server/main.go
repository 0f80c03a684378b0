package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/ris-viewer-manager/internal/cache"
	"github.com/otcheredev/ris-viewer-manager/internal/config"
	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/otcheredev/ris-viewer-manager/internal/database"
	"github.com/otcheredev/ris-viewer-manager/internal/handlers"
	"github.com/otcheredev/ris-viewer-manager/internal/launch"
	"github.com/otcheredev/ris-viewer-manager/internal/middleware"
	"github.com/otcheredev/ris-viewer-manager/internal/repository"
	"github.com/otcheredev/ris-viewer-manager/internal/search"
	"github.com/otcheredev/ris-viewer-manager/internal/services"
	"github.com/otcheredev/ris-viewer-manager/internal/version"
	"github.com/otcheredev/ris-viewer-manager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting Viewer Manager")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	if err := database.Connect(databaseConfig(cfg)); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize search cache
	searchCache, closeCache := newCache(ctx, cfg)
	defer closeCache()

	// Initialize repositories
	launchRepo := repository.NewLaunchRepository()
	versionRepo := repository.NewVersionRepository()
	auditRepo := repository.NewAuditRepository()

	// Connectors: a broken file at startup is fatal, later reloads keep the
	// running set
	registry := connectors.NewRegistry(searchCache, cfg.Search.CacheTTL)
	defer registry.Close()

	connectorService := services.NewConnectorService(registry, cfg.ConnectorsFile, auditRepo)
	if _, err := connectorService.Reload(ctx); err != nil {
		log.Fatal().Err(err).Str("path", cfg.ConnectorsFile).Msg("Failed to load connectors")
	}

	// Version table
	versions := version.NewStore()
	if err := versions.Refresh(ctx, versionRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to load release versions")
	}
	go versions.RunRefresher(ctx, versionRepo, cfg.Version.RefreshInterval)

	// Initialize services
	viewerService := services.NewViewerService(
		launch.NewResolver(launchRepo),
		search.NewResolver(registry, search.Options{
			Timeout:     cfg.Search.Timeout,
			Concurrency: cfg.Search.Concurrency,
		}),
		version.NewResolver(versions),
		auditRepo,
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(database.Ping, registry, versions)
	viewerHandler := handlers.NewViewerHandler(viewerService)
	connectorHandler := handlers.NewConnectorHandler(connectorService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	admin := func(next http.Handler) http.Handler { return next }
	if cfg.Auth.Enabled {
		admin = middleware.RequireAuthority(cfg.Auth.AdminRole)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(middleware.Authorities(cfg.Auth.Resource))
		}

		r.Post("/launch", viewerHandler.Launch)
		r.Post("/search", viewerHandler.Search)
		r.Get("/version/{version}", viewerHandler.Version)

		// Administration
		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Get("/launches/duplicates", viewerHandler.Duplicates)
			r.Get("/connectors", connectorHandler.List)
			r.Post("/connectors/refresh", connectorHandler.Refresh)
			r.Post("/connectors/{id}/test", connectorHandler.Test)
			r.Get("/connectors/{id}/audit", connectorHandler.Audit)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// SIGHUP reloads the connectors, SIGINT and SIGTERM stop the server
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		log.Info().Msg("SIGHUP received, reloading connectors")
		if infos, err := connectorService.Reload(ctx); err == nil {
			log.Info().Int("connectors", len(infos)).Msg("Connectors reloaded")
		}
	}

	log.Info().Msg("Shutting down server...")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}
}

// newCache returns the configured search cache, or nil when caching is
// disabled
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, func()) {
	if !cfg.Cache.Enabled {
		log.Info().Msg("Search cache disabled")
		return nil, func() {}
	}

	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:      cfg.RedisAddr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "viewer-manager:",
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Str("addr", cfg.RedisAddr()).Msg("Redis cache initialized")
		return redisCache, func() { redisCache.Close() }
	}

	memoryCache := cache.NewMemoryCache()
	log.Info().Msg("Memory cache initialized")
	return memoryCache, func() { memoryCache.Close() }
}
