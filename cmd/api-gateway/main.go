package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/cmd/api-gateway/middleware"
	"github.com/lgulliver/jarhub/cmd/api-gateway/routes"
	"github.com/lgulliver/jarhub/internal/artifact"
	"github.com/lgulliver/jarhub/internal/auth"
	"github.com/lgulliver/jarhub/internal/common"
	"github.com/lgulliver/jarhub/internal/metadata"
	"github.com/lgulliver/jarhub/internal/registry"
	"github.com/lgulliver/jarhub/internal/scanner"
	"github.com/lgulliver/jarhub/internal/storage"
	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Msg("Starting jarhub API gateway")

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Initialize cache
	var cache common.CacheStore = common.NoopCache{}
	var cachePinger routes.Pinger
	if cfg.Redis.Enabled {
		redisCache, err := common.NewCache(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisCache.Close()
		cache = redisCache
		cachePinger = redisCache
	}

	// Initialize storage
	storageFactory := storage.NewStorageFactory(&cfg.Storage)
	blobStorage, err := storageFactory.CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	contentScanner, err := scanner.New(&cfg.Scanner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scanner")
	}

	// Initialize services
	authService := auth.NewService(db, cache, &cfg.Auth, cfg.Cache.ProfileTTL)
	registryService := registry.NewService(db, blobStorage, registry.Options{
		Validator:        artifact.NewValidator(&cfg.Upload),
		Scanner:          contentScanner,
		Cache:            cache,
		PackageTTL:       cfg.Cache.PackageTTL,
		LicenseAllowList: cfg.Upload.LicenseAllowList,
	})

	router := setupRouter(cfg, &routes.Dependencies{
		Auth:           authService,
		Registry:       registryService,
		Analytics:      metadata.NewService(db),
		Cache:          cachePinger,
		Scanner:        contentScanner,
		PublicURL:      cfg.Server.PublicURL,
		StaticDir:      cfg.Web.StaticDir,
		MaxUploadBytes: cfg.Upload.MaxSizeBytes,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}

func setupRouter(cfg *config.Config, deps *routes.Dependencies) *gin.Engine {
	// Set Gin mode based on log level
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())

	if cfg.Storage.Type == "local" {
		router.Static("/files", cfg.Storage.LocalPath)
	}

	routes.Register(router, deps)
	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
