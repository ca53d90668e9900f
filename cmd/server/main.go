package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deltaframe/internal/config"
	"deltaframe/internal/controller"
	"deltaframe/internal/delta"
	"deltaframe/internal/logging"
	"deltaframe/internal/metrics"
	"deltaframe/internal/middleware"
	"deltaframe/internal/repository"
	"deltaframe/internal/security"
	"deltaframe/internal/service"
	"deltaframe/internal/storage"
)

func main() {
	// Load configuration; DELTAFRAME_CONFIG points at an explicit file
	cfg, err := config.Load(os.Getenv("DELTAFRAME_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal("Failed to initialize logging:", err)
	}
	defer logging.Sync()
	logger := logging.GetLogger("server")

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics registry shared by the reader and the HTTP layer
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize the table catalog
	db, tableRepo, err := initCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize catalog", zap.Error(err))
	}

	// Initialize the resolver
	resolverOpts := []delta.ResolverOption{
		delta.WithLogger(logging.GetLogger("delta")),
		delta.WithMetrics(metrics.NewReaderMetrics(registry)),
		delta.WithConcurrency(cfg.Reader.Concurrency),
		delta.WithBatchSize(cfg.Reader.BatchSize),
	}
	var cache *delta.SnapshotCache
	if cfg.Reader.CacheEnabled {
		cache = delta.NewSnapshotCache(cfg.Reader.CacheTTL)
		cache.Start(ctx)
		defer cache.Stop()
		resolverOpts = append(resolverOpts, delta.WithCache(cache))
	}
	stores := storage.NewRegistryFromConfig(cfg.Storage)
	resolver := delta.NewResolver(stores, resolverOpts...)

	// Initialize services
	usage := service.NewUsageCollector(24 * time.Hour)
	usage.StartCleanupRoutine(ctx)
	tableService := service.NewTableService(tableRepo, resolver, cache, usage,
		service.TableServiceConfig{MaxReadRows: cfg.Reader.MaxReadRows}, logging.GetLogger("tables"))

	// Initialize HTTP middleware
	httpMetrics := middleware.NewHTTPMetrics(registry)
	routerCfg := controller.RouterConfig{
		Tables:   controller.NewTableController(tableService, usage, logging.GetLogger("controller")),
		Health:   controller.NewHealthController(db, cache),
		Metrics:  httpMetrics,
		Gatherer: registry,
		Logger:   logging.GetLogger("http"),
	}
	if cfg.Security.EnableAuth {
		jwtManager := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTExpiration)
		routerCfg.Auth = security.NewAuthMiddleware(jwtManager)
	}
	if cfg.Security.EnableRateLimit {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPM:             cfg.Security.RateLimitPerMinute,
			Burst:           cfg.Security.RateLimitBurst,
			CleanupInterval: 5 * time.Minute,
		}, httpMetrics)
		rateLimiter.Start(ctx)
		routerCfg.RateLimiter = rateLimiter
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      controller.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.Strings("schemes", stores.Supported()),
			zap.String("catalog", cfg.Catalog.Driver),
			zap.Bool("auth", cfg.Security.EnableAuth))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// initCatalog returns the catalog repository; db is nil for the memory driver
func initCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gorm.DB, repository.TableRepository, error) {
	if cfg.Catalog.Driver != "mysql" {
		logger.Warn("Using in-memory table catalog; registrations are lost on restart")
		return nil, repository.NewMemoryTableRepository(), nil
	}

	db, err := config.InitCatalogDatabase(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.AutoMigrate(ctx, db); err != nil {
		logger.Warn("Catalog migration failed, continuing with existing schema", zap.Error(err))
	}
	return db, repository.NewTableRepository(db), nil
}
