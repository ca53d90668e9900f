package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deltaframe/internal/middleware"
	"deltaframe/internal/security"
	"deltaframe/pkg/response"
)

// RouterConfig carries the handlers and middleware of the HTTP API.
// Optional parts are left nil to disable them.
type RouterConfig struct {
	Tables      *TableController
	Health      *HealthController
	Auth        *security.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// NewRouter builds the gin engine serving the API
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.Logger != nil {
		router.Use(middleware.RequestLogger(cfg.Logger))
	}
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}

	// Health and metrics endpoints are always available
	router.GET("/health", cfg.Health.HealthCheck)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	if cfg.Auth != nil {
		api.Use(cfg.Auth.RequireAuth())
	}
	// after auth so authenticated callers are limited per user
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.RateLimit())
	}

	admin := []gin.HandlerFunc{}
	if cfg.Auth != nil {
		admin = append(admin, cfg.Auth.RequireRole(security.RoleAdmin))
	}

	tables := api.Group("/tables")
	{
		tables.POST("", append(admin, cfg.Tables.RegisterTable)...)
		tables.GET("", cfg.Tables.ListTables)
		tables.GET("/:name", cfg.Tables.GetTable)
		tables.DELETE("/:name", append(admin, cfg.Tables.DeleteTable)...)
		tables.GET("/:name/history", cfg.Tables.TableHistory)
	}
	api.POST("/resolve", cfg.Tables.ResolveTable)
	api.POST("/read", cfg.Tables.ReadTable)
	api.GET("/stats", cfg.Tables.UsageStats)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.NotFoundResponse("Route not found", getCorrelationID(c)))
	})

	return router
}
