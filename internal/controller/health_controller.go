package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"deltaframe/internal/delta"
)

// Version is reported by the health endpoint
var Version = "dev"

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Catalog   CatalogStatus     `json:"catalog"`
	Cache     *delta.CacheStats `json:"cache,omitempty"`
}

type CatalogStatus struct {
	Driver  string            `json:"driver"`
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type HealthController struct {
	db      *gorm.DB
	cache   *delta.SnapshotCache
	started time.Time
}

// NewHealthController creates a HealthController. db is nil for the in
// memory catalog and cache is nil when snapshot caching is disabled.
func NewHealthController(db *gorm.DB, cache *delta.SnapshotCache) *HealthController {
	return &HealthController{
		db:      db,
		cache:   cache,
		started: time.Now(),
	}
}

func (hc *HealthController) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "deltaframe",
		Version:   Version,
		Uptime:    time.Since(hc.started).Round(time.Second).String(),
		Catalog:   hc.catalogStatus(c.Request.Context()),
	}
	if response.Catalog.Status != "connected" {
		response.Status = "unhealthy"
	}
	if hc.cache != nil {
		stats := hc.cache.Stats()
		response.Cache = &stats
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func (hc *HealthController) catalogStatus(ctx context.Context) CatalogStatus {
	if hc.db == nil {
		return CatalogStatus{Driver: "memory", Status: "connected"}
	}

	status := CatalogStatus{Driver: "mysql"}
	sqlDB, err := hc.db.DB()
	if err != nil {
		status.Status = "disconnected"
		status.Message = "Failed to get database instance"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		status.Status = "disconnected"
		status.Message = "Database ping failed: " + err.Error()
		return status
	}

	stats := sqlDB.Stats()
	status.Status = "connected"
	status.Details = map[string]string{
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}
	return status
}
