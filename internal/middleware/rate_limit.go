package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"deltaframe/internal/utils"
	"deltaframe/pkg/response"
)

// RateLimiterConfig configuration for rate limiting
type RateLimiterConfig struct {
	// Requests per minute
	RPM int `json:"rpm"`
	// Burst size
	Burst int `json:"burst"`
	// Cleanup interval for inactive clients
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPM:             600,
		Burst:           50,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	config  RateLimiterConfig
	metrics *HTTPMetrics
	clients map[string]*clientLimiter
	mutex   sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitStats contains rate limiting statistics
type RateLimitStats struct {
	ActiveClients int               `json:"activeClients"`
	Config        RateLimiterConfig `json:"config"`
}

// NewRateLimiter creates a new rate limiter. metrics may be nil.
func NewRateLimiter(config RateLimiterConfig, metrics *HTTPMetrics) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.RPM <= 0 {
		config.RPM = defaults.RPM
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	return &RateLimiter{
		config:  config,
		metrics: metrics,
		clients: make(map[string]*clientLimiter),
	}
}

// Start evicts idle clients until ctx is done
func (rl *RateLimiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rl.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evictIdle(now)
			}
		}
	}()
}

// RateLimit creates a rate limiting middleware
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := rl.limiterFor(clientID(c), time.Now())

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RPM))
		if !client.Allow() {
			rl.metrics.recordRateLimited(c)
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.ErrorResponse(
				utils.ErrCodeRateLimitExceeded,
				"Rate limit exceeded. Please try again later.",
				fmt.Sprintf("Maximum %d requests per minute allowed", rl.config.RPM),
				c.GetString(CorrelationIDKey),
			))
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(client.Tokens())))
		c.Next()
	}
}

// Stats returns current rate limiting statistics
func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	return RateLimitStats{
		ActiveClients: len(rl.clients),
		Config:        rl.config,
	}
}

func (rl *RateLimiter) limiterFor(id string, now time.Time) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[id]
	if !exists {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.config.RPM)), rl.config.Burst),
		}
		rl.clients[id] = client
	}
	client.lastSeen = now
	return client.limiter
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for id, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.config.CleanupInterval {
			delete(rl.clients, id)
		}
	}
}

// clientID prefers the authenticated user, then an API key, then the IP
func clientID(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		return "apikey:" + apiKey
	}
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "ip:" + clientIP
}
