package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the Prometheus metrics of the HTTP layer
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	RateLimited     *prometheus.CounterVec
}

// NewHTTPMetrics registers the HTTP metrics with reg
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltaframe_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deltaframe_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deltaframe_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "endpoint"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deltaframe_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltaframe_http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
	}
}

// Middleware records request metrics
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		endpoint := endpointLabel(c)

		m.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		m.RequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if c.Request.ContentLength > 0 {
			m.RequestSize.WithLabelValues(method, endpoint).Observe(float64(c.Request.ContentLength))
		}
		if c.Writer.Size() > 0 {
			m.ResponseSize.WithLabelValues(method, endpoint).Observe(float64(c.Writer.Size()))
		}
	}
}

func (m *HTTPMetrics) recordRateLimited(c *gin.Context) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(endpointLabel(c)).Inc()
}

// endpointLabel uses the route template to keep label cardinality bounded
func endpointLabel(c *gin.Context) string {
	if endpoint := c.FullPath(); endpoint != "" {
		return endpoint
	}
	return "unmatched"
}
