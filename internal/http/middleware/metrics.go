package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Surfaces partition HTTP traffic for dashboards: the platform webhook,
// the scheduler-facing internal API, and probes/docs.
const (
	surfaceWebhook   = "webhook"
	surfaceInternal  = "internal"
	surfaceOps       = "ops"
	surfaceUnmatched = "unmatched"
)

var opsRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_http_requests_total",
			Help: "HTTP requests by surface, method, route and status.",
		},
		[]string{"surface", "method", "route", "status"},
	)

	// The webhook must answer within three seconds, so the buckets are
	// dense below that.
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollcord_http_request_duration_seconds",
			Help:    "HTTP request latency by surface and route.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"surface", "route"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pollcord_http_requests_inflight",
			Help: "HTTP requests currently being served, by surface.",
		},
		[]string{"surface"},
	)

	httpRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollcord_http_rate_limited_total",
			Help: "Internal API requests rejected by the rate limiter, by key kind (caller|ip).",
		},
		[]string{"key_kind"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpRateLimited)
}

// surfaceOf classifies a registered route pattern. Anything that is not
// the webhook, a probe or the docs belongs to the internal API.
func surfaceOf(route string) string {
	switch {
	case route == "":
		return surfaceUnmatched
	case route == "/interactions":
		return surfaceWebhook
	case strings.HasPrefix(route, "/swagger/"):
		return surfaceOps
	}
	if _, ok := opsRoutes[route]; ok {
		return surfaceOps
	}
	return surfaceInternal
}

// Metrics records request counts, latency and concurrency. Routes are
// labelled by their Gin pattern, never the raw URL, so probes for
// nonexistent paths collapse into the "unmatched" series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		surface := surfaceOf(route)
		if route == "" {
			route = surfaceUnmatched
		}

		inflight := httpInflight.WithLabelValues(surface)
		inflight.Inc()
		defer inflight.Dec()

		start := time.Now()
		c.Next()

		httpRequests.WithLabelValues(surface, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(surface, route).Observe(time.Since(start).Seconds())
	}
}
