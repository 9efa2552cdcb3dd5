// Package httpapi wires the HTTP transport (Gin) to the bridge's handlers and
// middleware. Two surfaces are served: the platform interactions webhook at
// /interactions and the bearer-guarded internal API under cfg.APIBasePath.
// Tracing, correlation IDs, redacted logging, panic recovery, metrics, CORS
// and security headers apply to both.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/pollcord/internal/config"
	"github.com/tbourn/pollcord/internal/http/handlers"
	"github.com/tbourn/pollcord/internal/http/middleware"
)

// internalCaller names the internal API client in logs and rate-limit keys.
const internalCaller = "scheduler"

// Deps carries what the routes need. Ready reports whether the backing
// stores are reachable; a nil Ready always reports ready.
type Deps struct {
	Verifier     handlers.SignatureVerifier
	Interactions handlers.TaskEnqueuer
	Cards        handlers.CardScheduler
	Events       handlers.EventPublisher
	Links        handlers.LinkCodeIssuer
	Ready        func(ctx context.Context) error
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and signature scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The internal API group adds bearer auth, the rate limiter and gzip.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			handlers.HeaderSignature,
			handlers.HeaderTimestamp,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (the internal API is server-to-server; browsers only
	// reach it from configured origins)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	sec := middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}
	if cfg.SwaggerEnabled {
		sec.DocsPrefix = "/swagger/"
	}
	r.Use(middleware.SecurityHeaders(sec))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/readiness
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
				handlers.Fail(c, http.StatusServiceUnavailable, "unavailable", "dependencies unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Interactions webhook. Every method lands on the handler so non-POST
	// requests get the plain 405 the platform expects.
	ih := handlers.NewInteractionsHandler(deps.Verifier, deps.Interactions, cfg.Discord.ApplicationID)
	r.Any("/interactions", ih.Handle)

	// Internal API
	h := handlers.NewInternal(deps.Cards, deps.Events, deps.Links)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.BearerAuth(cfg.InternalAPIToken, internalCaller),
		rl.Handler(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		// Notifications
		api.POST("/events", h.PublishEvent)

		// Poll cards
		api.POST("/polls/:id/sync", h.SyncPoll)
		api.DELETE("/polls/:id/card", h.DeleteCard)
		api.POST("/cards/reconcile", h.ReconcileCards)

		// Channel linking
		api.POST("/groups/:id/link-code", h.IssueLinkCode)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
