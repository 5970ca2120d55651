// Package httpapi wires the HTTP transport (Gin) to the gateway handlers and
// middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, shared-secret
// checks, rate limiting, CORS and security headers.
//
// Route layout:
//   - GET  /health, GET /metrics
//   - POST /webhook/telegram            (X-Telegram-Bot-Api-Secret-Token)
//   - /admin/*                          (X-Admin-Key, rate limited, gzip, CORS)
//   - GET  /swagger/*any                (when SWAGGER_ENABLED)
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-messaging-gateway/internal/config"
	"github.com/tbourn/go-messaging-gateway/internal/http/handlers"
	"github.com/tbourn/go-messaging-gateway/internal/http/middleware"

	// Registers the OpenAPI document served by gin-swagger.
	_ "github.com/tbourn/go-messaging-gateway/docs"
)

// maxBodyBytes caps every request body. Telegram updates are far smaller.
const maxBodyBytes = 1 << 20

// Deps are the services the routes delegate to.
type Deps struct {
	Flow     handlers.UpdateHandler
	Retries  handlers.RetryQueue
	Ledger   handlers.DeliveryLedger
	Webhooks handlers.WebhookRegistrar
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//
// The admin group adds its shared secret, the rate limiter, gzip, CORS and
// security headers. The webhook only adds its own shared secret.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Flow, deps.Retries, deps.Ledger, deps.Webhooks, cfg.Telegram.WebhookSecret)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/webhook/telegram",
		middleware.SharedSecret(middleware.HeaderTelegramSecret, cfg.Telegram.WebhookSecret),
		h.TelegramWebhook,
	)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	admin := groupWithPrefix(r, cfg.AdminBasePath)
	admin.Use(
		corsMiddleware(cfg.CORS),
		middleware.SharedSecret(middleware.HeaderAdminKey, cfg.AdminKey),
		rl.Handler(),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.SecurityHeaders(middleware.SecurityOptions{
			EnableHSTS:   cfg.Security.EnableHSTS,
			HSTSMaxAge:   cfg.Security.HSTSMaxAge,
			NoStore:      true,
			EnablePolicy: true,
		}),
	)
	{
		admin.POST("/flush-retries", h.FlushRetries)
		admin.GET("/retries", h.RetryStatus)
		admin.GET("/deliveries", h.ListDeliveries)
		admin.POST("/webhook", h.SetWebhook)
		admin.DELETE("/webhook", h.DeleteWebhook)
		// Preflight requests carry no admin key; the CORS middleware answers them.
		admin.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}

// corsMiddleware returns the admin CORS posture: any origin when no allowlist
// is configured, otherwise only the listed origins. Credentials are never
// allowed; the admin key travels in a header.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderAdminKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader.
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
