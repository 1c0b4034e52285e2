// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cache"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/app/handlers"
	"github.com/wertlabs/eventfunnel/app/middleware"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app                *fiber.App
	cfg                *config.ProductionConfig
	linkHandler        *handlers.LinkHandler
	trackingHandler    *handlers.TrackingHandler
	statsHandler       *handlers.StatsHandler
	aggregationHandler *handlers.AggregationHandler
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	linkHandler *handlers.LinkHandler,
	trackingHandler *handlers.TrackingHandler,
	statsHandler *handlers.StatsHandler,
	aggregationHandler *handlers.AggregationHandler,
) Router {
	// Configure Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "EventFunnel API",
		ServerHeader: "EventFunnel",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:                app,
		cfg:                cfg,
		linkHandler:        linkHandler,
		trackingHandler:    trackingHandler,
		statsHandler:       statsHandler,
		aggregationHandler: aggregationHandler,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// Prometheus scrape endpoint (outside /api/v1, no rate limiting)
	if r.cfg.Server.EnableMetrics {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// API documentation route (development only)
	if os.Getenv("APP_ENV") == "development" || os.Getenv("APP_ENV") == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		log.Println("API documentation enabled for development")
	}

	// Apply general rate limiting to all API routes (aligned with nginx)
	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			// Skip rate limiting for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	// Public tracking endpoints with their own rate limit budget. These are
	// hit by landing pages and form widgets, not operators, so they stay
	// outside the API key requirement.
	track := api.Group("/track")
	track.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.TrackingRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: rateLimitReached,
	}))
	track.Post("/visit", r.trackingHandler.RecordVisit)
	track.Post("/conversion", r.trackingHandler.RecordConversion)

	// Cron endpoints authenticate with X-Cron-Secret inside the handler
	api.Post("/cron/aggregate", r.aggregationHandler.TriggerAggregation)

	// Management endpoints require an API key when configured
	apiKey := middleware.NewAPIKeyMiddleware(r.cfg.Security)

	links := api.Group("/links", apiKey.Require())
	links.Post("/", r.linkHandler.CreateLink)
	links.Get("/", r.linkHandler.ListLinks)
	links.Put("/:uuid", r.linkHandler.UpdateLink)
	links.Delete("/:uuid", r.linkHandler.ArchiveLink)

	stats := api.Group("/stats", apiKey.Require())
	stats.Get("/", r.statsHandler.ListStats)
	stats.Get("/export", r.statsHandler.ExportStats)

	corrections := api.Group("/corrections", apiKey.Require())
	corrections.Post("/reattribute", r.aggregationHandler.Reattribute)
	corrections.Post("/reconcile", r.aggregationHandler.Reconcile)
	corrections.Post("/entry", r.aggregationHandler.CorrectEntry)
	corrections.Post("/recover", r.aggregationHandler.RecoverEntries)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// SetupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000, // 1 year
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// CORS middleware with production settings. Tracking endpoints are
	// called from arbitrary landing pages, so origins come from config.
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.cfg.Security.AllowedOrigins,
		AllowMethods: r.cfg.Security.AllowedMethods,
		AllowHeaders: r.cfg.Security.AllowedHeaders,
		ExposeHeaders: []string{
			"X-Request-ID",
			"X-Response-Time",
		},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	// Compression middleware for performance
	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// Skip compression for spreadsheet exports, xlsx is already deflated
				contentType := c.Get("Content-Type")
				return contains(contentType, "image/") ||
					contains(contentType, "spreadsheetml")
			},
		}))
	}

	// Cache middleware for static content
	r.app.Use(cache.New(cache.Config{
		Next: func(c fiber.Ctx) bool {
			// Only cache GET requests to specific endpoints
			return c.Method() != "GET" ||
				!contains(c.Path(), "/health") &&
					!contains(c.Path(), "/docs")
		},
		Expiration:          30 * time.Minute,
		DisableCacheControl: false,
	}))

	// Advanced logging middleware
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks and metrics scrapes
			return c.Path() == "/api/v1/health" || c.Path() == "/metrics"
		},
	}))

	// Prometheus HTTP metrics
	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}

	// Custom response headers
	r.app.Use(r.responseHeaders)

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Custom response header middleware
func (r *FiberRouter) responseHeaders(c fiber.Ctx) error {
	c.Set("X-Response-Time", utils.UTCNow().Format(time.RFC3339))
	c.Set("Server", "EventFunnel")
	return c.Next()
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "eventfunnel-api",
		},
	})
}

// API documentation endpoint
func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	docs := GetRouteDocumentation()
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       "EventFunnel API Documentation",
			"version":     "1.0.0",
			"description": "Campaign link tracking, conversion attribution, and daily statistics API",
			"endpoints":   docs,
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Rate limit response shared by both limiter zones
func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	// Get RequestID for tracing
	requestID := c.Locals("requestid")

	// Return JSON error response
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// contains checks if a string contains a substring
func contains(str, substr string) bool {
	return strings.Contains(str, substr)
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/track/visit",
			"description": "Record a landing page visit with its tracking parameters",
			"parameters": map[string]any{
				"session_id":   "string (optional) - Browser session identifier",
				"campaign_id":  "number (optional) - Target campaign, exactly one of campaign_id/webinar_id",
				"webinar_id":   "number (optional) - Target webinar, exactly one of campaign_id/webinar_id",
				"referrer":     "string (optional) - Document referrer",
				"cid":          "string (optional) - Campaign link short code",
				"utm_source":   "string (optional) - UTM source",
				"utm_medium":   "string (optional) - UTM medium",
				"utm_campaign": "string (optional) - UTM campaign",
				"utm_term":     "string (optional) - UTM term",
				"utm_content":  "string (optional) - UTM content",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/track/conversion",
			"description": "Record a form submission and allocate its survey number",
			"parameters": map[string]any{
				"campaign_id": "number (required) - Target campaign",
				"session_id":  "string (optional) - Browser session identifier",
				"name":        "string (required) - Respondent name",
				"company":     "string (optional) - Respondent company",
				"phone":       "string (required) - Respondent phone number",
				"form_data":   "object (optional) - Additional survey answers",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/links",
			"description": "Create a tracked campaign link",
			"parameters": map[string]any{
				"client_id":       "number (required) - Owning client",
				"campaign_id":     "number (optional) - Target campaign, exactly one of campaign_id/webinar_id",
				"webinar_id":      "number (optional) - Target webinar, exactly one of campaign_id/webinar_id",
				"name":            "string (required) - Link name, unique per client",
				"cid":             "string (optional) - Short code, generated when omitted",
				"landing_variant": "string (optional) - welcome|register|survey",
				"utm_source":      "string (optional) - UTM source",
				"utm_medium":      "string (optional) - UTM medium",
				"utm_campaign":    "string (optional) - UTM campaign",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/stats",
			"description": "List daily stat buckets for a date range",
			"parameters": map[string]any{
				"client_id":   "number (required) - Owning client",
				"campaign_id": "number (optional) - Restrict to one campaign",
				"from":        "string (required) - Start date, YYYY-MM-DD inclusive",
				"to":          "string (required) - End date, YYYY-MM-DD inclusive",
			},
		},
		{
			"method":      "POST",
			"path":        "/api/v1/cron/aggregate",
			"description": "Recompute daily stat buckets for a date range, authenticated with X-Cron-Secret",
			"parameters": map[string]any{
				"from":      "string (required) - Start date, YYYY-MM-DD inclusive",
				"to":        "string (required) - End date, YYYY-MM-DD inclusive",
				"client_id": "number (optional) - Restrict to one client",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
			"parameters":  map[string]any{},
		},
	}
}
