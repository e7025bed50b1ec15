// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/handlers"
	"github.com/amirphl/Orochi-WhatsApp/app/middleware"
	"github.com/amirphl/Orochi-WhatsApp/config"
	_ "github.com/amirphl/Orochi-WhatsApp/docs"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// HealthCheck probes one dependency; a non-nil error marks the service degraded
type HealthCheck func(ctx context.Context) error

// Handlers groups the resource handlers mounted by the router
type Handlers struct {
	Template       handlers.TemplateHandlerInterface
	Contact        handlers.ContactHandlerInterface
	WhatsAppNumber handlers.WhatsAppNumberHandlerInterface
	Campaign       handlers.CampaignHandlerInterface
	Webhook        *handlers.WebhookHandler
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	config         *config.ProductionConfig
	handlers       Handlers
	authMiddleware *middleware.AuthMiddleware
	healthChecks   map[string]HealthCheck
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, authMiddleware *middleware.AuthMiddleware, healthChecks map[string]HealthCheck) Router {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024 // 4MB
	}

	app := fiber.New(fiber.Config{
		AppName:      "Orochi WhatsApp API",
		ServerHeader: "Orochi-WhatsApp",
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		config:         cfg,
		handlers:       h,
		authMiddleware: authMiddleware,
		healthChecks:   healthChecks,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	if r.config.Metrics.Enabled {
		r.app.Get(r.metricsPath(), adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// API documentation route (development only)
	if r.config.Deployment.IsDevelopment() {
		api.Get("/swagger.json", r.serveSwaggerJSON)
		log.Println("API documentation enabled for development")
	}

	// Provider callbacks carry their own credentials and get a separate budget
	webhooks := api.Group("/webhooks")
	webhooks.Use(r.rateLimiter(r.config.Security.WebhookRateLimit))
	webhooks.Get("/whatsapp", r.handlers.Webhook.VerifySubscription)
	webhooks.Post("/whatsapp", r.handlers.Webhook.ReceiveEvents)

	// Operator routes
	protected := api.Group("", r.rateLimiter(r.config.Security.GlobalRateLimit), r.authMiddleware.Authenticate())

	templates := protected.Group("/templates")
	templates.Post("/", r.handlers.Template.CreateTemplate)
	templates.Get("/", r.handlers.Template.ListTemplates)
	templates.Get("/:id", r.handlers.Template.GetTemplate)
	templates.Put("/:id", r.handlers.Template.UpdateTemplate)
	templates.Post("/:id/submit", r.handlers.Template.SubmitTemplate)
	templates.Post("/:id/approve", r.handlers.Template.ApproveTemplate)
	templates.Post("/:id/reject", r.handlers.Template.RejectTemplate)
	templates.Post("/:id/revise", r.handlers.Template.ReviseTemplate)
	templates.Post("/:id/preview", r.handlers.Template.PreviewTemplate)

	contacts := protected.Group("/contacts")
	contacts.Post("/", r.handlers.Contact.CreateContact)
	contacts.Post("/import", r.handlers.Contact.ImportContacts)
	contacts.Get("/", r.handlers.Contact.ListContacts)
	contacts.Get("/:id", r.handlers.Contact.GetContact)
	contacts.Put("/:id", r.handlers.Contact.UpdateContact)
	contacts.Delete("/:id", r.handlers.Contact.DeleteContact)

	numbers := protected.Group("/whatsapp-numbers")
	numbers.Post("/", r.handlers.WhatsAppNumber.CreateNumber)
	numbers.Get("/", r.handlers.WhatsAppNumber.ListNumbers)
	numbers.Get("/:id", r.handlers.WhatsAppNumber.GetNumber)
	numbers.Put("/:id", r.handlers.WhatsAppNumber.UpdateNumber)
	numbers.Post("/:id/verify", r.handlers.WhatsAppNumber.VerifyNumber)

	campaigns := protected.Group("/campaigns")
	campaigns.Post("/", r.handlers.Campaign.CreateCampaign)
	campaigns.Get("/", r.handlers.Campaign.ListCampaigns)
	campaigns.Get("/:id", r.handlers.Campaign.GetCampaign)
	campaigns.Post("/:id/start", r.handlers.Campaign.StartCampaign)
	campaigns.Post("/:id/cancel", r.handlers.Campaign.CancelCampaign)
	campaigns.Post("/:id/retry", r.handlers.Campaign.RetryFailedMessages)
	campaigns.Get("/:id/statistics", r.handlers.Campaign.GetStatistics)
	campaigns.Get("/:id/messages", r.handlers.Campaign.ListMessageLogs)
	campaigns.Get("/:id/report", r.handlers.Campaign.ExportReport)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) metricsPath() string {
	if r.config.Metrics.Path != "" {
		return r.config.Metrics.Path
	}
	return "/metrics"
}

func (r *FiberRouter) rateLimiter(limit int) fiber.Handler {
	if limit <= 0 {
		limit = 2000
	}
	window := r.config.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP() // Rate limit by IP
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	})
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

	// Recovery middleware reports to Sentry when a hub is configured
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetTag("request_id", requestid.FromContext(c))
			hub.Scope().SetTag("path", c.Path())
			hub.Recover(e)
		},
	}))

	r.app.Use(middleware.Metrics(r.metricsPath()))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000, // 1 year
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     "default-src 'self'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	sec := r.config.Security
	maxAge := sec.CORSMaxAge
	if maxAge <= 0 {
		maxAge = utils.CORSMaxAge
	}
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     sec.AllowedOrigins,
		AllowMethods:     sec.AllowedMethods,
		AllowHeaders:     sec.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: sec.AllowCredentials && !slices.Contains(sec.AllowedOrigins, "*"),
		MaxAge:           maxAge,
	}))

	if r.config.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// Workbooks are already zip archives
				return strings.HasSuffix(c.Path(), "/report")
			},
		}))
	}

	// Advanced logging middleware
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath || c.Path() == r.metricsPath()
		},
	}))

	// Custom security middleware
	r.app.Use(r.securityMiddleware)
}

// Custom security middleware
func (r *FiberRouter) securityMiddleware(c fiber.Ctx) error {
	c.Set("X-Response-Time", utils.UTCNow().Format(time.RFC3339))

	if slices.Contains(r.config.Security.IPBlacklist, c.IP()) {
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
			Success: false,
			Message: "Access denied from this IP address",
			Error: dto.ErrorDetail{
				Code: "ACCESS_DENIED",
			},
		})
	}

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
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := make(fiber.Map, len(r.healthChecks))
	healthy := true
	for name, check := range r.healthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	data := fiber.Map{
		"status":    "ok",
		"timestamp": utils.UTCNow().Unix(),
		"version":   r.config.Deployment.Version,
		"service":   "orochi-whatsapp-api",
		"checks":    checks,
	}
	if !healthy {
		data["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is degraded",
			Data:    data,
			Error:   dto.ErrorDetail{Code: "SERVICE_DEGRADED"},
		})
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}

// Serve Swagger JSON specification
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		// Fall back to a generated file when the docs package was not registered
		data, ferr := os.ReadFile("docs/swagger.json")
		if ferr != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
				Success: false,
				Message: "Failed to load Swagger documentation",
				Error: dto.ErrorDetail{
					Code:    "SWAGGER_LOAD_ERROR",
					Details: fmt.Sprintf("%v; %v", err, ferr),
				},
			})
		}
		doc = string(data)
	}

	c.Set("Content-Type", "application/json")
	return c.SendString(doc)
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errCode = "REQUEST_ERROR"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
