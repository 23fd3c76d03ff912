// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/app/handlers"
	"github.com/amirphl/medipay/app/middleware"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/docs"
	"github.com/amirphl/medipay/utils"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Payment  handlers.PaymentHandlerInterface
	Refund   handlers.RefundHandlerInterface
	Balance  handlers.BalanceHandlerInterface
	Settings handlers.PaymentSettingsHandlerInterface
	Callback handlers.PaymentCallbackHandlerInterface
	Admin    handlers.PaymentAdminHandlerInterface
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app          *fiber.App
	cfg          *config.ProductionConfig
	handlers     Handlers
	auth         *middleware.AuthMiddleware
	healthChecks map[string]HealthCheck
	logger       *zap.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware, healthChecks map[string]HealthCheck, log *zap.Logger) Router {
	r := &FiberRouter{
		cfg:          cfg,
		handlers:     h,
		auth:         auth,
		healthChecks: healthChecks,
		logger:       log,
	}

	fiberCfg := fiber.Config{
		AppName:      "MediPay Payment API",
		ServerHeader: "MediPay",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		fiberCfg.TrustProxy = true
		fiberCfg.TrustProxyConfig = fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies}
		fiberCfg.ProxyHeader = cfg.Server.ProxyHeader
	}
	r.app = fiber.New(fiberCfg)

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	r.app.Get("/health", r.healthCheck)
	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, middleware.MetricsHandler())
	}
	r.app.Get("/swagger/doc.json", r.serveSwaggerJSON)

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	// Gateway notifications are unauthenticated; their signature is the credential
	callbacks := api.Group("/payments/callback")
	callbacks.Use(r.rateLimiter(r.cfg.Security.CallbackRateLimit))
	callbacks.Post("/alipay", r.handlers.Callback.AlipayCallback)
	callbacks.Post("/wechat", r.handlers.Callback.WechatCallback)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit))

	prices := api.Group("/payments/prices")
	prices.Get("/", r.handlers.Settings.ListPrices)
	prices.Get("/:service_type", r.handlers.Settings.GetPrice)

	payments := api.Group("/payments", r.auth.Authenticate())
	payments.Post("/orders", r.handlers.Payment.CreateOrder)
	payments.Get("/orders", r.handlers.Payment.ListOrders)
	payments.Get("/orders/by-number/:order_no", r.handlers.Payment.GetOrderByNumber)
	payments.Get("/orders/:uuid", r.handlers.Payment.GetOrder)
	payments.Post("/orders/:uuid/cancel", r.handlers.Payment.CancelOrder)
	payments.Post("/orders/:uuid/pay", r.handlers.Payment.InitiatePayment)
	payments.Get("/statistics", r.handlers.Payment.GetStatistics)

	payments.Post("/refunds", r.handlers.Refund.CreateRefund)
	payments.Get("/refunds/:uuid", r.handlers.Refund.GetRefund)
	payments.Post("/refunds/:uuid/review", r.handlers.Refund.ReviewRefund)

	payments.Get("/balance", r.handlers.Balance.GetBalance)
	payments.Get("/balance/transactions", r.handlers.Balance.ListTransactions)

	admin := api.Group("/admin/payments", r.auth.AdminAuthenticate())
	admin.Get("/config/:payment_method", r.handlers.Settings.GetGatewayConfig)
	admin.Put("/config/:payment_method", r.handlers.Settings.UpdateGatewayConfig)
	admin.Post("/balances/adjust", r.handlers.Balance.AdjustBalance)
	admin.Get("/orders/export", r.handlers.Admin.ExportOrders)
	admin.Post("/transactions/:uuid/reconcile", r.handlers.Admin.ReconcileTransaction)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    utils.RequestIDKey,
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				zap.Any("error", e),
				zap.String("request_id", requestid.FromContext(c)),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
			)
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path))
	}

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             r.cfg.Security.XFrameOptions,
		HSTSMaxAge:                31536000,
		ReferrerPolicy:            r.cfg.Security.ReferrerPolicy,
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	maxAge := r.cfg.Security.CORSMaxAge
	if maxAge == 0 {
		maxAge = utils.CORSMaxAge
	}
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{utils.RequestIDKey, "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           maxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/api/v1/health"
			},
		}))
	}
}

func (r *FiberRouter) rateLimiter(limit int) fiber.Handler {
	window := r.cfg.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/health")
		},
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", zap.String("address", address))
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown drains in-flight requests until ctx expires
func (r *FiberRouter) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := make(map[string]string, len(r.healthChecks))
	for name, check := range r.healthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	return c.Status(status).JSON(dto.APIResponse{
		Success: status == fiber.StatusOK,
		Message: "Service health",
		Data: fiber.Map{
			"checks":    checks,
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "medipay-api",
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return r.errorHandler(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

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

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
		errCode = "HTTP_ERROR"
	}
	if code >= fiber.StatusInternalServerError {
		r.logger.Error("request failed", zap.Int("status", code), zap.Error(err), zap.String("path", c.Path()))
	}

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
