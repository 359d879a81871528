package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nailglow/api/internal/auth"
	"github.com/nailglow/api/internal/client"
	"github.com/nailglow/api/internal/config"
	"github.com/nailglow/api/internal/handler"
	"github.com/nailglow/api/internal/middleware"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/internal/store"
	ws "github.com/nailglow/api/internal/websocket"
	"github.com/nailglow/api/internal/worker"
)

// @title          NailGlow API
// @version        1.0
// @description    Backend API for NailGlow — AI nail-art previews and technician marketing sites.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	fluxClient := client.NewFluxClient(&cfg.Flux)
	siteGenClient := client.NewSiteGenClient(&cfg.SiteGen)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, saved designs keep provider URLs")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize stores and services
	redisStore := store.NewRedis(redisClient)

	creditService := service.NewCreditService(redisStore, cfg.Credits.SignupGrant)
	jobService := service.NewJobService(redisStore)
	historyService := service.NewHistoryService(redisStore)

	var storageClient client.StorageClient
	if r2Client != nil {
		storageClient = r2Client
	}
	designService := service.NewDesignService(creditService, jobService, asynqClient, storageClient, cfg.Credits.CostPerImage)
	siteService := service.NewSiteService(redisStore, historyService, creditService, siteGenClient,
		cfg.Credits.CostPerCustomize, time.Duration(cfg.Generation.SiteTimeout)*time.Second)

	// Initialize handlers
	designHandler := handler.NewDesignHandler(designService, validate)
	siteHandler := handler.NewSiteHandler(siteService, validate)
	creditHandler := handler.NewCreditHandler(creditService, validate, cfg.Webhook.Secret)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    20 * 1024 * 1024, // 20MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"flux":    fluxClient.IsConfigured(),
				"sitegen": siteGenClient.IsConfigured(),
				"r2":      r2Client != nil,
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Internal routes (webhook secret auth, not user auth)
	app.Post("/internal/credits/recharge", creditHandler.Recharge)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Design routes
	designs := api.Group("/designs")
	designs.Post("/generate", rateLimiter.DesignsLimit(cfg.RateLimit.DesignsPerHour), designHandler.Generate)
	designs.Get("/jobs", rateLimiter.PollLimit(cfg.RateLimit.PollPerMin), designHandler.Poll)
	designs.Get("/jobs/:jobId", designHandler.Status)
	designs.Post("/jobs/:jobId/save", designHandler.Save)

	// Site routes
	sites := api.Group("/sites")
	sites.Post("/", rateLimiter.SitesLimit(cfg.RateLimit.SitesPerHour), siteHandler.Create)
	sites.Get("/:siteId", siteHandler.Current)
	sites.Post("/:siteId/customize", rateLimiter.CustomizeLimit(cfg.RateLimit.CustomizePerHour), siteHandler.Customize)
	sites.Post("/:siteId/navigate", siteHandler.Navigate)
	sites.Get("/:siteId/history", siteHandler.History)

	// Credit routes
	api.Get("/credits", creditHandler.Balance)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobService, creditService, fluxClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobService *service.JobService,
	creditService *service.CreditService,
	fluxClient *client.FluxClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueDesigns: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	designWorker := worker.NewDesignWorker(jobService, creditService, fluxClient, hub,
		time.Duration(cfg.Generation.PollInterval)*time.Second,
		time.Duration(cfg.Generation.ArtTimeout)*time.Second)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDesignRender, designWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
