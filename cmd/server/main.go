package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/aiplaza/serving-client/internal/client"
	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/handler"
	"github.com/aiplaza/serving-client/internal/logging"
	"github.com/aiplaza/serving-client/internal/middleware"
	"github.com/aiplaza/serving-client/internal/service"
	ws "github.com/aiplaza/serving-client/internal/websocket"
	"github.com/aiplaza/serving-client/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sugar, err := logging.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = sugar.Sync() }()

	// Redis backs the rate limiter only; without it requests are not limited
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	rateLimiter := middleware.ConnectRateLimiter(ctx, redisClient, sugar)

	// Object store is optional
	var objects client.ObjectReader
	if cfg.Storage.IsConfigured() {
		storageClient, err := client.NewStorageClient(&cfg.Storage)
		if err != nil {
			sugar.Warnw("Object storage unavailable", "endpoint", cfg.Storage.Endpoint, "error", err)
		} else {
			objects = storageClient
		}
	}

	servingClient, err := client.NewServingClient(&cfg.API, sugar)
	if err != nil {
		sugar.Fatalw("Failed to create serving client", "error", err)
	}

	session := service.NewSessionService(servingClient, objects, &cfg.API, sugar)
	defer session.Close()

	hub := ws.NewHub(sugar)
	go hub.Run()
	defer hub.Stop()

	unsubscribe := session.Subscribe(hub.BroadcastSnapshot)
	defer unsubscribe()

	// Resolve once at startup; POST /api/session/model retries
	if err := session.ResolveModel(ctx); err != nil {
		sugar.Warnw("Model not resolved at startup", "model", cfg.API.ModelName, "error", err)
	}

	validate := validator.New()
	sessionHandler := handler.NewSessionHandler(session, validate)
	modelHandler := handler.NewModelHandler(servingClient, validate)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	handler.RegisterRoutes(app, sessionHandler, modelHandler, rateLimiter, cfg.RateLimit)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/session", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, session.Snapshot())
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		sugar.Info("Shutting down server...")
		session.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			sugar.Errorw("Server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	sugar.Infow("Server starting", "addr", addr, "api", cfg.API.BaseURL, "model", cfg.API.ModelName, "poll_interval", cfg.API.PollInterval, "rate_limit", rateLimiter.Enabled())
	if err := app.Listen(addr); err != nil {
		sugar.Fatalw("Server error", "error", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
