package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/middleware"
)

// RegisterRoutes mounts the health check and the /api routes on app
func RegisterRoutes(app *fiber.App, sessions *SessionHandler, models *ModelHandler, limiter *middleware.RateLimiter, limits config.RateLimitConfig) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Get("/models", models.List)
	api.Post("/models", limiter.UploadLimit(limits.UploadPerHour), models.Register)

	session := api.Group("/session")
	session.Get("/", sessions.Get)
	session.Post("/model", sessions.ResolveModel)
	session.Post("/file", sessions.SelectFile)
	session.Post("/object", sessions.SelectObject)
	session.Post("/upload", limiter.UploadLimit(limits.UploadPerHour), sessions.Upload)
	session.Post("/run", limiter.RunLimit(limits.RunPerHour), sessions.Run)
	session.Get("/result", sessions.Result)
}
