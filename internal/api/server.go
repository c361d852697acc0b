// Package api exposes the post queue and posting history over HTTP.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
)

type Handlers struct {
	Queue       *handlers.QueueHandler
	Submissions *handlers.SubmissionHandler
}

func NewApp(cfg config.Config, h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := app.Group("/api")
	api.Use(middleware.NewAuthMiddleware(cfg).AuthMiddleware())

	api.Get("/queue", h.Queue.List)
	api.Post("/queue", h.Queue.Enqueue)
	api.Post("/queue/reorder", h.Queue.Reorder)
	api.Post("/queue/cancel", h.Queue.Cancel)

	api.Post("/submissions/:id/schedule", h.Submissions.Schedule)
	api.Get("/submissions/:id/history", h.Submissions.History)
	api.Get("/submissions/:id/post-record", h.Submissions.LatestRecord)
	api.Get("/post-records/:id", h.Submissions.GetRecord)

	return app
}
