package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp builds the fiber app with every route registered. Access logging
// is skipped when quiet is set.
func NewApp(h *Handler, quiet bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "facematch",
		BodyLimit: 16 * 1024 * 1024,
	})
	app.Use(recover.New())
	if !quiet {
		app.Use(logger.New())
	}

	app.Get("/healthz", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Post("/match", h.Match)
	api.Post("/match/image", h.MatchImage)
	api.Post("/candidates", h.Register)
	api.Get("/candidates/:id", h.GetCandidate)
	api.Delete("/candidates/:id", h.DeleteCandidate)

	admin := app.Group("/admin")
	admin.Post("/snapshot", h.Snapshot)
	admin.Post("/join", h.Join)

	return app
}
