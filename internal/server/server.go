// Package server assembles the HTTP surface of the API.
package server

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/influencerlab/api/internal/handler"
	"github.com/influencerlab/api/internal/middleware"
	ws "github.com/influencerlab/api/internal/websocket"
	"github.com/influencerlab/api/pkg/response"
)

// Limits are per-IP hourly submission quotas.
type Limits struct {
	ImagePerHour int
	VideoPerHour int
}

// Deps are the collaborators routed by New.
type Deps struct {
	Generate    *handler.GenerateHandler
	Health      *handler.HealthHandler
	RateLimiter *middleware.RateLimiter
	Hub         *ws.Hub
	Limits      Limits

	// Materialized videos are served from StaticDir under StaticPrefix.
	StaticPrefix string
	StaticDir    string

	// AccessLogFormat enables the request logger when non-empty.
	AccessLogFormat string
}

// New builds the fiber app with every route registered.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	if d.AccessLogFormat != "" {
		app.Use(logger.New(logger.Config{Format: d.AccessLogFormat}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", d.Health.Health)

	if d.StaticPrefix != "" && d.StaticDir != "" {
		app.Static(d.StaticPrefix, d.StaticDir, fiber.Static{ByteRange: true})
	}

	gen := app.Group("/api/generate")
	gen.Post("/image", d.RateLimiter.ImageLimit(d.Limits.ImagePerHour), d.Generate.Image)
	gen.Post("/video", d.RateLimiter.VideoLimit(d.Limits.VideoPerHour), d.Generate.Video)
	gen.Get("/status/:jobId", d.Generate.Status)
	gen.Get("/result/:jobId", d.Generate.Result)
	gen.Post("/cancel/:jobId", d.Generate.Cancel)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		d.Hub.HandleConnection(c, c.Params("jobId"))
	}))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	return response.FromError(c, err)
}
