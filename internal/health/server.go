// Package health exposes a tiny HTTP liveness endpoint for container
// orchestrators.
package health

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Server serves GET /health and /healthz.
type Server struct {
	app     *fiber.App
	logger  *slog.Logger
	started time.Time
}

// New creates the health server.
func New(logger *slog.Logger) *Server {
	s := &Server{
		logger:  logger.With("component", "health"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	handler := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	}
	app.Get("/health", handler)
	app.Get("/healthz", handler)

	s.app = app
	return s
}

// Listen blocks serving the endpoint until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("health endpoint listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
