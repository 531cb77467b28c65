// Package adminapi is the broker's provisioning and introspection HTTP
// plane: a small Fiber service, separate from the binary socket
// protocol, that mints scoped provisioning tokens and exposes read-only
// operator visibility into rooms, health and metrics.
//
// It never touches the Session table; it only mints JWTs and reads
// through the same repository contracts the broker itself uses.
package adminapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/repository"
)

// Config carries the admin plane's own tunables (§"Admin/provisioning
// plane" in the expanded spec).
type Config struct {
	TokenSecret     string
	DefaultTokenTTL time.Duration
	MaxTokenTTL     time.Duration
}

// Server wraps the Fiber app and its dependencies.
type Server struct {
	app    *fiber.App
	cfg    Config
	rooms  repository.RoomRepository
	logger *zap.Logger
}

// New builds the admin HTTP plane and registers its routes.
func New(cfg Config, rooms repository.RoomRepository, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{app: app, cfg: cfg, rooms: rooms, logger: logger}

	app.Post("/api/v1/tokens", s.issueToken)
	app.Get("/api/v1/rooms", s.listRooms)
	app.Get("/healthz", s.health)
	app.Get("/metrics", s.metrics)

	return s
}

// Listen starts serving on addr; blocks until the listener stops.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
