package rest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by the database and valkey health checks.
type Pinger func(ctx context.Context) error

type Health struct {
	ServerID string
	Version  string
	Checks   map[string]Pinger
}

func InitRestHealth(router fiber.Router, handler Health) Health {
	router.Get("/health", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	ok := true
	checks := make(map[string]string, len(h.Checks))
	for name, ping := range h.Checks {
		if err := ping(ctx); err != nil {
			ok = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"ok":       ok,
		"serverId": h.ServerID,
		"version":  h.Version,
		"checks":   checks,
	})
}
