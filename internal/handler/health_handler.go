package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// healthCheck probes one dependency the pipeline cannot run without.
type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	checks := []healthCheck{
		{name: "database", probe: sqlDB.PingContext},
		{name: "ratelimiter", probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}},
	}

	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler reports not_ready when any dependency probe fails. The batch
// scheduler keeps running either way; readiness only gates traffic routing.
func ReadyzHandler(checks []healthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		results := fiber.Map{}
		ready := true
		for _, check := range checks {
			if err := check.probe(ctx); err != nil {
				results[check.name] = "down"
				ready = false
				continue
			}
			results[check.name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
