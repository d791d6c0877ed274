package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck checks one dependency. Optional checks report their status
// without failing readiness.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, checks []HealthCheck) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := fiber.Map{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				report[hc.Name] = err.Error()
				if !hc.Optional {
					status = http.StatusServiceUnavailable
				}
				continue
			}
			report[hc.Name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    report,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
