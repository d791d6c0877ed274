package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/metrics"
)

// Metrics records request counts and latency by route template.
func Metrics(m *metrics.HTTP) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		path := c.Route().Path
		if path == "" {
			path = "unmatched"
		}
		m.Observe(c.Method(), path, strconv.Itoa(status), time.Since(start))
		return err
	}
}
