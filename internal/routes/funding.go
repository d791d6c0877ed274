package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/funding"
)

// RegisterFundingRoutes wires add-money and recharge endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotent fiber.Handler) {
	r.Post("/add-money", idempotent, h.AddMoney)
	r.Post("/recharge", idempotent, h.Recharge)
}
