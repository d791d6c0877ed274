package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/payments"
)

// RegisterPaymentRoutes wires wallet-to-wallet payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idempotent fiber.Handler) {
	r.Post("/transfer", idempotent, h.Transfer)
	r.Post("/scan-qr", idempotent, h.ScanQR)
	r.Get("/qr", h.QR)
}
