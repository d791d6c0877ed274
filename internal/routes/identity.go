package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/identity"
)

// RegisterIdentityRoutes wires OTP onboarding endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, rateLimiter fiber.Handler) {
	if rateLimiter != nil {
		r.Post("/send-otp", rateLimiter, h.SendOTP)
	} else {
		r.Post("/send-otp", h.SendOTP)
	}
	r.Post("/verify-otp", h.VerifyOTP)
	r.Post("/register", h.Register)
}
