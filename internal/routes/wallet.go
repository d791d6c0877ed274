package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints for the caller.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/balance", h.Balance)
}

// RegisterTransactionRoutes wires the transaction history endpoint.
func RegisterTransactionRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/transactions/:email", h.Transactions)
}
