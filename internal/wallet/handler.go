package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	Message       string       `json:"message"`
	WalletBalance money.Amount `json:"walletBalance"`
}

type transactionsResponse struct {
	Transactions []account.Transaction `json:"transactions"`
}

// Balance returns the authenticated account's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	balance, err := h.service.Balance(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		Message:       "Wallet balance retrieved successfully",
		WalletBalance: balance.Amount,
	})
}

// Transactions lists an account's transactions by email.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	txs, err := h.service.Transactions(c.UserContext(), c.Params("email"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(transactionsResponse{Transactions: txs})
}
