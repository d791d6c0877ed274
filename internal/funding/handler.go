package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/money"
)

// Handler exposes HTTP endpoints for wallet funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AddMoney credits a wallet.
func (h *Handler) AddMoney(c *fiber.Ctx) error {
	var req AddMoneyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	balance, err := h.service.AddMoney(c.UserContext(), req.Email, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(AddMoneyResponse{Message: "Money added", NewBalance: balance})
}

// Recharge pays for a mobile recharge from the wallet.
func (h *Handler) Recharge(c *fiber.Ctx) error {
	var req RechargeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.service.Recharge(c.UserContext(), RechargeInput{
		Email:  req.Email,
		Mobile: req.Mobile,
		Amount: req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(RechargeResponse{
		Message:          "Recharge successful",
		RechargedTo:      result.RechargedTo,
		RemainingBalance: result.RemainingBalance,
		Reference:        result.Reference,
	})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			return err
		}
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
