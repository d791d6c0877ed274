package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes onboarding endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// SendOTP issues a verification code, creating the account on first use.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.SendOTP(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "OTP sent successfully to email"})
}

// VerifyOTP marks the account verified.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := h.service.VerifyOTP(c.UserContext(), req.Email, req.OTP); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "OTP verified. You can now proceed."})
}

// Register completes onboarding of a verified account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	acct, err := h.service.Register(c.UserContext(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":   "User registered successfully",
		"accountId": acct.ID,
	})
}
