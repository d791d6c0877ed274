package payments

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/money"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ReceiverEmail string       `json:"receiverEmail"`
	Amount        money.Amount `json:"amount"`
}

type scanRequest struct {
	QRData string       `json:"qrData"`
	Amount money.Amount `json:"amount"`
}

type transferResponse struct {
	Message         string       `json:"message"`
	TransferID      string       `json:"transferId"`
	SenderBalance   money.Amount `json:"senderBalance"`
	ReceiverBalance money.Amount `json:"receiverBalance"`
}

// Transfer moves money to a receiver named by email.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.service.TransferByEmail(c.UserContext(), accountID(c), req.ReceiverEmail, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(newTransferResponse(res, req.Amount))
}

// ScanQR moves money to the receiver encoded in a scanned QR code.
func (h *Handler) ScanQR(c *fiber.Ctx) error {
	var req scanRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.QRData) == "" {
		return fmt.Errorf("%w: qrData is required", ErrMalformedPayload)
	}
	res, err := h.service.TransferByQR(c.UserContext(), accountID(c), req.QRData, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(newTransferResponse(res, req.Amount))
}

// QR returns the payload the client renders as the caller's QR code.
func (h *Handler) QR(c *fiber.Ctx) error {
	data, err := h.service.QRCode(c.UserContext(), accountID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"qrData": data})
}

func newTransferResponse(res ledger.TransferResult, amount money.Amount) transferResponse {
	return transferResponse{
		Message:         fmt.Sprintf("₹%s transferred successfully to %s", amount, res.Receiver),
		TransferID:      res.TransferID,
		SenderBalance:   res.SenderBalance,
		ReceiverBalance: res.ReceiverBalance,
	}
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals("account_id").(string)
	return id
}

// parseBody decodes the JSON body. Amount errors keep their ledger meaning.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			return err
		}
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
