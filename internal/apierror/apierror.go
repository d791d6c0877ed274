package apierror

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/funding"
	"github.com/congo-pay/digiwallet/internal/identity"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/payments"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	TransferID string `json:"transferId,omitempty"`
	Reversed   *bool  `json:"reversed,omitempty"`
}

// Resolve maps err onto an HTTP status and response body. Unknown errors
// become a 500 whose message does not leak internals.
func Resolve(err error) (int, Body) {
	var incomplete *ledger.IncompleteError
	if errors.As(err, &incomplete) {
		reversed := incomplete.Reversed
		msg := "transfer could not be completed; the debit was reversed"
		if !reversed {
			msg = "transfer could not be completed and the debit is pending reversal"
		}
		return http.StatusInternalServerError, Body{
			Error:      "TransferIncomplete",
			Message:    msg,
			TransferID: incomplete.TransferID,
			Reversed:   &reversed,
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, Body{Error: statusCode(fiberErr.Code), Message: fiberErr.Message}
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, Body{Error: m.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, Body{Error: "Internal", Message: "internal server error"}
}

type mapping struct {
	target error
	status int
	code   string
}

// Order matters: specific errors precede the ones they wrap.
var mappings = []mapping{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{ledger.ErrSenderNotFound, http.StatusNotFound, "SenderNotFound"},
	{ledger.ErrReceiverNotFound, http.StatusNotFound, "ReceiverNotFound"},
	{ledger.ErrAccountNotFound, http.StatusNotFound, "AccountNotFound"},
	{ledger.ErrSelfTransfer, http.StatusBadRequest, "SelfTransfer"},
	{ledger.ErrInsufficientFunds, http.StatusBadRequest, "InsufficientFunds"},
	{ledger.ErrConflict, http.StatusConflict, "Conflict"},
	{ledger.ErrStoreUnavailable, http.StatusServiceUnavailable, "StoreUnavailable"},
	{payments.ErrMalformedPayload, http.StatusBadRequest, "MalformedPayload"},
	{payments.ErrMissingReceiver, http.StatusBadRequest, "InvalidRequest"},
	{funding.ErrInvalidMobile, http.StatusBadRequest, "InvalidRequest"},
	{funding.ErrMissingFields, http.StatusBadRequest, "InvalidRequest"},
	{funding.ErrRechargeFailed, http.StatusBadGateway, "RechargeFailed"},
	{identity.ErrInvalidOTP, http.StatusBadRequest, "InvalidOTP"},
	{identity.ErrNotVerified, http.StatusBadRequest, "NotVerified"},
	{identity.ErrMissingFields, http.StatusBadRequest, "InvalidRequest"},
	{identity.ErrAlreadyRegistered, http.StatusConflict, "AlreadyRegistered"},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
	{account.ErrInvalidIdentity, http.StatusBadRequest, "InvalidIdentity"},
	{account.ErrDuplicateIdentity, http.StatusConflict, "DuplicateIdentity"},
	{account.ErrIdentityImmutable, http.StatusConflict, "IdentityImmutable"},
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "Error"
	}
	return strings.ReplaceAll(text, " ", "")
}

// Handler renders errors returned from fiber handlers.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := Resolve(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"code", body.Error,
				"error", err,
			)
		}
		return c.Status(status).JSON(body)
	}
}
