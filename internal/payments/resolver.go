package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/congo-pay/digiwallet/internal/account"
)

var (
	// ErrMalformedPayload is returned when QR data cannot be decoded into a
	// receiver identifier.
	ErrMalformedPayload = errors.New("malformed QR payload")

	// ErrMissingReceiver is returned when a direct transfer names no receiver.
	ErrMissingReceiver = errors.New("receiver email is required")
)

// qrPayload is the JSON carried by a wallet QR code. Older codes only carry
// email.
type qrPayload struct {
	Email      string `json:"email,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// ResolveDirect turns a receiver email from a transfer form into a lookup
// reference.
func ResolveDirect(email string) (account.Ref, error) {
	ref := account.ByEmail(email).Normalized()
	if ref.Value == "" {
		return account.Ref{}, ErrMissingReceiver
	}
	return ref, nil
}

// ResolveQR decodes scanned QR data. It never touches storage.
func ResolveQR(data string) (account.Ref, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return account.Ref{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	var p qrPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return account.Ref{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if email := strings.TrimSpace(p.Email); email != "" {
		return account.ByEmail(email).Normalized(), nil
	}
	id := strings.TrimSpace(p.Identifier)
	switch {
	case id == "":
		return account.Ref{}, fmt.Errorf("%w: no email or identifier", ErrMalformedPayload)
	case account.ValidMobile(id):
		return account.ByMobile(id), nil
	case strings.Contains(id, "@"):
		return account.ByEmail(id).Normalized(), nil
	default:
		return account.Ref{}, fmt.Errorf("%w: unrecognised identifier %q", ErrMalformedPayload, id)
	}
}

// EncodeQR returns the payload a client renders as the account's QR code.
// Email holders get the legacy shape so older scanners keep working.
func EncodeQR(acct account.Account) (string, error) {
	var p qrPayload
	switch {
	case acct.Email != "":
		p.Email = acct.Email
	case acct.Mobile != "":
		p.Identifier = acct.Mobile
	default:
		return "", fmt.Errorf("account %s has no identifier", acct.ID)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
