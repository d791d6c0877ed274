package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/money"
	"github.com/congo-pay/digiwallet/internal/notification"
)

const (
	DescriptionTransfer = "Wallet transfer"
	DescriptionQR       = "QR payment"
)

// Ledger is the subset of the ledger engine used for payments.
type Ledger interface {
	Transfer(ctx context.Context, in ledger.TransferInput) (ledger.TransferResult, error)
	Lookup(ctx context.Context, ref account.Ref) (account.Account, error)
}

// Service resolves receivers and moves money between wallets.
type Service struct {
	ledger   Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(l Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, notifier: notifier, logger: logger}
}

// TransferByEmail sends amount from the authenticated account to the
// account owning receiverEmail.
func (s *Service) TransferByEmail(ctx context.Context, senderID, receiverEmail string, amount money.Amount) (ledger.TransferResult, error) {
	receiver, err := ResolveDirect(receiverEmail)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	return s.transfer(ctx, senderID, receiver, amount, DescriptionTransfer)
}

// TransferByQR sends amount to the account encoded in scanned QR data. A
// payload that does not decode fails before any state is touched.
func (s *Service) TransferByQR(ctx context.Context, senderID, qrData string, amount money.Amount) (ledger.TransferResult, error) {
	receiver, err := ResolveQR(qrData)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	return s.transfer(ctx, senderID, receiver, amount, DescriptionQR)
}

// QRCode returns the QR payload for the account.
func (s *Service) QRCode(ctx context.Context, accountID string) (string, error) {
	acct, err := s.ledger.Lookup(ctx, account.ByID(accountID))
	if err != nil {
		return "", err
	}
	return EncodeQR(acct)
}

func (s *Service) transfer(ctx context.Context, senderID string, receiver account.Ref, amount money.Amount, description string) (ledger.TransferResult, error) {
	res, err := s.ledger.Transfer(ctx, ledger.TransferInput{
		Sender:      account.ByID(senderID),
		Receiver:    receiver,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return ledger.TransferResult{}, err
	}

	if s.notifier != nil {
		err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindP2PTransfer,
			Destination: res.Receiver,
			Body:        fmt.Sprintf("You received ₹%s from %s", amount, res.Sender),
			Reference:   res.TransferID,
			SentAt:      time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("transfer notification failed", "transfer_id", res.TransferID, "error", err)
		}
	}
	return res, nil
}
