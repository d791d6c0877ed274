package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

const DescriptionAddMoney = "Added money to wallet"

var (
	// ErrMissingFields is returned when a required request field is blank.
	ErrMissingFields = errors.New("email, mobile, and amount are required")
	// ErrInvalidMobile is returned for a recharge target that is not a 10
	// digit number.
	ErrInvalidMobile = errors.New("mobile must be a 10 digit number")
	// ErrRechargeFailed is returned when the operator rejected the recharge.
	// The wallet debit has been reversed unless the error says otherwise.
	ErrRechargeFailed = errors.New("recharge failed")
)

// Ledger is the subset of the ledger engine used for funding.
type Ledger interface {
	Credit(ctx context.Context, ref account.Ref, amount money.Amount, description string) (money.Amount, error)
	Debit(ctx context.Context, ref account.Ref, amount money.Amount, description string) (money.Amount, error)
}

// Service tops wallets up and pays for mobile recharges out of them.
type Service struct {
	ledger   Ledger
	provider RechargeProvider
	logger   *slog.Logger
}

// NewService prepares a funding service.
func NewService(l Ledger, provider RechargeProvider, logger *slog.Logger) *Service {
	if provider == nil {
		provider = StaticProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, provider: provider, logger: logger}
}

// AddMoney credits the wallet owned by email.
func (s *Service) AddMoney(ctx context.Context, email string, amount money.Amount) (money.Amount, error) {
	if strings.TrimSpace(email) == "" {
		return 0, fmt.Errorf("%w: email", ErrMissingFields)
	}
	return s.ledger.Credit(ctx, account.ByEmail(email), amount, DescriptionAddMoney)
}

// RechargeInput captures a mobile recharge paid from a wallet.
type RechargeInput struct {
	Email  string
	Mobile string
	Amount money.Amount
}

// RechargeResult represents the domain outcome of a recharge.
type RechargeResult struct {
	RechargedTo      string
	RemainingBalance money.Amount
	Reference        string
}

// RechargeDescription is the log entry text for a recharge to mobile.
func RechargeDescription(mobile string) string {
	return "Recharge done to mobile " + mobile
}

// Recharge debits the wallet and asks the operator to top up the number.
// If the operator refuses, the debit is reversed with a compensating credit.
func (s *Service) Recharge(ctx context.Context, input RechargeInput) (RechargeResult, error) {
	email, mobile := strings.TrimSpace(input.Email), strings.TrimSpace(input.Mobile)
	if email == "" || mobile == "" {
		return RechargeResult{}, ErrMissingFields
	}
	if !account.ValidMobile(mobile) {
		return RechargeResult{}, fmt.Errorf("%w: %q", ErrInvalidMobile, mobile)
	}

	description := RechargeDescription(mobile)
	balance, err := s.ledger.Debit(ctx, account.ByEmail(email), input.Amount, description)
	if err != nil {
		return RechargeResult{}, err
	}

	reference := uuid.NewString()
	receipt, err := s.provider.Recharge(ctx, RechargeOrder{Mobile: mobile, Amount: input.Amount, Reference: reference})
	if err == nil {
		if receipt.Reference != "" {
			reference = receipt.Reference
		}
		return RechargeResult{RechargedTo: mobile, RemainingBalance: balance, Reference: reference}, nil
	}

	if _, revErr := s.ledger.Credit(context.WithoutCancel(ctx), account.ByEmail(email), input.Amount, "Reversal: "+description); revErr != nil {
		s.logger.Error("recharge reversal failed",
			"email", email,
			"mobile", mobile,
			"amount", input.Amount.String(),
			"reference", reference,
			"error", revErr,
		)
		return RechargeResult{}, fmt.Errorf("%w (debit not reversed): %v", ErrRechargeFailed, errors.Join(err, revErr))
	}
	s.logger.Warn("recharge rejected, debit reversed", "mobile", mobile, "reference", reference, "error", err)
	return RechargeResult{}, fmt.Errorf("%w: %v", ErrRechargeFailed, err)
}
