package wallet

import (
	"context"
	"time"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

// Ledger is the read side of the ledger engine.
type Ledger interface {
	Balance(ctx context.Context, ref account.Ref) (money.Amount, error)
	History(ctx context.Context, ref account.Ref) ([]account.Transaction, error)
}

// Service exposes wallet reads backed by the ledger.
type Service struct {
	ledger Ledger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(l Ledger) *Service {
	return &Service{ledger: l, now: time.Now}
}

// Balance is a point-in-time wallet balance.
type Balance struct {
	AccountID string
	Amount    money.Amount
	AsOf      time.Time
}

// Balance returns the committed balance of the account.
func (s *Service) Balance(ctx context.Context, accountID string) (Balance, error) {
	amount, err := s.ledger.Balance(ctx, account.ByID(accountID))
	if err != nil {
		return Balance{}, err
	}
	return Balance{AccountID: accountID, Amount: amount, AsOf: s.now().UTC()}, nil
}

// Transactions returns the account's transaction log, oldest first.
func (s *Service) Transactions(ctx context.Context, email string) ([]account.Transaction, error) {
	return s.ledger.History(ctx, account.ByEmail(email))
}
