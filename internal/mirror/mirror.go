package mirror

import (
	"context"
	"errors"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

// ErrInvalidProjection marks writes the mirror store will never accept.
// They are not retried.
var ErrInvalidProjection = errors.New("invalid projection")

// Projection is the subset of account state kept in the mirror store.
type Projection struct {
	AccountID  string
	Identifier string
	Email      string
	Mobile     string
	Balance    money.Amount
	Verified   bool
	Version    int64
}

// FromAccount projects a committed account.
func FromAccount(acct account.Account) Projection {
	return Projection{
		AccountID:  acct.ID,
		Identifier: acct.Identifier(),
		Email:      acct.Email,
		Mobile:     acct.Mobile,
		Balance:    acct.Balance,
		Verified:   acct.Verified,
		Version:    acct.Version,
	}
}

// Writer upserts projections. Implementations must be idempotent and must
// ignore a projection older than the one already stored.
type Writer interface {
	Upsert(ctx context.Context, p Projection) error
}

// NopWriter discards projections. Used when no mirror is configured.
type NopWriter struct{}

func (NopWriter) Upsert(context.Context, Projection) error { return nil }
