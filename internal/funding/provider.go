package funding

import (
	"context"

	"github.com/google/uuid"

	"github.com/congo-pay/digiwallet/internal/money"
)

// RechargeProvider represents a connector to a mobile top-up operator.
type RechargeProvider interface {
	Recharge(ctx context.Context, order RechargeOrder) (RechargeReceipt, error)
}

// RechargeOrder carries what the operator needs to top up a number.
type RechargeOrder struct {
	Mobile    string
	Amount    money.Amount
	Reference string
}

// RechargeReceipt captures the operator's response.
type RechargeReceipt struct {
	Reference string
	Status    string
}

// StaticProvider simulates an operator that approves every recharge.
type StaticProvider struct{}

// Recharge approves the order with a synthetic reference.
func (StaticProvider) Recharge(_ context.Context, _ RechargeOrder) (RechargeReceipt, error) {
	return RechargeReceipt{Reference: uuid.NewString(), Status: "approved"}, nil
}
