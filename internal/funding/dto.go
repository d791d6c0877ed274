package funding

import "github.com/congo-pay/digiwallet/internal/money"

// AddMoneyRequest tops up a wallet.
type AddMoneyRequest struct {
	Email  string       `json:"email"`
	Amount money.Amount `json:"amount"`
}

// AddMoneyResponse reports the balance after a top-up.
type AddMoneyResponse struct {
	Message    string       `json:"message"`
	NewBalance money.Amount `json:"newBalance"`
}

// RechargeRequest pays for a mobile recharge from the wallet.
type RechargeRequest struct {
	Email  string       `json:"email"`
	Mobile string       `json:"mobile"`
	Amount money.Amount `json:"amount"`
}

// RechargeResponse reports the recharge outcome.
type RechargeResponse struct {
	Message          string       `json:"message"`
	RechargedTo      string       `json:"rechargedTo"`
	RemainingBalance money.Amount `json:"remainingBalance"`
	Reference        string       `json:"reference,omitempty"`
}
