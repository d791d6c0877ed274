package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

var (
	// ErrInvalidAmount is returned for zero, negative or unrepresentable amounts.
	ErrInvalidAmount = money.ErrInvalidAmount

	// ErrAccountNotFound occurs when an identifier does not resolve to an account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSenderNotFound and ErrReceiverNotFound identify which side of a
	// transfer is missing. Both match ErrAccountNotFound.
	ErrSenderNotFound   = fmt.Errorf("sender %w", ErrAccountNotFound)
	ErrReceiverNotFound = fmt.Errorf("receiver %w", ErrAccountNotFound)

	// ErrSelfTransfer is returned when sender and receiver are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrInsufficientFunds occurs when the debited account balance is below
	// the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict is returned when the version guard kept failing after every
	// allowed attempt. Nothing was persisted.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStoreUnavailable wraps storage timeouts and connectivity failures.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrTransferIncomplete matches *IncompleteError.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrBalanceOwnership is returned when a profile update touches the
	// balance or the transaction log.
	ErrBalanceOwnership = errors.New("balance and transactions are owned by the ledger")
)

// IncompleteError reports a transfer whose debit committed but whose credit
// did not. Reversed tells whether the compensating credit to the sender was
// recorded.
type IncompleteError struct {
	TransferID string
	Reversed   bool
	Cause      error
}

func (e *IncompleteError) Error() string {
	state := "not reversed"
	if e.Reversed {
		state = "reversed"
	}
	return fmt.Sprintf("transfer %s incomplete (%s): %v", e.TransferID, state, e.Cause)
}

func (e *IncompleteError) Is(target error) bool { return target == ErrTransferIncomplete }

func (e *IncompleteError) Unwrap() error { return e.Cause }

// Projector receives every committed account state. Enqueue must not block.
type Projector interface {
	Enqueue(acct account.Account)
}

// Recorder observes ledger operations for metrics.
type Recorder interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	RetryAttempt(op string)
}

// TransferInput describes a peer-to-peer movement of money.
type TransferInput struct {
	Sender      account.Ref
	Receiver    account.Ref
	Amount      money.Amount
	Description string
}

// TransferResult captures the outcome of a committed transfer.
type TransferResult struct {
	TransferID      string
	Sender          string
	Receiver        string
	SenderBalance   money.Amount
	ReceiverBalance money.Amount
}

// Code returns the stable error code for err, or "Internal" when err is not
// one of the ledger's errors.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrTransferIncomplete):
		return "TransferIncomplete"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrSenderNotFound):
		return "SenderNotFound"
	case errors.Is(err, ErrReceiverNotFound):
		return "ReceiverNotFound"
	case errors.Is(err, ErrAccountNotFound):
		return "AccountNotFound"
	case errors.Is(err, ErrSelfTransfer):
		return "SelfTransfer"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "Internal"
	}
}
