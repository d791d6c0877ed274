package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/money"
)

const (
	DefaultStoreTimeout = 3 * time.Second
	DefaultMaxAttempts  = 5

	// reversalPrefix marks the compensating credit of a failed transfer.
	reversalPrefix = "Reversal: "
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	StoreTimeout time.Duration
	MaxAttempts  int
	Logger       *slog.Logger
	Projector    Projector
	Recorder     Recorder
	Now          func() time.Time
}

// Engine is the only writer of balances and transaction logs. Every mutation
// re-reads the account under its lock, applies the change and saves it
// behind the store's version guard.
type Engine struct {
	store     account.Store
	locks     *keyedLocker
	timeout   time.Duration
	attempts  int
	logger    *slog.Logger
	projector Projector
	recorder  Recorder
	now       func() time.Time
}

// NewEngine wires an Engine over store.
func NewEngine(store account.Store, opts Options) *Engine {
	e := &Engine{
		store:     store,
		locks:     newKeyedLocker(),
		timeout:   opts.StoreTimeout,
		attempts:  opts.MaxAttempts,
		logger:    opts.Logger,
		projector: opts.Projector,
		recorder:  opts.Recorder,
		now:       opts.Now,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultStoreTimeout
	}
	if e.attempts <= 0 {
		e.attempts = DefaultMaxAttempts
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.projector == nil {
		e.projector = nopProjector{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Credit adds amount to the account and appends a credit entry.
func (e *Engine) Credit(ctx context.Context, ref account.Ref, amount money.Amount, description string) (balance money.Amount, err error) {
	const op = "credit"
	defer e.finish(op, time.Now(), &err)

	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	saved, err := e.mutate(ctx, op, ref, ErrAccountNotFound, func(acct *account.Account) error {
		if err := credit(acct, amount); err != nil {
			return err
		}
		acct.Append(account.Entry{
			Kind:        account.Credit,
			Amount:      amount,
			From:        acct.Identifier(),
			To:          acct.Identifier(),
			Description: description,
		}, e.now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("ledger credit committed", "account_id", saved.ID, "amount", amount.String(), "balance", saved.Balance.String())
	return saved.Balance, nil
}

// Debit removes amount from the account and appends a debit entry. An amount
// equal to the balance drains it to zero.
func (e *Engine) Debit(ctx context.Context, ref account.Ref, amount money.Amount, description string) (balance money.Amount, err error) {
	const op = "debit"
	defer e.finish(op, time.Now(), &err)

	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	saved, err := e.mutate(ctx, op, ref, ErrAccountNotFound, func(acct *account.Account) error {
		if err := debit(acct, amount); err != nil {
			return err
		}
		acct.Append(account.Entry{
			Kind:        account.Debit,
			Amount:      amount,
			From:        acct.Identifier(),
			To:          acct.Identifier(),
			Description: description,
		}, e.now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.logger.Info("ledger debit committed", "account_id", saved.ID, "amount", amount.String(), "balance", saved.Balance.String())
	return saved.Balance, nil
}

type transfer struct {
	id          string
	senderID    string
	receiverID  string
	senderRef   string
	receiverRef string
	amount      money.Amount
	description string
}

// Transfer moves money between two distinct accounts. Both legs share a
// transfer ID. Stores implementing account.BatchSaver commit both legs
// atomically; other stores go through a debit, credit and, if the credit
// fails, a compensating credit back to the sender.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (res TransferResult, err error) {
	const op = "transfer"
	defer e.finish(op, time.Now(), &err)

	if !in.Amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrInvalidAmount, in.Amount)
	}
	sender, err := e.find(ctx, in.Sender, ErrSenderNotFound)
	if err != nil {
		return TransferResult{}, err
	}
	receiver, err := e.find(ctx, in.Receiver, ErrReceiverNotFound)
	if err != nil {
		return TransferResult{}, err
	}
	if sender.ID == receiver.ID {
		return TransferResult{}, ErrSelfTransfer
	}

	unlock := e.locks.lockPair(sender.ID, receiver.ID)
	defer unlock()

	t := transfer{
		id:          uuid.NewString(),
		senderID:    sender.ID,
		receiverID:  receiver.ID,
		senderRef:   sender.Identifier(),
		receiverRef: receiver.Identifier(),
		amount:      in.Amount,
		description: in.Description,
	}
	if batch, ok := e.store.(account.BatchSaver); ok {
		res, err = e.transferAtomic(ctx, batch, t)
	} else {
		res, err = e.transferCompensated(ctx, t)
	}
	if err != nil {
		return TransferResult{}, err
	}
	e.logger.Info("ledger transfer committed",
		"transfer_id", t.id,
		"sender_id", t.senderID,
		"receiver_id", t.receiverID,
		"amount", t.amount.String(),
	)
	return res, nil
}

func (t transfer) debitEntry() account.Entry {
	return account.Entry{
		Kind:        account.Debit,
		Amount:      t.amount,
		From:        t.senderRef,
		To:          t.receiverRef,
		Description: t.description,
		TransferID:  t.id,
	}
}

func (t transfer) creditEntry() account.Entry {
	entry := t.debitEntry()
	entry.Kind = account.Credit
	return entry
}

func (t transfer) result(sender, receiver account.Account) TransferResult {
	return TransferResult{
		TransferID:      t.id,
		Sender:          t.senderRef,
		Receiver:        t.receiverRef,
		SenderBalance:   sender.Balance,
		ReceiverBalance: receiver.Balance,
	}
}

func (e *Engine) transferAtomic(ctx context.Context, batch account.BatchSaver, t transfer) (TransferResult, error) {
	var saved []account.Account
	err := e.retry("transfer", func() error {
		sender, err := e.findID(ctx, t.senderID, ErrSenderNotFound)
		if err != nil {
			return err
		}
		receiver, err := e.findID(ctx, t.receiverID, ErrReceiverNotFound)
		if err != nil {
			return err
		}
		if err := debit(&sender, t.amount); err != nil {
			return err
		}
		if err := credit(&receiver, t.amount); err != nil {
			return err
		}
		now := e.now()
		sender.Append(t.debitEntry(), now)
		receiver.Append(t.creditEntry(), now)

		sctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		saved, err = batch.SaveAll(sctx, sender, receiver)
		if err != nil {
			return storeError(err, ErrAccountNotFound, "transfer "+t.id)
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	e.projector.Enqueue(saved[0])
	e.projector.Enqueue(saved[1])
	return t.result(saved[0], saved[1]), nil
}

func (e *Engine) transferCompensated(ctx context.Context, t transfer) (TransferResult, error) {
	sender, err := e.commitOne(ctx, "transfer", t.senderID, ErrSenderNotFound, func(acct *account.Account) error {
		if err := debit(acct, t.amount); err != nil {
			return err
		}
		acct.Append(t.debitEntry(), e.now())
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	e.projector.Enqueue(sender)

	receiver, creditErr := e.commitOne(ctx, "transfer", t.receiverID, ErrReceiverNotFound, func(acct *account.Account) error {
		if err := credit(acct, t.amount); err != nil {
			return err
		}
		acct.Append(t.creditEntry(), e.now())
		return nil
	})
	if creditErr == nil {
		e.projector.Enqueue(receiver)
		return t.result(sender, receiver), nil
	}

	// The debit is durable. Put the money back even if the caller has gone.
	reversed, err := e.commitOne(context.WithoutCancel(ctx), "reversal", t.senderID, ErrSenderNotFound, func(acct *account.Account) error {
		if err := credit(acct, t.amount); err != nil {
			return err
		}
		acct.Append(account.Entry{
			Kind:        account.Credit,
			Amount:      t.amount,
			From:        t.receiverRef,
			To:          t.senderRef,
			Description: reversalPrefix + t.description,
			TransferID:  t.id,
		}, e.now())
		return nil
	})
	if err != nil {
		e.logger.Error("ledger transfer reversal failed",
			"transfer_id", t.id,
			"sender_id", t.senderID,
			"amount", t.amount.String(),
			"credit_error", creditErr,
			"error", err,
		)
		return TransferResult{}, &IncompleteError{TransferID: t.id, Cause: creditErr}
	}
	e.projector.Enqueue(reversed)
	e.logger.Warn("ledger transfer reversed",
		"transfer_id", t.id,
		"sender_id", t.senderID,
		"amount", t.amount.String(),
		"error", creditErr,
	)
	return TransferResult{}, &IncompleteError{TransferID: t.id, Reversed: true, Cause: creditErr}
}

// Balance returns the committed balance of the account.
func (e *Engine) Balance(ctx context.Context, ref account.Ref) (money.Amount, error) {
	acct, err := e.find(ctx, ref, ErrAccountNotFound)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// History returns the account's transaction log in commit order.
func (e *Engine) History(ctx context.Context, ref account.Ref) ([]account.Transaction, error) {
	acct, err := e.find(ctx, ref, ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if acct.Transactions == nil {
		return []account.Transaction{}, nil
	}
	return acct.Transactions, nil
}

// Lookup returns the committed state of the account.
func (e *Engine) Lookup(ctx context.Context, ref account.Ref) (account.Account, error) {
	return e.find(ctx, ref, ErrAccountNotFound)
}

// Provision stores a new zero-balance account and projects it.
func (e *Engine) Provision(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.Balance != 0 || len(acct.Transactions) > 0 {
		return account.Account{}, ErrBalanceOwnership
	}
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	saved, err := e.store.Provision(sctx, acct)
	if err != nil {
		return account.Account{}, storeError(err, ErrAccountNotFound, acct.Identifier())
	}
	e.projector.Enqueue(saved)
	e.logger.Info("account provisioned", "account_id", saved.ID, "identifier", saved.Identifier())
	return saved, nil
}

// UpdateProfile applies a change to non-ledger fields (name, credentials,
// verification, a missing identity key) under the same lock and retry rules
// as money movements.
func (e *Engine) UpdateProfile(ctx context.Context, ref account.Ref, apply func(*account.Account) error) (account.Account, error) {
	return e.mutate(ctx, "profile", ref, ErrAccountNotFound, func(acct *account.Account) error {
		balance, entries := acct.Balance, len(acct.Transactions)
		if err := apply(acct); err != nil {
			return err
		}
		if acct.Balance != balance || len(acct.Transactions) != entries {
			return ErrBalanceOwnership
		}
		return nil
	})
}

func (e *Engine) mutate(ctx context.Context, op string, ref account.Ref, notFound error, apply func(*account.Account) error) (account.Account, error) {
	target, err := e.find(ctx, ref, notFound)
	if err != nil {
		return account.Account{}, err
	}
	unlock := e.locks.lock(target.ID)
	defer unlock()

	saved, err := e.commitOne(ctx, op, target.ID, notFound, apply)
	if err != nil {
		return account.Account{}, err
	}
	e.projector.Enqueue(saved)
	return saved, nil
}

// commitOne runs a read-modify-write of one account. The caller holds the
// account lock.
func (e *Engine) commitOne(ctx context.Context, op, id string, notFound error, apply func(*account.Account) error) (account.Account, error) {
	var saved account.Account
	err := e.retry(op, func() error {
		acct, err := e.findID(ctx, id, notFound)
		if err != nil {
			return err
		}
		if err := apply(&acct); err != nil {
			return err
		}
		sctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		saved, err = e.store.Save(sctx, acct)
		if err != nil {
			return storeError(err, notFound, id)
		}
		return nil
	})
	return saved, err
}

// retry re-runs attempt while it fails with a version conflict.
func (e *Engine) retry(op string, attempt func() error) error {
	for i := 1; ; i++ {
		err := attempt()
		if !errors.Is(err, account.ErrVersionConflict) {
			return err
		}
		if i >= e.attempts {
			return fmt.Errorf("%w: %s gave up after %d attempts", ErrConflict, op, i)
		}
		e.recorder.RetryAttempt(op)
		e.logger.Debug("ledger version conflict, retrying", "op", op, "attempt", i)
	}
}

func (e *Engine) find(ctx context.Context, ref account.Ref, notFound error) (account.Account, error) {
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	acct, err := account.Find(sctx, e.store, ref)
	if errors.Is(err, account.ErrInvalidIdentity) {
		return account.Account{}, fmt.Errorf("%w: %s", notFound, ref)
	}
	if err != nil {
		return account.Account{}, storeError(err, notFound, ref.String())
	}
	return acct, nil
}

func (e *Engine) findID(ctx context.Context, id string, notFound error) (account.Account, error) {
	return e.find(ctx, account.ByID(id), notFound)
}

func (e *Engine) finish(op string, start time.Time, errp *error) {
	err := *errp
	code := Code(err)
	e.recorder.ObserveOperation(op, code, time.Since(start))
	if err == nil {
		return
	}
	level := slog.LevelWarn
	switch code {
	case "TransferIncomplete", "StoreUnavailable", "Internal":
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "ledger operation failed", "op", op, "code", code, "error", err)
}

// storeError maps account store failures onto ledger errors. Version
// conflicts pass through untouched so that retry can see them.
func storeError(err, notFound error, subject string) error {
	switch {
	case errors.Is(err, account.ErrNotFound):
		return fmt.Errorf("%w: %s", notFound, subject)
	case errors.Is(err, account.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func debit(acct *account.Account, amount money.Amount) error {
	if acct.Balance < amount {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, acct.Balance, amount)
	}
	acct.Balance -= amount
	return nil
}

func credit(acct *account.Account, amount money.Amount) error {
	if acct.Balance > money.Amount(math.MaxInt64)-amount {
		return fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
	}
	acct.Balance += amount
	return nil
}

type nopProjector struct{}

func (nopProjector) Enqueue(account.Account) {}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) RetryAttempt(string)                            {}
