package funding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/logging"
	"github.com/congo-pay/digiwallet/internal/money"
)

type rejectingProvider struct{}

func (rejectingProvider) Recharge(context.Context, RechargeOrder) (RechargeReceipt, error) {
	return RechargeReceipt{}, errors.New("operator timeout")
}

func newTestService(t *testing.T, provider RechargeProvider, balance money.Amount) (*Service, *ledger.Engine) {
	t.Helper()
	store := account.NewMemoryStore()
	acct, err := store.Provision(context.Background(), account.New("payer@example.com", "", time.Now()))
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	account.SeedBalance(store, acct.ID, balance)
	engine := ledger.NewEngine(store, ledger.Options{Logger: logging.Discard()})
	return NewService(engine, provider, logging.Discard()), engine
}

func TestServiceAddMoney(t *testing.T) {
	service, engine := newTestService(t, nil, 0)
	ctx := context.Background()

	balance, err := service.AddMoney(ctx, "payer@example.com", 50_00)
	if err != nil {
		t.Fatalf("add money: %v", err)
	}
	if balance != 50_00 {
		t.Fatalf("expected balance 5000, got %d", balance)
	}

	history, err := engine.History(ctx, account.ByEmail("payer@example.com"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Description != DescriptionAddMoney || history[0].Kind != account.Credit {
		t.Fatalf("unexpected history: %+v", history)
	}

	if _, err := service.AddMoney(ctx, "payer@example.com", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := service.AddMoney(ctx, "nobody@example.com", 100); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestServiceRecharge(t *testing.T) {
	service, engine := newTestService(t, StaticProvider{}, 100_00)
	ctx := context.Background()

	res, err := service.Recharge(ctx, RechargeInput{Email: "payer@example.com", Mobile: "9876543210", Amount: 30_00})
	if err != nil {
		t.Fatalf("recharge: %v", err)
	}
	if res.RemainingBalance != 70_00 || res.RechargedTo != "9876543210" || res.Reference == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	history, _ := engine.History(ctx, account.ByEmail("payer@example.com"))
	if len(history) != 1 || history[0].Description != "Recharge done to mobile 9876543210" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if _, err := service.Recharge(ctx, RechargeInput{Email: "payer@example.com", Mobile: "9876543210", Amount: 71_00}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := service.Recharge(ctx, RechargeInput{Email: "payer@example.com", Mobile: "12345", Amount: 1_00}); !errors.Is(err, ErrInvalidMobile) {
		t.Fatalf("expected invalid mobile, got %v", err)
	}
	if _, err := service.Recharge(ctx, RechargeInput{Email: "payer@example.com", Amount: 1_00}); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected missing fields, got %v", err)
	}
}

func TestServiceRechargeReversesRejectedOrder(t *testing.T) {
	service, engine := newTestService(t, rejectingProvider{}, 100_00)
	ctx := context.Background()

	_, err := service.Recharge(ctx, RechargeInput{Email: "payer@example.com", Mobile: "9876543210", Amount: 40_00})
	if !errors.Is(err, ErrRechargeFailed) {
		t.Fatalf("expected recharge failed, got %v", err)
	}

	balance, err := engine.Balance(ctx, account.ByEmail("payer@example.com"))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100_00 {
		t.Fatalf("expected balance restored to 10000, got %d", balance)
	}
	history, _ := engine.History(ctx, account.ByEmail("payer@example.com"))
	if len(history) != 2 || history[1].Kind != account.Credit {
		t.Fatalf("expected debit and reversal, got %+v", history)
	}
}
