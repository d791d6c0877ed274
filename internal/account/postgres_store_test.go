package account

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/digiwallet/internal/infra"
	"github.com/congo-pay/digiwallet/internal/logging"
	"github.com/congo-pay/digiwallet/internal/money"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run Postgres integration tests")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	require.NoError(t, infra.MigrateUp(infra.TargetPostgres, url, logging.Discard()))
	pool, err := infra.NewPostgresPool(context.Background(), url, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresStore(pool)
}

func uniqueEmail() string {
	return uuid.NewString()[:12] + "@example.com"
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	acct, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)

	acct.Balance = 2500
	acct.Append(Entry{Kind: Credit, Amount: 2500, From: acct.Email, To: acct.Email, Description: "Added money to wallet"}, time.Now())
	saved, err := s.Save(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	loaded, err := Find(ctx, s, ByEmail(acct.Email))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(2500), loaded.Balance)
	require.Len(t, loaded.Transactions, 1)
	assert.Equal(t, "Added money to wallet", loaded.Transactions[0].Description)

	_, err = s.Save(ctx, acct)
	require.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.Provision(ctx, New(acct.Email, "", time.Now()))
	require.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestPostgresStoreSaveAllRollsBack(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	a, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)
	b, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)

	a.Balance = 100
	b.Version = 99
	_, err = s.SaveAll(ctx, a, b)
	require.ErrorIs(t, err, ErrVersionConflict)

	reloaded, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), reloaded.Balance)
	assert.Equal(t, int64(1), reloaded.Version)
}

func TestClassifyRetriesAbortedTransactions(t *testing.T) {
	for _, code := range []string{"40P01", "40001"} {
		err := classify(fmt.Errorf("save: %w", &pgconn.PgError{Code: code}))
		assert.ErrorIs(t, err, ErrVersionConflict, code)
	}

	err := classify(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	plain := errors.New("syntax error")
	assert.Equal(t, plain, classify(plain))
}

func TestLockOrderSortsByID(t *testing.T) {
	accts := []Account{{ID: "c"}, {ID: "a"}, {ID: "b"}}
	assert.Equal(t, []int{1, 2, 0}, lockOrder(accts))
	assert.Empty(t, lockOrder(nil))
}

func TestPostgresStoreOpposingSaveAllDoesNotDeadlock(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	a, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)
	b, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)

	// each round writes the pair in both argument orders at once; the loser
	// must see a version conflict, never a raw driver error
	for round := 0; round < 20; round++ {
		x, err := s.FindByID(ctx, a.ID)
		require.NoError(t, err)
		y, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = s.SaveAll(ctx, x, y)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = s.SaveAll(ctx, y, x)
		}()
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrVersionConflict)
			}
		}
	}
}

func TestPostgresStoreSaveAllKeepsArgumentOrder(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	a, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)
	b, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)

	saved, err := s.SaveAll(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, b.ID, saved[0].ID)
	assert.Equal(t, a.ID, saved[1].ID)
}

func TestPostgresStoreReadsBalanceAndLogFromOneSnapshot(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	acct, err := s.Provision(ctx, New(uniqueEmail(), "", time.Now()))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		current := acct
		for i := 0; i < 50; i++ {
			current.Balance += 10
			current.Append(Entry{Kind: Credit, Amount: 10, From: current.Email, To: current.Email, Description: "top up"}, time.Now())
			saved, err := s.Save(ctx, current)
			if err != nil {
				return
			}
			current = saved
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		loaded, err := s.FindByID(ctx, acct.ID)
		require.NoError(t, err)
		var sum money.Amount
		for _, tx := range loaded.Transactions {
			sum += tx.Amount
		}
		require.Equal(t, loaded.Balance, sum)
	}
}
