package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/logging"
	"github.com/congo-pay/digiwallet/internal/money"
	"github.com/congo-pay/digiwallet/internal/notification"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, msg notification.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func setup(t *testing.T, notifier notification.Notifier) (*Service, *ledger.Engine, account.Account, account.Account) {
	t.Helper()
	store := account.NewMemoryStore()
	engine := ledger.NewEngine(store, ledger.Options{Logger: logging.Discard()})
	ctx := context.Background()

	alice, err := engine.Provision(ctx, account.New("alice@example.com", "", time.Now()))
	require.NoError(t, err)
	bob, err := engine.Provision(ctx, account.New("", "9876543210", time.Now()))
	require.NoError(t, err)
	account.SeedBalance(store, alice.ID, 1_000)

	return NewService(engine, notifier, logging.Discard()), engine, alice, bob
}

func TestTransferByEmailNotifiesReceiver(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(m notification.Message) bool {
		return m.Kind == notification.KindP2PTransfer &&
			m.Destination == "9876543210" &&
			m.Body == "You received ₹2.50 from alice@example.com"
	})).Return(nil).Once()

	svc, engine, alice, bob := setup(t, notifier)
	ctx := context.Background()
	// bob is mobile only, so address him through a QR payload
	qr, err := EncodeQR(bob)
	require.NoError(t, err)

	res, err := svc.TransferByQR(ctx, alice.ID, qr, 250)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(750), res.SenderBalance)
	assert.Equal(t, money.Amount(250), res.ReceiverBalance)
	notifier.AssertExpectations(t)

	history, err := engine.History(ctx, account.ByID(bob.ID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DescriptionQR, history[0].Description)
}

func TestTransferSucceedsWhenNotificationFails(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("Send", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc, engine, alice, _ := setup(t, notifier)
	ctx := context.Background()
	_, err := engine.Provision(ctx, account.New("carol@example.com", "", time.Now()))
	require.NoError(t, err)

	res, err := svc.TransferByEmail(ctx, alice.ID, "Carol@Example.com", 100)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", res.Receiver)

	history, err := engine.History(ctx, account.ByEmail("carol@example.com"))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DescriptionTransfer, history[0].Description)
}

func TestMalformedQRLeavesBalancesUntouched(t *testing.T) {
	svc, engine, alice, bob := setup(t, nil)
	ctx := context.Background()

	for _, data := range []string{"", "garbage", `{"identifier":"12"}`, `{}`} {
		_, err := svc.TransferByQR(ctx, alice.ID, data, 100)
		assert.ErrorIs(t, err, ErrMalformedPayload, data)
	}

	balance, err := engine.Balance(ctx, account.ByID(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(1_000), balance)
	balance, err = engine.Balance(ctx, account.ByID(bob.ID))
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestTransferByEmailRequiresReceiver(t *testing.T) {
	svc, _, alice, _ := setup(t, nil)

	_, err := svc.TransferByEmail(context.Background(), alice.ID, "  ", 100)
	assert.ErrorIs(t, err, ErrMissingReceiver)
}

func TestQRCodeRoundTrip(t *testing.T) {
	svc, _, alice, _ := setup(t, nil)

	data, err := svc.QRCode(context.Background(), alice.ID)
	require.NoError(t, err)
	ref, err := ResolveQR(data)
	require.NoError(t, err)
	assert.Equal(t, account.ByEmail("alice@example.com"), ref)
}

type blockingNotifier struct {
	release chan struct{}
	sent    chan notification.Message
}

func (b *blockingNotifier) Send(ctx context.Context, msg notification.Message) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.sent <- msg
	return nil
}

func TestTransferDoesNotWaitForSlowNotifier(t *testing.T) {
	slow := &blockingNotifier{release: make(chan struct{}), sent: make(chan notification.Message, 1)}
	async := notification.NewAsync(slow, notification.AsyncOptions{Workers: 1, Logger: logging.Discard()})

	svc, engine, alice, _ := setup(t, async)
	ctx := context.Background()
	_, err := engine.Provision(ctx, account.New("carol@example.com", "", time.Now()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.TransferByEmail(ctx, alice.ID, "carol@example.com", 100)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("transfer blocked on notification delivery")
	}

	close(slow.release)
	msg := <-slow.sent
	assert.Equal(t, "carol@example.com", msg.Destination)
	require.NoError(t, async.Close(ctx))
}
