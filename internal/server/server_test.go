package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/config"
	"github.com/congo-pay/digiwallet/internal/identity"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/logging"
	"github.com/congo-pay/digiwallet/internal/money"
	"github.com/congo-pay/digiwallet/internal/routes"
)

type harness struct {
	t      *testing.T
	srv    *Server
	engine *ledger.Engine
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	engine := ledger.NewEngine(account.NewMemoryStore(), ledger.Options{Logger: logging.Discard()})
	srv, err := New(routes.Deps{
		Cfg: config.Config{
			AppEnv:         "test",
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			OTPTTL:         5 * time.Minute,
			OTPRateLimit:   10,
			OTPRateWindow:  time.Minute,
			IdempotencyTTL: time.Hour,
		},
		Engine: engine,
		OTPs:   identity.NewRedisOTPStore(cache),
		Cache:  cache,
		Health: []routes.HealthCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return cache.Ping(ctx).Err() }},
			{Name: "mirror", Optional: true, Check: func(context.Context) error { return errors.New("not configured") }},
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)
	return &harness{t: t, srv: srv, engine: engine, redis: mr}
}

func (h *harness) do(method, path, token, body string) (int, map[string]any) {
	h.t.Helper()
	return h.doWithHeaders(method, path, token, body, nil)
}

func (h *harness) doWithHeaders(method, path, token, body string, headers map[string]string) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// onboard runs send-otp, verify-otp, register and login and returns a token.
func (h *harness) onboard(email, mobile string) string {
	h.t.Helper()
	status, _ := h.do(http.MethodPost, "/api/user/send-otp", "", `{"email":"`+email+`"}`)
	require.Equal(h.t, http.StatusOK, status)

	code, err := h.redis.Get("otp:" + email)
	require.NoError(h.t, err)

	status, _ = h.do(http.MethodPost, "/api/user/verify-otp", "", `{"email":"`+email+`","otp":"`+code+`"}`)
	require.Equal(h.t, http.StatusOK, status)

	status, _ = h.do(http.MethodPost, "/api/user/register", "",
		`{"name":"Test","email":"`+email+`","mobile":"`+mobile+`","password":"pw-123"}`)
	require.Equal(h.t, http.StatusCreated, status)

	status, body := h.do(http.MethodPost, "/api/user/login", "", `{"email":"`+email+`","password":"pw-123"}`)
	require.Equal(h.t, http.StatusOK, status)
	assert.Equal(h.t, "Login successful", body["message"])
	token, _ := body["token"].(string)
	require.NotEmpty(h.t, token)
	return token
}

func TestWalletFlow(t *testing.T) {
	h := newHarness(t)
	alice := h.onboard("alice@example.com", "9876543210")
	h.onboard("bob@example.com", "9876543211")

	status, body := h.do(http.MethodPost, "/api/user/add-money", "", `{"email":"alice@example.com","amount":500}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 500.0, body["newBalance"])

	status, body = h.do(http.MethodPost, "/api/wallet/transfer", alice, `{"receiverEmail":"bob@example.com","amount":"120.50"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 379.5, body["senderBalance"])
	assert.Equal(t, 120.5, body["receiverBalance"])
	assert.Equal(t, "₹120.50 transferred successfully to bob@example.com", body["message"])

	status, body = h.do(http.MethodGet, "/api/wallet/balance", alice, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 379.5, body["walletBalance"])

	status, body = h.do(http.MethodGet, "/api/user/transactions/alice@example.com", "", "")
	require.Equal(t, http.StatusOK, status)
	txs, ok := body["transactions"].([]any)
	require.True(t, ok)
	require.Len(t, txs, 2)
	assert.Equal(t, "credit", txs[0].(map[string]any)["type"])
	assert.Equal(t, "debit", txs[1].(map[string]any)["type"])

	status, body = h.do(http.MethodPost, "/api/user/recharge", "", `{"email":"bob@example.com","mobile":"9123456780","amount":20}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 100.5, body["remainingBalance"])
}

func TestTransferErrors(t *testing.T) {
	h := newHarness(t)
	alice := h.onboard("alice@example.com", "9876543210")
	h.onboard("bob@example.com", "9876543211")

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"insufficient funds", "/api/wallet/transfer", `{"receiverEmail":"bob@example.com","amount":10}`, http.StatusBadRequest, "InsufficientFunds"},
		{"zero amount", "/api/wallet/transfer", `{"receiverEmail":"bob@example.com","amount":0}`, http.StatusBadRequest, "InvalidAmount"},
		{"too many decimals", "/api/wallet/transfer", `{"receiverEmail":"bob@example.com","amount":"1.005"}`, http.StatusBadRequest, "InvalidAmount"},
		{"self transfer", "/api/wallet/transfer", `{"receiverEmail":"ALICE@example.com","amount":1}`, http.StatusBadRequest, "SelfTransfer"},
		{"unknown receiver", "/api/wallet/transfer", `{"receiverEmail":"ghost@example.com","amount":1}`, http.StatusNotFound, "ReceiverNotFound"},
		{"malformed qr", "/api/wallet/scan-qr", `{"qrData":"{not json","amount":1}`, http.StatusBadRequest, "MalformedPayload"},
		{"blank qr", "/api/wallet/scan-qr", `{"qrData":"  ","amount":1}`, http.StatusBadRequest, "MalformedPayload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := h.do(http.MethodPost, tc.path, alice, tc.body)
			assert.Equal(t, tc.status, status, body)
			assert.Equal(t, tc.code, body["error"])
		})
	}

	balance, err := h.engine.Balance(context.Background(), account.ByEmail("alice@example.com"))
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestScanQRPaysEncodedReceiver(t *testing.T) {
	h := newHarness(t)
	alice := h.onboard("alice@example.com", "9876543210")
	bob := h.onboard("bob@example.com", "9876543211")

	status, body := h.do(http.MethodPost, "/api/user/add-money", "", `{"email":"alice@example.com","amount":50}`)
	require.Equal(t, http.StatusOK, status, body)

	status, body = h.do(http.MethodGet, "/api/wallet/qr", bob, "")
	require.Equal(t, http.StatusOK, status)
	qr, _ := body["qrData"].(string)
	require.NotEmpty(t, qr)

	payload, err := json.Marshal(map[string]any{"qrData": qr, "amount": 20})
	require.NoError(t, err)
	status, body = h.do(http.MethodPost, "/api/wallet/scan-qr", alice, string(payload))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 30.0, body["senderBalance"])
	assert.Equal(t, 20.0, body["receiverBalance"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/api/wallet/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestOnboardingErrors(t *testing.T) {
	h := newHarness(t)
	h.onboard("alice@example.com", "9876543210")

	status, body := h.do(http.MethodPost, "/api/user/register", "",
		`{"name":"Again","email":"alice@example.com","mobile":"9876543210","password":"x"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadyRegistered", body["error"])

	status, body = h.do(http.MethodPost, "/api/user/login", "", `{"email":"alice@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "InvalidCredentials", body["error"])

	status, body = h.do(http.MethodPost, "/api/user/verify-otp", "", `{"email":"alice@example.com","otp":"000000"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidOTP", body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)
	report, ok := body["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", report["redis"])
	assert.Equal(t, "not configured", report["mirror"])

	status, _ = h.do(http.MethodGet, "/api/v1/ping", "", "")
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestAddMoneyIdempotencyKeyIsBoundToRequest(t *testing.T) {
	h := newHarness(t)
	h.onboard("alice@example.com", "9876543210")
	h.onboard("bob@example.com", "9876543211")
	key := map[string]string{"Idempotency-Key": "k1"}

	status, body := h.doWithHeaders(http.MethodPost, "/api/user/add-money", "", `{"email":"alice@example.com","amount":50}`, key)
	require.Equal(t, http.StatusOK, status, body)

	status, body = h.doWithHeaders(http.MethodPost, "/api/user/add-money", "", `{"email":"bob@example.com","amount":50}`, key)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "UnprocessableEntity", body["error"])
	assert.NotContains(t, body, "newBalance")

	// a retry of alice's request replays without crediting twice
	status, body = h.doWithHeaders(http.MethodPost, "/api/user/add-money", "", `{"email":"alice@example.com","amount":50}`, key)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 50.0, body["newBalance"])

	ctx := context.Background()
	alice, err := h.engine.Balance(ctx, account.ByEmail("alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(5_000), alice)
	bob, err := h.engine.Balance(ctx, account.ByEmail("bob@example.com"))
	require.NoError(t, err)
	assert.Zero(t, bob)
}
