package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/digiwallet/internal/auth"
	"github.com/congo-pay/digiwallet/internal/metrics"
)

func TestJWTAuthSetsAccountID(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	app := fiber.New()
	app.Get("/me", JWTAuth(issuer), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(AccountIDLocal).(string))
	})

	token, _, err := issuer.Issue("acct-7", "asha@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	for _, header := range []string{"", "Bearer garbage", "Basic " + token} {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, resp.StatusCode)
		}
	}
}

func TestOTPRateLimitPerEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/otp", OTPRateLimit(cache, 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	if got := send("a@example.com"); got != fiber.StatusOK {
		t.Fatalf("first request: %d", got)
	}
	if got := send("A@example.com"); got != fiber.StatusOK {
		t.Fatalf("second request: %d", got)
	}
	if got := send("a@example.com"); got != fiber.StatusTooManyRequests {
		t.Fatalf("third request: expected 429 got %d", got)
	}
	if got := send("b@example.com"); got != fiber.StatusOK {
		t.Fatalf("other email: %d", got)
	}

	mr.FastForward(time.Minute + time.Second)
	if got := send("a@example.com"); got != fiber.StatusOK {
		t.Fatalf("after window: %d", got)
	}
}

func TestOTPRateLimitCounterAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/otp", OTPRateLimit(cache, 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	send := func() *http.Response {
		req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(`{"email":"a@example.com"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp
	}

	send()
	if ttl := mr.TTL("rl:otp:a@example.com"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("counter ttl: %v", ttl)
	}

	mr.FastForward(30 * time.Second)
	resp := send()
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.StatusCode)
	}
	if ttl := mr.TTL("rl:otp:a@example.com"); ttl > 30*time.Second {
		t.Fatalf("window extended by a blocked request: %v", ttl)
	}
	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "30" {
		t.Fatalf("Retry-After: %q", got)
	}

	// a counter left without a TTL gets one on the next request
	mr.Set("rl:otp:b@example.com", "1")
	req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(`{"email":"b@example.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if ttl := mr.TTL("rl:otp:b@example.com"); ttl <= 0 {
		t.Fatalf("orphaned counter still has no ttl: %v", ttl)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.NewHTTP(metrics.NewRegistry())
	app := fiber.New()
	app.Use(Metrics(m))
	app.Get("/user/transactions/:email", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/user/transactions/a@example.com", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	got := testutil.ToFloat64(m.RequestCount.WithLabelValues(fiber.MethodGet, "/user/transactions/:email", "200"))
	if got != 1 {
		t.Fatalf("expected one observation, got %v", got)
	}
}
