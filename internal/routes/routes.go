package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/digiwallet/internal/auth"
	"github.com/congo-pay/digiwallet/internal/config"
	"github.com/congo-pay/digiwallet/internal/funding"
	"github.com/congo-pay/digiwallet/internal/identity"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/metrics"
	"github.com/congo-pay/digiwallet/internal/middleware"
	"github.com/congo-pay/digiwallet/internal/notification"
	"github.com/congo-pay/digiwallet/internal/payments"
	"github.com/congo-pay/digiwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Engine   *ledger.Engine
	OTPs     identity.OTPStore
	Notifier notification.Notifier
	// TransferNotifier receives transfer notices off the request path.
	// Defaults to Notifier.
	TransferNotifier notification.Notifier
	Recharge funding.RechargeProvider
	Health   []HealthCheck
	Cache    *redis.Client
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Engine == nil {
		return fmt.Errorf("ledger engine is required")
	}
	if d.OTPs == nil {
		return fmt.Errorf("otp store is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Registry == nil {
		d.Registry = metrics.NewRegistry()
	}
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Metrics(metrics.NewHTTP(d.Registry)))

	RegisterHealthRoutes(app, d.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(d.Registry)))

	// Services and handlers
	issuer := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.TokenTTL)
	identitySvc := identity.NewService(d.Engine, d.OTPs, d.Notifier, identity.Options{
		OTPTTL: d.Cfg.OTPTTL,
		Logger: d.Logger,
	})
	authSvc := auth.NewService(identitySvc, issuer)
	transferNotifier := d.TransferNotifier
	if transferNotifier == nil {
		transferNotifier = d.Notifier
	}
	paymentSvc := payments.NewService(d.Engine, transferNotifier, d.Logger)
	fundingSvc := funding.NewService(d.Engine, d.Recharge, d.Logger)
	walletSvc := wallet.NewService(d.Engine)

	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	api := app.Group("/api")
	api.Get("/v1/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDLocal).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	user := api.Group("/user")
	RegisterIdentityRoutes(user, identity.NewHandler(identitySvc), middleware.OTPRateLimit(d.Cache, d.Cfg.OTPRateLimit, d.Cfg.OTPRateWindow))
	RegisterAuthRoutes(user, auth.NewHandler(authSvc))
	RegisterFundingRoutes(user, funding.NewHandler(fundingSvc), idempotent)
	RegisterTransactionRoutes(user, wallet.NewHandler(walletSvc))

	// Protected routes
	protected := api.Group("/wallet", middleware.JWTAuth(issuer))
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc), idempotent)

	return nil
}
