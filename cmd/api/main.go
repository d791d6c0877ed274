package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/digiwallet/internal/account"
	"github.com/congo-pay/digiwallet/internal/config"
	"github.com/congo-pay/digiwallet/internal/identity"
	"github.com/congo-pay/digiwallet/internal/infra"
	"github.com/congo-pay/digiwallet/internal/ledger"
	"github.com/congo-pay/digiwallet/internal/logging"
	"github.com/congo-pay/digiwallet/internal/metrics"
	"github.com/congo-pay/digiwallet/internal/mirror"
	"github.com/congo-pay/digiwallet/internal/notification"
	"github.com/congo-pay/digiwallet/internal/routes"
	"github.com/congo-pay/digiwallet/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "digiwallet: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName, cfg.AppEnv)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	var checks []routes.HealthCheck

	// Account store
	var store account.Store
	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		store = account.NewPostgresStore(db)
		checks = append(checks, postgresCheck(db))
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory account store")
		store = account.NewMemoryStore()
	}

	// Redis backs OTPs, idempotency and rate limits
	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		var stopRedis func()
		cache, stopRedis, err = infra.NewEmbeddedRedis()
		if err != nil {
			return err
		}
		defer stopRedis()
		logger.Warn("REDIS_URL not set, using embedded redis")
	}
	checks = append(checks, routes.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
		return cache.Ping(ctx).Err()
	}})

	// Mirror store
	var writer mirror.Writer = mirror.NopWriter{}
	if cfg.MirrorDSN != "" {
		mdb, err := infra.NewMySQL(ctx, cfg.MirrorDSN)
		if err != nil {
			return fmt.Errorf("connect mirror: %w", err)
		}
		defer mdb.Close()
		writer = mirror.NewMySQLWriter(mdb)
		checks = append(checks, mysqlCheck(mdb))
	}
	syncer := mirror.NewSyncer(writer, mirror.Options{
		Workers:    cfg.MirrorWorkers,
		QueueSize:  cfg.MirrorQueueSize,
		MaxElapsed: cfg.MirrorMaxElapsed,
		Logger:     logger.With("component", "mirror"),
		Metrics:    metrics.NewMirror(registry),
	})
	syncer.Start(context.Background())

	// Notifications
	var notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notification.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		kafka := notification.NewKafkaNotifier(producer, cfg.KafkaTopic, logger, metrics.NewNotifications(registry))
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("close kafka producer", "error", err)
			}
		}()
		notifier = kafka
	}
	transferNotifier := notification.NewAsync(notifier, notification.AsyncOptions{
		SendTimeout: cfg.NotifyTimeout,
		Logger:      logger.With("component", "notifications"),
	})

	engine := ledger.NewEngine(store, ledger.Options{
		StoreTimeout: cfg.StoreTimeout,
		MaxAttempts:  cfg.LedgerMaxAttempts,
		Logger:       logger.With("component", "ledger"),
		Projector:    syncer,
		Recorder:     metrics.NewLedger(registry),
	})

	srv, err := server.New(routes.Deps{
		Cfg:              cfg,
		Engine:           engine,
		OTPs:             identity.NewRedisOTPStore(cache),
		Notifier:         notifier,
		TransferNotifier: transferNotifier,
		Health:           checks,
		Cache:            cache,
		Registry:         registry,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address())
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := syncer.Close(shutdownCtx); err != nil {
		logger.Warn("mirror drain incomplete", "error", err)
	}
	if err := transferNotifier.Close(shutdownCtx); err != nil {
		logger.Warn("notification drain incomplete", "error", err)
	}

	logger.Info("server exited cleanly")
	return nil
}

func postgresCheck(db *pgxpool.Pool) routes.HealthCheck {
	return routes.HealthCheck{Name: "postgres", Check: db.Ping}
}

// The mirror is a projection, so its outage never fails readiness.
func mysqlCheck(db *sql.DB) routes.HealthCheck {
	return routes.HealthCheck{Name: "mirror", Optional: true, Check: db.PingContext}
}
