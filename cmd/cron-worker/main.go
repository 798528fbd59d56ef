package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tobennaogbu/kobocart-backend/internal/checkout"
	"github.com/tobennaogbu/kobocart-backend/internal/cron"
	"github.com/tobennaogbu/kobocart-backend/internal/stock"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/metrics"
	"github.com/tobennaogbu/kobocart-backend/pkg/migrate"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "kc:cron-worker:lock:%s"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	fatalOn(ctx, logg, "failed to load config", err)
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	fatalOn(ctx, logg, "failed to bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	fatalOn(ctx, logg, "failed to run dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	fatalOn(ctx, logg, "failed to bootstrap redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	fatalOn(ctx, logg, "failed to create cron lock", err)

	service, err := buildService(cfg, logg, dbClient, lock)
	fatalOn(ctx, logg, "failed to build cron service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

// buildService assembles the three scheduled jobs: pending order expiry,
// stock ledger reconciliation, and published outbox cleanup.
func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, lock cron.Lock) (*cron.Service, error) {
	checkoutRepo := checkout.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	expiryJob, err := cron.NewPendingOrderExpiryJob(cron.PendingOrderExpiryJobParams{
		Logger:      logg,
		DB:          dbClient,
		StaleReader: checkoutRepo,
		Outbox:      outbox.NewService(outboxRepo, logg),
		TTL:         cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("pending order expiry job: %w", err)
	}

	reconciler, err := stock.NewReconciler(dbClient.DB(), logg, cfg.Cron.StockReconcileBatch, cfg.Cron.StockReconcileMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("stock reconciler: %w", err)
	}
	reconcileJob, err := cron.NewStockReconcileJob(cron.StockReconcileJobParams{
		Logger:     logg,
		Reconciler: reconciler,
	})
	if err != nil {
		return nil, fmt.Errorf("stock reconcile job: %w", err)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, reconcileJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func fatalOn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
