package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/router"
	"github.com/tobennaogbu/kobocart-backend/internal/analytics/worker"
	"github.com/tobennaogbu/kobocart-backend/internal/analytics/writer"
	"github.com/tobennaogbu/kobocart-backend/pkg/bigquery"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/idempotency"
	"github.com/tobennaogbu/kobocart-backend/pkg/pubsub"
	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer closeQuietly(ctx, logg, "redis client", redisClient)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer closeQuietly(ctx, logg, "pubsub client", pubsubClient)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer closeQuietly(ctx, logg, "bigquery client", bqClient)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	analyticsWriter, err := writer.New(bqClient, writer.Config{RevenueTable: cfg.BigQuery.RevenueTable})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(analyticsWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	service, err := worker.NewService(subscription, routingHandler, manager, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closer io.Closer) {
	if err := closer.Close(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
