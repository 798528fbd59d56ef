package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/tobennaogbu/kobocart-backend/api/routes"
	"github.com/tobennaogbu/kobocart-backend/internal/checkout"
	"github.com/tobennaogbu/kobocart-backend/internal/orders"
	product "github.com/tobennaogbu/kobocart-backend/internal/products"
	"github.com/tobennaogbu/kobocart-backend/internal/stock"
	"github.com/tobennaogbu/kobocart-backend/internal/users"
	paystackwebhook "github.com/tobennaogbu/kobocart-backend/internal/webhooks/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/migrate"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	fatalOn(ctx, logg, "failed to load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	paystackClient, err := paystack.NewClient(ctx, cfg.Paystack, logg)
	fatalOn(ctx, logg, "failed to bootstrap paystack client", err)

	checkoutService, err := checkout.NewService(
		dbClient,
		checkout.NewRepository(dbClient.DB()),
		users.NewRepository(dbClient.DB()),
		product.NewRepository(dbClient.DB()),
		paystackClient,
	)
	fatalOn(ctx, logg, "failed to create checkout service", err)

	ordersService, err := orders.NewService(
		dbClient,
		orders.NewRepository(dbClient.DB()),
		paystackClient,
		stock.NewLedger(logg),
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
	)
	fatalOn(ctx, logg, "failed to create orders service", err)

	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{Orders: ordersService})
	fatalOn(ctx, logg, "failed to create webhook service", err)

	webhookGuard, err := paystackwebhook.NewIdempotencyGuard(redisClient, cfg.Idempotency.TTL, "paystack-webhook")
	fatalOn(ctx, logg, "failed to create webhook idempotency guard", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			ordersService,
			paystackClient,
			webhookService,
			webhookGuard,
		),
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func fatalOn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
