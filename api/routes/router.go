package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tobennaogbu/kobocart-backend/api/controllers"
	ordercontrollers "github.com/tobennaogbu/kobocart-backend/api/controllers/orders"
	webhookcontrollers "github.com/tobennaogbu/kobocart-backend/api/controllers/webhooks"
	"github.com/tobennaogbu/kobocart-backend/api/middleware"
	checkoutsvc "github.com/tobennaogbu/kobocart-backend/internal/checkout"
	internalorders "github.com/tobennaogbu/kobocart-backend/internal/orders"
	paystackwebhook "github.com/tobennaogbu/kobocart-backend/internal/webhooks/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

// Store is the slice of the Redis client the HTTP layer needs: idempotency
// records, rate limit counters, and the readiness ping.
type Store interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient Store,
	checkoutService checkoutsvc.Service,
	ordersService internalorders.Service,
	paystackClient *paystack.Client,
	webhookService *paystackwebhook.Service,
	webhookGuard *paystackwebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	verifyPolicy := middleware.NewRateLimitPolicy(
		"verify",
		cfg.RateLimit.VerifyWindow,
		cfg.RateLimit.VerifyLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	// Gateway deliveries authenticate by HMAC signature, not bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaystackWebhook(webhookService, paystackClient, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(cfg.Idempotency, redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/pending", controllers.CreatePendingOrder(checkoutService, logg))
			r.Get("/pending/{pendingOrderId}", controllers.GetPendingOrder(checkoutService, logg))
			r.Post("/pending/{pendingOrderId}/cancel", controllers.CancelPendingOrder(checkoutService, logg))

			// Clients poll verify while waiting on the gateway redirect, so
			// it carries its own throttle.
			r.With(middleware.RateLimit(verifyPolicy, redisClient, logg)).
				Post("/verify/{reference}", ordercontrollers.Verify(ordersService, logg))

			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersService, logg))
			r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
				Patch("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
		})
	})

	return r
}
