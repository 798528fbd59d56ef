package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tobennaogbu/kobocart-backend/api/responses"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"

	paystackwebhook "github.com/tobennaogbu/kobocart-backend/internal/webhooks/paystack"
)

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error
}

type paystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type signatureVerifier interface {
	VerifySignature(rawBody []byte, signatureHeader string) bool
}

// PaystackWebhook handles charge lifecycle deliveries. The body is untrusted
// until its HMAC signature passes; charge events are deduplicated by event
// type plus reference because Paystack deliveries carry no event id.
func PaystackWebhook(svc PaystackWebhookService, verifier signatureVerifier, guard paystackWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !verifier.VerifySignature(rawBody, r.Header.Get("X-Paystack-Signature")) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := paystack.ParseWebhook(rawBody)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body"))
			return
		}

		// Non-charge events are acknowledged without dedupe; there is no
		// reference to key them by and the handler ignores them anyway.
		if event.Event != paystack.EventChargeSuccess && event.Event != paystack.EventChargeFailed {
			responses.WriteSuccess(w, nil)
			return
		}

		charge, err := event.ChargeData()
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload"))
			return
		}
		if charge.Reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing"))
			return
		}

		deliveryID := paystackwebhook.DeliveryID(event.Event, charge.Reference)
		alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			// Drop the claim so the gateway's redelivery gets a clean retry.
			_ = guard.Release(ctx, deliveryID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("paystack event %s processed", deliveryID))
		}
		responses.WriteSuccess(w, nil)
	}
}
