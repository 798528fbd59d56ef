package paystackwebhook

import (
	"context"

	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"

	"github.com/tobennaogbu/kobocart-backend/internal/orders"
)

type orderConverter interface {
	VerifyAndMaterialize(ctx context.Context, reference string) (*orders.MaterializeResult, error)
	MarkPaymentFailed(ctx context.Context, reference, gatewayResponse string) error
}

type ServiceParams struct {
	Orders orderConverter
}

type Service struct {
	orders orderConverter
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{orders: params.Orders}, nil
}

// HandleEvent processes a signature-verified Paystack delivery. A nil return
// acknowledges the event; an error asks the gateway to redeliver. Unknown
// event types and references this service never issued are acknowledged so
// gateway schema growth and cross-environment noise never wedge the queue.
func (s *Service) HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "paystack event required")
	}

	switch event.Event {
	case paystack.EventChargeSuccess:
		charge, err := event.ChargeData()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload")
		}
		if charge.Reference == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
		}
		// The webhook converges on the same conversion path as client
		// polling; the charge is re-verified with the gateway and never
		// trusted from the delivery body.
		if _, err := s.orders.VerifyAndMaterialize(ctx, charge.Reference); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		return nil
	case paystack.EventChargeFailed:
		charge, err := event.ChargeData()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload")
		}
		if charge.Reference == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
		}
		if err := s.orders.MarkPaymentFailed(ctx, charge.Reference, charge.GatewayResponse); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		}
		return nil
	default:
		return nil
	}
}
