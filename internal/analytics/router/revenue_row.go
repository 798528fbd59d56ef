package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	analyticswriter "github.com/tobennaogbu/kobocart-backend/internal/analytics/writer"
)

type rowIdentity struct {
	orderID          uuid.UUID
	pendingOrderID   uuid.UUID
	orderNumber      string
	userID           uuid.UUID
	paymentReference string
}

func buildRevenueRow(envelope types.Envelope, identity rowIdentity, amount int64, currency string, occurred time.Time, payload any) (types.RevenueRow, error) {
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}

	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return types.RevenueRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	return types.RevenueRow{
		EventID:          envelope.EventID,
		EventType:        string(envelope.EventType),
		OrderID:          uuidPtr(identity.orderID),
		PendingOrderID:   uuidPtr(identity.pendingOrderID),
		OrderNumber:      stringPtr(identity.orderNumber),
		UserID:           identity.userID.String(),
		PaymentReference: stringPtr(identity.paymentReference),
		AmountMinor:      amount,
		Currency:         currency,
		OccurredAt:       occurred.UTC(),
		IngestedAt:       time.Now().UTC(),
		Payload:          payloadJSON,
	}, nil
}

// amountMinor converts a decimal amount to signed minor units, rounding half
// away from zero to two decimal places first.
func amountMinor(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
