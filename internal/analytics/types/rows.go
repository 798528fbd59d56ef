package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// RevenueRow mirrors the order_revenue BigQuery schema. Amounts are signed
// minor units: paid orders book positive revenue, cancellations book the
// reversal, and lifecycle facts (payment_failed, pending_order_expired)
// land with a zero amount for funnel analysis.
type RevenueRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OrderID          *string            `bigquery:"order_id"`
	PendingOrderID   *string            `bigquery:"pending_order_id"`
	OrderNumber      *string            `bigquery:"order_number"`
	UserID           string             `bigquery:"user_id"`
	PaymentReference *string            `bigquery:"payment_reference"`
	AmountMinor      int64              `bigquery:"amount_minor"`
	Currency         string             `bigquery:"currency"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	IngestedAt       time.Time          `bigquery:"ingested_at"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
