package invoices

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/invoice"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/mailer"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

const invoiceWorkerConsumer = "invoice-worker"

type orderStore interface {
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderInvoiceURLs(ctx context.Context, orderID uuid.UUID, urls types.InvoiceURLs) error
}

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type invoiceGenerator interface {
	Generate(ctx context.Context, params invoice.GenerateParams) (*invoice.GenerateResult, error)
}

type orderMailer interface {
	SendOrderConfirmation(ctx context.Context, msg mailer.OrderConfirmation) error
	SendOrderCancelled(ctx context.Context, msg mailer.OrderCancelledNotice) error
	SendPaymentFailed(ctx context.Context, msg mailer.PaymentFailedNotice) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order lifecycle events into invoice documents and customer
// email. The order is already paid by the time anything reaches this worker,
// so no failure here ever rolls order state back: invoice trouble nacks the
// message for redelivery, mail trouble is logged and dropped.
type Consumer struct {
	orders       orderStore
	users        userStore
	generator    invoiceGenerator
	mail         orderMailer
	subscription *pubsub.Subscriber
	idempotency  idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds the invoice worker consumer.
func NewConsumer(
	orders orderStore,
	users userStore,
	generator invoiceGenerator,
	mail orderMailer,
	subscription *pubsub.Subscriber,
	manager idempotencyChecker,
	logg *logger.Logger,
) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store required")
	}
	if generator == nil {
		return nil, fmt.Errorf("invoice generator required")
	}
	if mail == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("worker subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		orders:       orders,
		users:        users,
		generator:    generator,
		mail:         mail,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !c.handles(eventType) {
		c.logg.Info(logCtx, "skipping event outside invoice worker scope")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{"event_id": envelope.EventID})

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, invoiceWorkerConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handleEvent(ctx, eventType, envelope, logCtx); err != nil {
		c.logg.Error(logCtx, "event handling failed", err)
		_ = c.idempotency.Delete(ctx, invoiceWorkerConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderPaid, enums.EventOrderCancelled, enums.EventPaymentFailed:
		return true
	default:
		return false
	}
}

func (c *Consumer) handleEvent(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope, logCtx context.Context) error {
	switch eventType {
	case enums.EventOrderPaid:
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse order_paid payload: %w", err)
		}
		return c.handleOrderPaid(ctx, payload, logCtx)
	case enums.EventOrderCancelled:
		var payload payloads.OrderCancelledEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse order_cancelled payload: %w", err)
		}
		return c.handleOrderCancelled(ctx, payload, logCtx)
	case enums.EventPaymentFailed:
		var payload payloads.PaymentFailedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return fmt.Errorf("parse payment_failed payload: %w", err)
		}
		return c.handlePaymentFailed(ctx, payload, logCtx)
	default:
		return nil
	}
}

func (c *Consumer) handleOrderPaid(ctx context.Context, payload payloads.OrderPaidEvent, logCtx context.Context) error {
	order, err := c.orders.FindOrderByID(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}
	user, err := c.users.FindByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", order.UserID, err)
	}

	result, err := c.generator.Generate(ctx, invoiceParams(order, user))
	if err != nil {
		return fmt.Errorf("generate invoice %s: %w", order.InvoiceNumber, err)
	}

	urls := types.InvoiceURLs{
		PDFURL:    result.PDFURL,
		ImageURL:  result.ImageURL,
		QRCodeURL: result.QRCodeURL,
	}
	if err := c.orders.UpdateOrderInvoiceURLs(ctx, order.ID, urls); err != nil {
		return fmt.Errorf("store invoice urls for %s: %w", order.OrderNumber, err)
	}
	c.logg.Info(logCtx, "invoice generated")

	// The invoice is already on the order; losing the confirmation mail is
	// not worth replaying the whole event for.
	confirmation := mailer.OrderConfirmation{
		ToEmail:       user.Email,
		ToName:        user.FullName,
		OrderNumber:   order.OrderNumber,
		InvoiceNumber: order.InvoiceNumber,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency.String(),
		InvoiceURL:    result.PDFURL,
	}
	if err := c.mail.SendOrderConfirmation(ctx, confirmation); err != nil {
		c.logg.Error(logCtx, "order confirmation email failed", err)
		return nil
	}
	c.logg.Info(logCtx, "order confirmation sent")
	return nil
}

func (c *Consumer) handleOrderCancelled(ctx context.Context, payload payloads.OrderCancelledEvent, logCtx context.Context) error {
	user, err := c.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", payload.UserID, err)
	}

	notice := mailer.OrderCancelledNotice{
		ToEmail:     user.Email,
		ToName:      user.FullName,
		OrderNumber: payload.OrderNumber,
		TotalAmount: payload.TotalAmount,
		Currency:    payload.Currency,
		Reason:      payload.Reason,
	}
	if err := c.mail.SendOrderCancelled(ctx, notice); err != nil {
		c.logg.Error(logCtx, "cancellation email failed", err)
		return nil
	}
	c.logg.Info(logCtx, "cancellation email sent")
	return nil
}

func (c *Consumer) handlePaymentFailed(ctx context.Context, payload payloads.PaymentFailedEvent, logCtx context.Context) error {
	user, err := c.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", payload.UserID, err)
	}

	notice := mailer.PaymentFailedNotice{
		ToEmail:          user.Email,
		ToName:           user.FullName,
		PaymentReference: payload.PaymentReference,
		Reason:           payload.GatewayResponse,
	}
	if err := c.mail.SendPaymentFailed(ctx, notice); err != nil {
		c.logg.Error(logCtx, "payment failed email failed", err)
		return nil
	}
	c.logg.Info(logCtx, "payment failed notice sent")
	return nil
}

func invoiceParams(order *models.Order, user *models.User) invoice.GenerateParams {
	lines := make([]invoice.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, invoice.Line{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}

	issuedAt := order.CreatedAt
	if order.PaidAt != nil {
		issuedAt = *order.PaidAt
	}

	return invoice.GenerateParams{
		InvoiceNumber: order.InvoiceNumber,
		OrderNumber:   order.OrderNumber,
		CustomerName:  user.FullName,
		CustomerEmail: user.Email,
		Currency:      order.Currency.String(),
		Lines:         lines,
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		Credits:       order.Credits,
		Total:         order.TotalAmount,
		IssuedAt:      issuedAt,
	}
}
