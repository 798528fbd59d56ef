package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
	"github.com/tobennaogbu/kobocart-backend/pkg/pagination"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentVerifier interface {
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

type stockLedger interface {
	Decrement(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (bool, error)
	Increment(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	// VerifyAndMaterialize confirms payment with the gateway and turns the
	// pending order into a real order exactly once. Replays and the losing
	// side of a concurrent conversion both get the existing order back.
	VerifyAndMaterialize(ctx context.Context, reference string) (*MaterializeResult, error)
	// MarkPaymentFailed records a gateway-reported charge failure. Settled
	// and cancelled pending orders are left untouched.
	MarkPaymentFailed(ctx context.Context, reference, gatewayResponse string) error
	GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error)
	CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	UpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, target enums.OrderStatus, reason string) (*models.Order, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	gateway paymentVerifier
	stock   stockLedger
	events  outboxPublisher
}

func NewService(
	tx txRunner,
	repo Repository,
	gateway paymentVerifier,
	stock stockLedger,
	events outboxPublisher,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:      tx,
		repo:    repo,
		gateway: gateway,
		stock:   stock,
		events:  events,
	}, nil
}

func (s *service) VerifyAndMaterialize(ctx context.Context, reference string) (*MaterializeResult, error) {
	pending, err := s.repo.FindPendingOrderByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pending order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending order")
	}

	if pending.IsConverted() {
		return s.replayResult(ctx, pending.ID)
	}

	verification, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	if !verification.IsSuccessful() {
		if verification.Status == paystack.StatusFailed {
			if err := s.MarkPaymentFailed(ctx, reference, verification.GatewayResponse); err != nil {
				return nil, err
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotSuccessful,
			fmt.Sprintf("payment is %s, not successful", verification.Status)).
			WithDetails(map[string]any{"status": verification.Status})
	}

	paidAt := time.Now().UTC()
	if verification.PaidAt != nil {
		paidAt = verification.PaidAt.UTC()
	}

	for attempt := 0; attempt < numberAttempts; attempt++ {
		result, err := s.materialize(ctx, pending, verification, paidAt)
		if err == nil {
			return result, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "materialize order")
		}

		// A unique violation is one of two things: a concurrent writer
		// converted this pending order first, or a generated order or invoice
		// number collided. An order row for the pending order settles which.
		winner, lookupErr := s.repo.FindOrderByPendingOrderID(ctx, pending.ID)
		if lookupErr == nil {
			return resultFromOrder(winner, true), nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "resolve conversion race")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "order number collisions exhausted retries")
}

func (s *service) replayResult(ctx context.Context, pendingOrderID uuid.UUID) (*MaterializeResult, error) {
	order, err := s.repo.FindOrderByPendingOrderID(ctx, pendingOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load converted order")
	}
	return resultFromOrder(order, true), nil
}

func resultFromOrder(order *models.Order, existed bool) *MaterializeResult {
	return &MaterializeResult{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		InvoiceNumber:  order.InvoiceNumber,
		Status:         order.Status,
		InvoiceURLs:    order.InvoiceURLs,
		AlreadyExisted: existed,
	}
}

// materialize runs the conversion transaction. Errors come back unwrapped so
// the caller can pick unique violations out of them.
func (s *service) materialize(ctx context.Context, pending *models.PendingOrder, verification *paystack.VerifyResult, paidAt time.Time) (*MaterializeResult, error) {
	now := time.Now()
	orderNumber, err := newOrderNumber(now)
	if err != nil {
		return nil, err
	}
	invoiceNumber, err := newInvoiceNumber(now)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     orderNumber,
		InvoiceNumber:   invoiceNumber,
		UserID:          pending.UserID,
		PendingOrderID:  pending.ID,
		Status:          enums.OrderStatusProcessing,
		PaymentStatus:   "paid",
		Subtotal:        pending.Subtotal,
		Discount:        pending.Discount,
		Credits:         pending.Credits,
		TotalAmount:     pending.TotalAmount,
		Currency:        pending.Currency,
		DeliveryAddress: pending.DeliveryAddress,
		PaidAt:          &paidAt,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(pending.CartSnapshot))
		for _, line := range pending.CartSnapshot {
			items = append(items, models.OrderItem{
				ID:           uuid.New(),
				OrderID:      order.ID,
				ProductID:    line.ProductID,
				Name:         line.Name,
				Description:  line.Description,
				UnitPrice:    line.UnitPrice,
				Quantity:     line.Quantity,
				LineTotal:    line.LineTotal,
				CategoryName: line.CategoryName,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return err
		}

		// Short stock parks a journal row instead of failing: the customer
		// has paid, so the order materializes regardless.
		for _, line := range pending.CartSnapshot {
			if _, err := s.stock.Decrement(ctx, tx, order.ID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		txnUpdates, err := paymentTransactionUpdates(verification, paidAt)
		if err != nil {
			return err
		}
		if err := repo.UpdatePaymentTransaction(ctx, pending.PaymentReference, txnUpdates); err != nil {
			return err
		}

		if err := repo.MarkPendingOrderConverted(ctx, pending.ID, order.ID); err != nil {
			return err
		}

		if err := repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
			ID:        uuid.New(),
			OrderID:   order.ID,
			NewStatus: enums.OrderStatusProcessing,
			Reason:    "order created from successful payment",
		}); err != nil {
			return err
		}

		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				InvoiceNumber:    order.InvoiceNumber,
				PendingOrderID:   pending.ID,
				UserID:           pending.UserID,
				PaymentReference: pending.PaymentReference,
				TotalAmount:      pending.TotalAmount,
				Currency:         string(pending.Currency),
				PaidAt:           paidAt,
			},
			Version:    1,
			OccurredAt: paidAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return resultFromOrder(order, false), nil
}

func paymentTransactionUpdates(verification *paystack.VerifyResult, paidAt time.Time) (map[string]interface{}, error) {
	response := types.JSONMap{
		"status":           verification.Status,
		"gateway_response": verification.GatewayResponse,
		"amount_minor":     verification.AmountMinor,
		"currency":         verification.Currency,
	}
	if len(verification.Authorization) > 0 {
		response["authorization"] = json.RawMessage(verification.Authorization)
	}
	// Map updates bypass the model serializer, so the payload is marshalled
	// by hand before it goes into the jsonb column.
	raw, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway response: %w", err)
	}

	updates := map[string]interface{}{
		"status":           enums.PaymentStatusSuccess,
		"paid_at":          paidAt,
		"gateway_response": string(raw),
	}
	if verification.ProviderTransactionID != "" {
		updates["provider_transaction_id"] = verification.ProviderTransactionID
	}
	if verification.Channel != "" {
		updates["channel"] = verification.Channel
	}
	if verification.FeesMinor > 0 {
		updates["fees_minor"] = verification.FeesMinor
	}
	return updates, nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, reference, gatewayResponse string) error {
	pending, err := s.repo.FindPendingOrderByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pending order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending order")
	}

	failedAt := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.MarkPendingOrderFailed(ctx, reference)
		if err != nil {
			return err
		}
		if !moved {
			// Already settled or cancelled. A late failure report changes
			// nothing.
			return nil
		}

		response, err := json.Marshal(types.JSONMap{"gateway_response": gatewayResponse})
		if err != nil {
			return fmt.Errorf("marshal gateway response: %w", err)
		}
		if err := repo.UpdatePaymentTransaction(ctx, reference, map[string]interface{}{
			"status":           enums.PaymentStatusFailed,
			"gateway_response": string(response),
		}); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePendingOrder,
			AggregateID:   pending.ID,
			Data: payloads.PaymentFailedEvent{
				PendingOrderID:   pending.ID,
				UserID:           pending.UserID,
				PaymentReference: reference,
				Amount:           pending.TotalAmount,
				Currency:         string(pending.Currency),
				GatewayResponse:  gatewayResponse,
				FailedAt:         failedAt,
			},
			Version:    1,
			OccurredAt: failedAt,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment failure")
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	// Foreign orders read as absent, not forbidden. Order ids are not
	// disclosed across accounts.
	if !actor.IsAdmin && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error) {
	filters := OrderFilters{Status: status}
	if !actor.IsAdmin {
		userID := actor.UserID
		filters.UserID = &userID
	}

	list, err := s.repo.ListOrders(ctx, params, filters)
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return nil, coded
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

func (s *service) CancelOrder(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanBeCancelled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s and can no longer be cancelled", order.Status))
	}

	cancelledAt := time.Now().UTC()
	previous := order.Status
	changedBy := actor.UserID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ok, err := repo.UpdateOrderStatusIf(ctx, orderID, []enums.OrderStatus{
			enums.OrderStatusPending,
			enums.OrderStatusProcessing,
		}, map[string]interface{}{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": cancelledAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			// Shipped or cancelled between the read and the update.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state, refresh and retry")
		}

		for _, item := range order.Items {
			if _, err := s.stock.Increment(ctx, tx, order.ID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
			ID:        uuid.New(),
			OrderID:   order.ID,
			OldStatus: &previous,
			NewStatus: enums.OrderStatusCancelled,
			ChangedBy: &changedBy,
			Reason:    reason,
		}); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.role().String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				Currency:    string(order.Currency),
				CancelledAt: cancelledAt,
				Reason:      reason,
			},
			Version:    1,
			OccurredAt: cancelledAt,
		})
	})
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return nil, coded
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}

	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &cancelledAt
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, target enums.OrderStatus, reason string) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", target))
	}

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if order.Status == target {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is already %s", target))
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot move from %s to %s", order.Status, target))
	}

	now := time.Now().UTC()
	previous := order.Status
	changedBy := adminID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]interface{}{"status": target}
		if target == enums.OrderStatusCancelled {
			updates["cancelled_at"] = now
		}
		ok, err := repo.UpdateOrderStatusIf(ctx, orderID, []enums.OrderStatus{previous}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state, refresh and retry")
		}

		if target == enums.OrderStatusCancelled {
			for _, item := range order.Items {
				if _, err := s.stock.Increment(ctx, tx, order.ID, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if err := repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
			ID:        uuid.New(),
			OrderID:   order.ID,
			OldStatus: &previous,
			NewStatus: target,
			ChangedBy: &changedBy,
			Reason:    reason,
		}); err != nil {
			return err
		}

		if target != enums.OrderStatusCancelled {
			return nil
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.UserRoleAdmin.String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				Currency:    string(order.Currency),
				CancelledAt: now,
				Reason:      reason,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return nil, coded
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	order.Status = target
	if target == enums.OrderStatusCancelled {
		order.CancelledAt = &now
	}
	return order, nil
}
