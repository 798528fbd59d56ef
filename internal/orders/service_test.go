package orders

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/internal/stock"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/pagination"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubVerifier struct {
	result *paystack.VerifyResult
	err    error
	calls  int
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (*paystack.VerifyResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newOrdersService(t *testing.T, gdb *gorm.DB, verifier *stubVerifier) Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "orders-test"})
	svc, err := NewService(
		testTxRunner{db: gdb},
		NewRepository(gdb),
		verifier,
		stock.NewLedger(logg),
		outbox.NewService(outbox.NewRepository(gdb), logg),
	)
	require.NoError(t, err)
	return svc
}

func successVerification(reference string, paidAt time.Time) *paystack.VerifyResult {
	return &paystack.VerifyResult{
		Status:                paystack.StatusSuccess,
		Reference:             reference,
		AmountMinor:           5000,
		Currency:              "NGN",
		ProviderTransactionID: "482911",
		PaidAt:                &paidAt,
		Channel:               "card",
		FeesMinor:             75,
		GatewayResponse:       "Successful",
		Authorization:         json.RawMessage(`{"authorization_code":"AUTH_kc01","last4":"4081"}`),
	}
}

func loadOutboxEvents(t *testing.T, gdb *gorm.DB, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()

	var events []models.OutboxEvent
	require.NoError(t, gdb.Where("event_type = ?", eventType).Find(&events).Error)
	return events
}

func loadHistory(t *testing.T, gdb *gorm.DB, orderID uuid.UUID) []models.OrderStatusHistory {
	t.Helper()

	var rows []models.OrderStatusHistory
	require.NoError(t, gdb.Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func loadAdjustments(t *testing.T, gdb *gorm.DB, orderID uuid.UUID) []models.StockAdjustment {
	t.Helper()

	var rows []models.StockAdjustment
	require.NoError(t, gdb.Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestServiceVerifyAndMaterialize_success(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	userID := uuid.New()
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    userID,
		reference: "kc_mat_success",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 2)},
	})

	paidAt := time.Now().UTC().Truncate(time.Second)
	verifier := &stubVerifier{result: successVerification(pending.PaymentReference, paidAt)}
	svc := newOrdersService(t, gdb, verifier)

	result, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
	assert.True(t, strings.HasPrefix(result.OrderNumber, "KC-"))
	assert.True(t, strings.HasPrefix(result.InvoiceNumber, "INV-"))
	assert.Equal(t, enums.OrderStatusProcessing, result.Status)

	var order models.Order
	require.NoError(t, gdb.Preload("Items").Where("id = ?", result.OrderID).First(&order).Error)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, pending.ID, order.PendingOrderID)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, paidAt.Unix(), order.PaidAt.Unix())

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, productID, item.ProductID)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(25)))
	assert.True(t, item.LineTotal.Equal(decimal.NewFromInt(50)))

	assert.Equal(t, 8, loadCatalogProduct(t, gdb, productID).Quantity)
	adjustments := loadAdjustments(t, gdb, order.ID)
	require.Len(t, adjustments, 1)
	assert.Equal(t, enums.StockAdjustmentDecrement, adjustments[0].Direction)
	assert.Equal(t, enums.StockAdjustmentApplied, adjustments[0].Status)
	assert.Equal(t, 2, adjustments[0].Quantity)

	txn := loadTransaction(t, gdb, pending.PaymentReference)
	assert.Equal(t, enums.PaymentStatusSuccess, txn.Status)
	require.NotNil(t, txn.ProviderTransactionID)
	assert.Equal(t, "482911", *txn.ProviderTransactionID)
	require.NotNil(t, txn.Channel)
	assert.Equal(t, "card", *txn.Channel)
	require.NotNil(t, txn.FeesMinor)
	assert.Equal(t, int64(75), *txn.FeesMinor)
	assert.Equal(t, "Successful", txn.GatewayResponse["gateway_response"])
	auth, ok := txn.GatewayResponse["authorization"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AUTH_kc01", auth["authorization_code"])

	reloaded := loadPending(t, gdb, pending.ID)
	require.True(t, reloaded.IsConverted())
	assert.Equal(t, result.OrderID, *reloaded.ConvertedToOrder)
	assert.Equal(t, enums.PaymentStatusSuccess, reloaded.PaymentStatus)

	history := loadHistory(t, gdb, order.ID)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusProcessing, history[0].NewStatus)
	assert.Equal(t, "order created from successful payment", history[0].Reason)

	events := loadOutboxEvents(t, gdb, enums.EventOrderPaid)
	require.Len(t, events, 1)
	assert.Equal(t, enums.AggregateOrder, events[0].AggregateType)
	assert.Equal(t, result.OrderID, events[0].AggregateID)
	assert.Contains(t, string(events[0].Payload), result.OrderNumber)
}

func TestServiceVerifyAndMaterialize_replay(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_mat_replay",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 2)},
	})

	verifier := &stubVerifier{result: successVerification(pending.PaymentReference, time.Now().UTC())}
	svc := newOrdersService(t, gdb, verifier)

	first, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)
	second, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)

	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	// The replay never reaches the gateway.
	assert.Equal(t, 1, verifier.calls)

	assert.Equal(t, int64(1), countRows(t, gdb, "orders"))
	assert.Equal(t, int64(1), countRows(t, gdb, "order_items"))
	assert.Equal(t, int64(1), countRows(t, gdb, "order_status_history"))
	assert.Equal(t, int64(1), countRows(t, gdb, "outbox_events"))
	assert.Equal(t, 8, loadCatalogProduct(t, gdb, productID).Quantity)
}

func TestServiceVerifyAndMaterialize_concurrentWinner(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_mat_race",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 1)},
	})

	// Another writer inserted the order but its conversion marker has not
	// been observed yet. The loser must back off to the winner's row.
	winnerNumber, err := newOrderNumber(time.Now())
	require.NoError(t, err)
	winnerInvoice, err := newInvoiceNumber(time.Now())
	require.NoError(t, err)
	winner := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     winnerNumber,
		InvoiceNumber:   winnerInvoice,
		UserID:          pending.UserID,
		PendingOrderID:  pending.ID,
		Status:          enums.OrderStatusProcessing,
		PaymentStatus:   "paid",
		Subtotal:        pending.Subtotal,
		TotalAmount:     pending.TotalAmount,
		Currency:        enums.CurrencyNGN,
		DeliveryAddress: lagosAddress(),
	}
	require.NoError(t, gdb.Create(winner).Error)

	verifier := &stubVerifier{result: successVerification(pending.PaymentReference, time.Now().UTC())}
	svc := newOrdersService(t, gdb, verifier)

	result, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)
	assert.True(t, result.AlreadyExisted)
	assert.Equal(t, winner.ID, result.OrderID)
	assert.Equal(t, winner.OrderNumber, result.OrderNumber)

	// The losing attempt rolled back whole: no stray rows, no stock movement.
	assert.Equal(t, int64(1), countRows(t, gdb, "orders"))
	assert.Equal(t, int64(0), countRows(t, gdb, "outbox_events"))
	assert.Equal(t, 10, loadCatalogProduct(t, gdb, productID).Quantity)
}

func TestServiceVerifyAndMaterialize_abandonedNoMutation(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_mat_abandoned",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 1)},
	})

	verifier := &stubVerifier{result: &paystack.VerifyResult{
		Status:    paystack.StatusAbandoned,
		Reference: pending.PaymentReference,
	}}
	svc := newOrdersService(t, gdb, verifier)

	_, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentNotSuccessful))

	// An abandoned charge can still be retried, so nothing moves.
	assert.Equal(t, enums.PaymentStatusPending, loadPending(t, gdb, pending.ID).PaymentStatus)
	assert.Equal(t, enums.PaymentStatusPending, loadTransaction(t, gdb, pending.PaymentReference).Status)
	assert.Equal(t, int64(0), countRows(t, gdb, "orders"))
	assert.Equal(t, int64(0), countRows(t, gdb, "outbox_events"))
}

func TestServiceVerifyAndMaterialize_failedMarksPending(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_mat_failed",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 1)},
	})

	verifier := &stubVerifier{result: &paystack.VerifyResult{
		Status:          paystack.StatusFailed,
		Reference:       pending.PaymentReference,
		GatewayResponse: "Declined",
	}}
	svc := newOrdersService(t, gdb, verifier)

	_, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentNotSuccessful))

	assert.Equal(t, enums.PaymentStatusFailed, loadPending(t, gdb, pending.ID).PaymentStatus)
	txn := loadTransaction(t, gdb, pending.PaymentReference)
	assert.Equal(t, enums.PaymentStatusFailed, txn.Status)
	assert.Equal(t, "Declined", txn.GatewayResponse["gateway_response"])
	assert.Equal(t, int64(0), countRows(t, gdb, "orders"))

	events := loadOutboxEvents(t, gdb, enums.EventPaymentFailed)
	require.Len(t, events, 1)
	assert.Equal(t, enums.AggregatePendingOrder, events[0].AggregateType)
	assert.Equal(t, pending.ID, events[0].AggregateID)
}

func TestServiceVerifyAndMaterialize_unknownReference(t *testing.T) {
	gdb := setupOrdersTestDB(t)

	verifier := &stubVerifier{}
	svc := newOrdersService(t, gdb, verifier)

	_, err := svc.VerifyAndMaterialize(context.Background(), "kc_never_issued")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Zero(t, verifier.calls)
}

func TestServiceVerifyAndMaterialize_shortStockParksAdjustment(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 1)
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_mat_short",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 3)},
	})

	verifier := &stubVerifier{result: successVerification(pending.PaymentReference, time.Now().UTC())}
	svc := newOrdersService(t, gdb, verifier)

	result, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)

	// The customer already paid: the order exists even though the shelf ran
	// dry, and the short adjustment waits for reconciliation.
	assert.Equal(t, int64(1), countRows(t, gdb, "orders"))
	assert.Equal(t, 1, loadCatalogProduct(t, gdb, productID).Quantity)
	adjustments := loadAdjustments(t, gdb, result.OrderID)
	require.Len(t, adjustments, 1)
	assert.Equal(t, enums.StockAdjustmentFailed, adjustments[0].Status)
	require.Len(t, loadOutboxEvents(t, gdb, enums.EventOrderPaid), 1)
}

func TestServiceMarkPaymentFailed_idempotent(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_fail_once",
		status:    enums.PaymentStatusInitialized,
		lines:     types.CartSnapshot{cartLine(uuid.New(), "Widget", 25, 1)},
	})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	require.NoError(t, svc.MarkPaymentFailed(ctx, pending.PaymentReference, "Insufficient funds"))
	assert.Equal(t, enums.PaymentStatusFailed, loadPending(t, gdb, pending.ID).PaymentStatus)
	txn := loadTransaction(t, gdb, pending.PaymentReference)
	assert.Equal(t, enums.PaymentStatusFailed, txn.Status)
	assert.Equal(t, "Insufficient funds", txn.GatewayResponse["gateway_response"])
	require.Len(t, loadOutboxEvents(t, gdb, enums.EventPaymentFailed), 1)

	// A duplicate webhook delivery re-reports the failure: nothing changes.
	require.NoError(t, svc.MarkPaymentFailed(ctx, pending.PaymentReference, "Late duplicate"))
	txn = loadTransaction(t, gdb, pending.PaymentReference)
	assert.Equal(t, "Insufficient funds", txn.GatewayResponse["gateway_response"])
	require.Len(t, loadOutboxEvents(t, gdb, enums.EventPaymentFailed), 1)
}

func TestServiceMarkPaymentFailed_settledUntouched(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    uuid.New(),
		reference: "kc_fail_settled",
		status:    enums.PaymentStatusSuccess,
		lines:     types.CartSnapshot{cartLine(uuid.New(), "Widget", 25, 1)},
	})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	require.NoError(t, svc.MarkPaymentFailed(ctx, pending.PaymentReference, "Out-of-order failure"))
	assert.Equal(t, enums.PaymentStatusSuccess, loadPending(t, gdb, pending.ID).PaymentStatus)
	assert.Equal(t, enums.PaymentStatusPending, loadTransaction(t, gdb, pending.PaymentReference).Status)
	assert.Empty(t, loadOutboxEvents(t, gdb, enums.EventPaymentFailed))
}

func TestServiceCancelOrder_restocksAndEmits(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	productID := seedCatalogProduct(t, gdb, 10)
	userID := uuid.New()
	pending := seedPendingOrder(t, gdb, pendingSeed{
		userID:    userID,
		reference: "kc_cancel_flow",
		status:    enums.PaymentStatusPending,
		lines:     types.CartSnapshot{cartLine(productID, "Orders Test Product", 25, 2)},
	})

	verifier := &stubVerifier{result: successVerification(pending.PaymentReference, time.Now().UTC())}
	svc := newOrdersService(t, gdb, verifier)

	materialized, err := svc.VerifyAndMaterialize(ctx, pending.PaymentReference)
	require.NoError(t, err)
	require.Equal(t, 8, loadCatalogProduct(t, gdb, productID).Quantity)

	cancelled, err := svc.CancelOrder(ctx, Actor{UserID: userID}, materialized.OrderID, "ordered the wrong size")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, 10, loadCatalogProduct(t, gdb, productID).Quantity)
	adjustments := loadAdjustments(t, gdb, materialized.OrderID)
	require.Len(t, adjustments, 2)

	history := loadHistory(t, gdb, materialized.OrderID)
	require.Len(t, history, 2)
	last := history[1]
	require.NotNil(t, last.OldStatus)
	assert.Equal(t, enums.OrderStatusProcessing, *last.OldStatus)
	assert.Equal(t, enums.OrderStatusCancelled, last.NewStatus)
	require.NotNil(t, last.ChangedBy)
	assert.Equal(t, userID, *last.ChangedBy)
	assert.Equal(t, "ordered the wrong size", last.Reason)

	events := loadOutboxEvents(t, gdb, enums.EventOrderCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, materialized.OrderID, events[0].AggregateID)
}

func TestServiceCancelOrder_rejectsShipped(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	userID := uuid.New()
	order := seedOrder(t, gdb, orderSeed{userID: userID, status: enums.OrderStatusShipped})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	_, err := svc.CancelOrder(ctx, Actor{UserID: userID}, order.ID, "too late")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var reloaded models.Order
	require.NoError(t, gdb.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusShipped, reloaded.Status)
	assert.Nil(t, reloaded.CancelledAt)
	assert.Empty(t, loadHistory(t, gdb, order.ID))
	assert.Empty(t, loadOutboxEvents(t, gdb, enums.EventOrderCancelled))
}

func TestServiceCancelOrder_scope(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	owner := uuid.New()
	productID := seedCatalogProduct(t, gdb, 5)
	order := seedOrder(t, gdb, orderSeed{userID: owner, status: enums.OrderStatusProcessing, productID: productID, qty: 2})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	_, err := svc.CancelOrder(ctx, Actor{UserID: uuid.New()}, order.ID, "not mine")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	admin := Actor{UserID: uuid.New(), IsAdmin: true}
	cancelled, err := svc.CancelOrder(ctx, admin, order.ID, "fraud review")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 7, loadCatalogProduct(t, gdb, productID).Quantity)
}

func TestServiceUpdateStatus_transitionChain(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	adminID := uuid.New()
	order := seedOrder(t, gdb, orderSeed{userID: uuid.New(), status: enums.OrderStatusProcessing})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	shipped, err := svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatusShipped, "handed to courier")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)

	delivered, err := svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatusDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)

	history := loadHistory(t, gdb, order.ID)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusProcessing, *history[0].OldStatus)
	assert.Equal(t, enums.OrderStatusShipped, history[0].NewStatus)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, adminID, *history[0].ChangedBy)
	assert.Equal(t, enums.OrderStatusDelivered, history[1].NewStatus)

	_, err = svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatusCancelled, "too late")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatusDelivered, "again")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatus("burned"), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	// The rejected transitions left no trace.
	assert.Len(t, loadHistory(t, gdb, order.ID), 2)
}

func TestServiceUpdateStatus_cancelRestocks(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	adminID := uuid.New()
	productID := seedCatalogProduct(t, gdb, 5)
	order := seedOrder(t, gdb, orderSeed{userID: uuid.New(), status: enums.OrderStatusProcessing, productID: productID, qty: 2})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	cancelled, err := svc.UpdateStatus(ctx, adminID, order.ID, enums.OrderStatusCancelled, "supplier recall")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, 7, loadCatalogProduct(t, gdb, productID).Quantity)
	adjustments := loadAdjustments(t, gdb, order.ID)
	require.Len(t, adjustments, 1)
	assert.Equal(t, enums.StockAdjustmentIncrement, adjustments[0].Direction)

	events := loadOutboxEvents(t, gdb, enums.EventOrderCancelled)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), "supplier recall")
}

func TestServiceGetOrder_scope(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	owner := uuid.New()
	order := seedOrder(t, gdb, orderSeed{userID: owner, status: enums.OrderStatusProcessing, qty: 3})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	found, err := svc.GetOrder(ctx, Actor{UserID: owner}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, 3, found.Items[0].Quantity)

	_, err = svc.GetOrder(ctx, Actor{UserID: uuid.New()}, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetOrder(ctx, Actor{UserID: uuid.New(), IsAdmin: true}, order.ID)
	require.NoError(t, err)
}

func TestServiceListOrders_scoping(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	now := time.Now().UTC()
	seedOrder(t, gdb, orderSeed{userID: alice, status: enums.OrderStatusProcessing, createdAt: now.Add(-3 * time.Minute)})
	seedOrder(t, gdb, orderSeed{userID: alice, status: enums.OrderStatusShipped, createdAt: now.Add(-2 * time.Minute)})
	seedOrder(t, gdb, orderSeed{userID: bob, status: enums.OrderStatusProcessing, createdAt: now.Add(-time.Minute)})

	svc := newOrdersService(t, gdb, &stubVerifier{})

	mine, err := svc.ListOrders(ctx, Actor{UserID: alice}, pagination.Params{}, nil)
	require.NoError(t, err)
	assert.Len(t, mine.Orders, 2)

	all, err := svc.ListOrders(ctx, Actor{UserID: uuid.New(), IsAdmin: true}, pagination.Params{}, nil)
	require.NoError(t, err)
	assert.Len(t, all.Orders, 3)

	shipped := enums.OrderStatusShipped
	filtered, err := svc.ListOrders(ctx, Actor{UserID: alice}, pagination.Params{}, &shipped)
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, enums.OrderStatusShipped, filtered.Orders[0].Status)

	_, err = svc.ListOrders(ctx, Actor{UserID: alice}, pagination.Params{Cursor: "%%%"}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
