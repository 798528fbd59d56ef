package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

func TestServiceCreatePendingOrder(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()

	repo := newStubCheckoutRepo()
	gateway := &stubGateway{}
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productA: testProduct(productA, 1500, 10),
			productB: testProduct(productB, 2500, 4),
		},
	}, gateway)

	input := validInput(userID, []CartItemInput{
		{ProductID: productA, Quantity: 3},
		{ProductID: productB, Quantity: 1},
	})
	input.Discount = decimal.NewFromInt(500)

	result, err := service.CreatePendingOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}

	if !strings.HasPrefix(result.PaymentReference, "kc_") {
		t.Fatalf("unexpected reference format: %s", result.PaymentReference)
	}
	if !result.Amount.Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("amount mismatch: %s", result.Amount)
	}
	if result.Currency != enums.CurrencyNGN {
		t.Fatalf("currency mismatch: %s", result.Currency)
	}
	if result.AuthorizationURL == "" || result.AccessCode == "" {
		t.Fatalf("gateway handles missing: %+v", result)
	}

	pending, ok := repo.pending[result.PendingOrderID]
	if !ok {
		t.Fatalf("pending order not persisted")
	}
	if pending.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("expected pending status after session attach, got %s", pending.PaymentStatus)
	}
	if pending.AccessCode == nil || *pending.AccessCode != result.AccessCode {
		t.Fatalf("access code not recorded")
	}
	if !pending.Subtotal.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("subtotal mismatch: %s", pending.Subtotal)
	}
	if !pending.TotalAmount.Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("total mismatch: %s", pending.TotalAmount)
	}
	if len(pending.CartSnapshot) != 2 {
		t.Fatalf("expected 2 snapshot lines, got %d", len(pending.CartSnapshot))
	}
	if !pending.CartSnapshot[0].LineTotal.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("line total mismatch: %s", pending.CartSnapshot[0].LineTotal)
	}

	txn, ok := repo.transactions[result.PaymentReference]
	if !ok {
		t.Fatalf("payment transaction not persisted")
	}
	if txn.Status != enums.PaymentStatusPending {
		t.Fatalf("transaction status mismatch: %s", txn.Status)
	}
	if !txn.Amount.Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("transaction amount mismatch: %s", txn.Amount)
	}

	if len(gateway.initialized) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gateway.initialized))
	}
	call := gateway.initialized[0]
	if call.AmountMinorUnits != 650000 {
		t.Fatalf("minor units mismatch: %d", call.AmountMinorUnits)
	}
	if call.Reference != result.PaymentReference {
		t.Fatalf("reference mismatch: %s vs %s", call.Reference, result.PaymentReference)
	}
	if call.Metadata["pending_order_id"] != result.PendingOrderID.String() {
		t.Fatalf("metadata missing pending order id: %+v", call.Metadata)
	}
}

func TestServiceCreatePendingOrderInsufficientStock(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	repo := newStubCheckoutRepo()
	gateway := &stubGateway{}
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 2),
		},
	}, gateway)

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 5},
	}))
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatalf("pending order should not be persisted")
	}
	if len(gateway.initialized) != 0 {
		t.Fatalf("gateway should not be called")
	}
}

func TestServiceCreatePendingOrderRejectsNonPositiveTotal(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	repo := newStubCheckoutRepo()
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1000, 10),
		},
	}, &stubGateway{})

	input := validInput(userID, []CartItemInput{{ProductID: productID, Quantity: 1}})
	input.Discount = decimal.NewFromInt(700)
	input.Credits = decimal.NewFromInt(300)

	_, err := service.CreatePendingOrder(context.Background(), input)
	if err == nil {
		t.Fatal("expected validation error for zero total")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatalf("pending order should not be persisted")
	}
}

func TestServiceCreatePendingOrderUnknownProduct(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	known := uuid.New()

	service := newTestService(t, newStubCheckoutRepo(), activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			known: testProduct(known, 1500, 5),
		},
	}, &stubGateway{})

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: known, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	}))
	if err == nil {
		t.Fatal("expected not found error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceCreatePendingOrderDuplicateLine(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	service := newTestService(t, newStubCheckoutRepo(), activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 10),
		},
	}, &stubGateway{})

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 1},
		{ProductID: productID, Quantity: 2},
	}))
	if err == nil {
		t.Fatal("expected duplicate line rejection")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
	if typed.Message() != "duplicate product line" {
		t.Fatalf("unexpected message: %s", typed.Message())
	}
}

func TestServiceCreatePendingOrderInactiveUser(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	users := stubUserLoader{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "dormant@example.com", IsActive: false},
	}}
	service := newTestService(t, newStubCheckoutRepo(), users, stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 10),
		},
	}, &stubGateway{})

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 1},
	}))
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceCreatePendingOrderGatewayFailureKeepsRow(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	repo := newStubCheckoutRepo()
	gateway := &stubGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "paystack request failed")}
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 10),
		},
	}, gateway)

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 2},
	}))
	if err == nil {
		t.Fatal("expected gateway error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.pending) != 1 {
		t.Fatalf("expected initialized row to survive, got %d rows", len(repo.pending))
	}
	for _, pending := range repo.pending {
		if pending.PaymentStatus != enums.PaymentStatusInitialized {
			t.Fatalf("expected initialized status, got %s", pending.PaymentStatus)
		}
		if pending.AccessCode != nil {
			t.Fatalf("access code should not be set")
		}
	}
	if len(repo.transactions) != 0 {
		t.Fatalf("no payment transaction expected, got %d", len(repo.transactions))
	}
}

func TestServiceCreatePendingOrderRetriesReferenceCollision(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	repo := newStubCheckoutRepo()
	repo.createFailures = 1
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 10),
		},
	}, &stubGateway{})

	result, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 1},
	}))
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if repo.createCalls != 2 {
		t.Fatalf("expected 2 create attempts, got %d", repo.createCalls)
	}
	if result.PaymentReference == "" {
		t.Fatal("expected a reference")
	}
}

func TestServiceCreatePendingOrderExhaustsReferenceRetries(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()

	repo := newStubCheckoutRepo()
	repo.createFailures = referenceAttempts
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{
		products: map[uuid.UUID]models.Product{
			productID: testProduct(productID, 1500, 10),
		},
	}, &stubGateway{})

	_, err := service.CreatePendingOrder(context.Background(), validInput(userID, []CartItemInput{
		{ProductID: productID, Quantity: 1},
	}))
	if err == nil {
		t.Fatal("expected exhausted retries error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.createCalls != referenceAttempts {
		t.Fatalf("expected %d create attempts, got %d", referenceAttempts, repo.createCalls)
	}
}

func TestServiceCancelPendingOrder(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	repo := newStubCheckoutRepo()
	pending := seedStubPending(repo, userID, enums.PaymentStatusPending)
	repo.transactions[pending.PaymentReference] = &models.PaymentTransaction{
		PaymentReference: pending.PaymentReference,
		Amount:           pending.TotalAmount,
		Currency:         pending.Currency,
		Status:           enums.PaymentStatusPending,
	}
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{}, &stubGateway{})

	cancelled, err := service.CancelPendingOrder(context.Background(), userID, pending.ID)
	if err != nil {
		t.Fatalf("cancel pending order: %v", err)
	}
	if cancelled.PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("returned status mismatch: %s", cancelled.PaymentStatus)
	}
	if repo.pending[pending.ID].PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("stored status mismatch: %s", repo.pending[pending.ID].PaymentStatus)
	}
	if repo.transactions[pending.PaymentReference].Status != enums.PaymentStatusCancelled {
		t.Fatalf("payment transaction not cancelled")
	}
}

func TestServiceCancelPendingOrderRejectsSettled(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	repo := newStubCheckoutRepo()
	pending := seedStubPending(repo, userID, enums.PaymentStatusSuccess)
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{}, &stubGateway{})

	_, err := service.CancelPendingOrder(context.Background(), userID, pending.ID)
	if err == nil {
		t.Fatal("expected state conflict")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.pending[pending.ID].PaymentStatus != enums.PaymentStatusSuccess {
		t.Fatalf("settled order must not change status")
	}
}

func TestServiceCancelPendingOrderWrongUser(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	repo := newStubCheckoutRepo()
	pending := seedStubPending(repo, userID, enums.PaymentStatusPending)
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{}, &stubGateway{})

	_, err := service.CancelPendingOrder(context.Background(), uuid.New(), pending.ID)
	if err == nil {
		t.Fatal("expected not found")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceGetPendingOrderScopedToOwner(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	repo := newStubCheckoutRepo()
	pending := seedStubPending(repo, userID, enums.PaymentStatusPending)
	service := newTestService(t, repo, activeUser(userID), stubProductLoader{}, &stubGateway{})

	got, err := service.GetPendingOrder(context.Background(), userID, pending.ID)
	if err != nil {
		t.Fatalf("get pending order: %v", err)
	}
	if got.ID != pending.ID {
		t.Fatalf("id mismatch: %s vs %s", got.ID, pending.ID)
	}

	if _, err := service.GetPendingOrder(context.Background(), uuid.New(), pending.ID); err == nil {
		t.Fatal("expected not found for other user")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newTestService(t *testing.T, repo Repository, users stubUserLoader, products stubProductLoader, gateway *stubGateway) Service {
	t.Helper()

	service, err := NewService(stubTxRunner{}, repo, users, products, gateway)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return service
}

func activeUser(id uuid.UUID) stubUserLoader {
	return stubUserLoader{users: map[uuid.UUID]*models.User{
		id: {ID: id, Email: "buyer@example.com", FullName: "Test Buyer", IsActive: true},
	}}
}

func validInput(userID uuid.UUID, items []CartItemInput) CreatePendingOrderInput {
	return CreatePendingOrderInput{
		UserID: userID,
		Items:  items,
		DeliveryAddress: types.DeliveryAddress{
			Line1:   "14 Adeola Odeku",
			City:    "Lagos",
			State:   "Lagos",
			Country: "NG",
		},
	}
}

func testProduct(id uuid.UUID, price int64, qty int) models.Product {
	return models.Product{
		ID:        id,
		Name:      "Product " + id.String()[:8],
		UnitPrice: decimal.NewFromInt(price),
		Currency:  enums.CurrencyNGN,
		Quantity:  qty,
		InStock:   qty > 0,
	}
}

func seedStubPending(repo *stubCheckoutRepo, userID uuid.UUID, status enums.PaymentStatus) *models.PendingOrder {
	reference, _ := newPaymentReference()
	pending := &models.PendingOrder{
		ID:               uuid.New(),
		UserID:           userID,
		CartSnapshot:     types.CartSnapshot{{ProductID: uuid.New(), Name: "Seeded", UnitPrice: decimal.NewFromInt(3000), Quantity: 1, LineTotal: decimal.NewFromInt(3000)}},
		Subtotal:         decimal.NewFromInt(3000),
		TotalAmount:      decimal.NewFromInt(3000),
		Currency:         enums.CurrencyNGN,
		PaymentReference: reference,
		PaymentStatus:    status,
	}
	repo.pending[pending.ID] = pending
	return pending
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubUserLoader struct {
	users map[uuid.UUID]*models.User
}

func (s stubUserLoader) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubProductLoader struct {
	products map[uuid.UUID]models.Product
}

func (s stubProductLoader) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var found []models.Product
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			found = append(found, product)
		}
	}
	return found, nil
}

type stubGateway struct {
	initialized []paystack.InitializeParams
	err         error
}

func (s *stubGateway) Initialize(ctx context.Context, params paystack.InitializeParams) (*paystack.InitializeResult, error) {
	s.initialized = append(s.initialized, params)
	if s.err != nil {
		return nil, s.err
	}
	return &paystack.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/" + params.Reference,
		AccessCode:       "ac_" + params.Reference,
		Reference:        params.Reference,
	}, nil
}

type stubCheckoutRepo struct {
	pending        map[uuid.UUID]*models.PendingOrder
	transactions   map[string]*models.PaymentTransaction
	createCalls    int
	createFailures int
}

func newStubCheckoutRepo() *stubCheckoutRepo {
	return &stubCheckoutRepo{
		pending:      make(map[uuid.UUID]*models.PendingOrder),
		transactions: make(map[string]*models.PaymentTransaction),
	}
}

func (s *stubCheckoutRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubCheckoutRepo) Create(ctx context.Context, pending *models.PendingOrder) error {
	s.createCalls++
	if s.createFailures > 0 {
		s.createFailures--
		return errors.New(`duplicate key value violates unique constraint "idx_pending_orders_payment_reference"`)
	}
	record := *pending
	s.pending[pending.ID] = &record
	return nil
}

func (s *stubCheckoutRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingOrder, error) {
	if pending, ok := s.pending[id]; ok {
		record := *pending
		return &record, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCheckoutRepo) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.PendingOrder, error) {
	pending, ok := s.pending[id]
	if !ok || pending.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	record := *pending
	return &record, nil
}

func (s *stubCheckoutRepo) AttachGatewaySession(ctx context.Context, id uuid.UUID, accessCode, authorizationURL string) error {
	pending, ok := s.pending[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	pending.AccessCode = &accessCode
	pending.AuthorizationURL = &authorizationURL
	pending.PaymentStatus = enums.PaymentStatusPending
	return nil
}

func (s *stubCheckoutRepo) CancelPendingOrder(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	pending, ok := s.pending[id]
	if !ok || pending.UserID != userID || !pending.PaymentStatus.IsCancellable() {
		return false, nil
	}
	pending.PaymentStatus = enums.PaymentStatusCancelled
	return true, nil
}

func (s *stubCheckoutRepo) FindStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PendingOrder, error) {
	var stale []models.PendingOrder
	for _, pending := range s.pending {
		if pending.ConvertedToOrder != nil {
			continue
		}
		if pending.PaymentStatus != enums.PaymentStatusInitialized && pending.PaymentStatus != enums.PaymentStatusPending {
			continue
		}
		if !pending.CreatedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, *pending)
		if limit > 0 && len(stale) >= limit {
			break
		}
	}
	return stale, nil
}

func (s *stubCheckoutRepo) ExpirePendingOrder(ctx context.Context, id uuid.UUID, metadata types.JSONMap) (bool, error) {
	pending, ok := s.pending[id]
	if !ok || pending.ConvertedToOrder != nil {
		return false, nil
	}
	if pending.PaymentStatus != enums.PaymentStatusInitialized && pending.PaymentStatus != enums.PaymentStatusPending {
		return false, nil
	}
	pending.PaymentStatus = enums.PaymentStatusCancelled
	if metadata != nil {
		pending.Metadata = metadata
	}
	return true, nil
}

func (s *stubCheckoutRepo) CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	record := *txn
	s.transactions[txn.PaymentReference] = &record
	return nil
}

func (s *stubCheckoutRepo) CancelPaymentTransaction(ctx context.Context, reference string) error {
	txn, ok := s.transactions[reference]
	if !ok {
		return nil
	}
	if txn.Status != enums.PaymentStatusSuccess && txn.Status != enums.PaymentStatusCancelled {
		txn.Status = enums.PaymentStatusCancelled
	}
	return nil
}
