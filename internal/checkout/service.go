package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/paystack"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

const referenceAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type paymentGateway interface {
	Initialize(ctx context.Context, params paystack.InitializeParams) (*paystack.InitializeResult, error)
}

// CartItemInput is one requested product line.
type CartItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreatePendingOrderInput carries everything checkout needs from the API
// layer. Discount and Credits are absolute amounts already resolved upstream.
type CreatePendingOrderInput struct {
	UserID          uuid.UUID
	Items           []CartItemInput
	DeliveryAddress types.DeliveryAddress
	Discount        decimal.Decimal
	Credits         decimal.Decimal
	Notes           *string
}

// CreatePendingOrderResult is the hosted-checkout handle returned to the
// client. The customer completes payment on AuthorizationURL.
type CreatePendingOrderResult struct {
	PendingOrderID   uuid.UUID
	PaymentReference string
	AuthorizationURL string
	AccessCode       string
	Amount           decimal.Decimal
	Currency         enums.Currency
}

// Service executes checkout orchestration.
type Service interface {
	CreatePendingOrder(ctx context.Context, input CreatePendingOrderInput) (*CreatePendingOrderResult, error)
	GetPendingOrder(ctx context.Context, userID, id uuid.UUID) (*models.PendingOrder, error)
	CancelPendingOrder(ctx context.Context, userID, id uuid.UUID) (*models.PendingOrder, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	users    userLoader
	products productLoader
	gateway  paymentGateway
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	repo Repository,
	users userLoader,
	products productLoader,
	gateway paymentGateway,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	return &service{
		tx:       tx,
		repo:     repo,
		users:    users,
		products: products,
		gateway:  gateway,
	}, nil
}

func (s *service) CreatePendingOrder(ctx context.Context, input CreatePendingOrderInput) (*CreatePendingOrderResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is inactive")
	}

	snapshot, currency, err := s.snapshotCart(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	subtotal := snapshot.Subtotal()
	total := subtotal.Sub(input.Discount).Sub(input.Credits)
	if !total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive").
			WithDetails(map[string]any{
				"subtotal": subtotal,
				"discount": input.Discount,
				"credits":  input.Credits,
			})
	}

	pending, err := s.persistPendingOrder(ctx, input, snapshot, subtotal, total, currency)
	if err != nil {
		return nil, err
	}

	// The initialized row survives a gateway failure on purpose: the expiry
	// sweep cancels it later, and the burned reference is never reused.
	session, err := s.gateway.Initialize(ctx, paystack.InitializeParams{
		Email:            user.Email,
		AmountMinorUnits: paystack.ToMinorUnits(total),
		Reference:        pending.PaymentReference,
		Metadata: map[string]any{
			"pending_order_id": pending.ID.String(),
			"user_id":          user.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AttachGatewaySession(ctx, pending.ID, session.AccessCode, session.AuthorizationURL); err != nil {
			return err
		}
		return repo.CreatePaymentTransaction(ctx, &models.PaymentTransaction{
			PaymentReference: pending.PaymentReference,
			Amount:           total,
			Currency:         currency,
			Status:           enums.PaymentStatusPending,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record gateway session")
	}

	return &CreatePendingOrderResult{
		PendingOrderID:   pending.ID,
		PaymentReference: pending.PaymentReference,
		AuthorizationURL: session.AuthorizationURL,
		AccessCode:       session.AccessCode,
		Amount:           total,
		Currency:         currency,
	}, nil
}

func (s *service) GetPendingOrder(ctx context.Context, userID, id uuid.UUID) (*models.PendingOrder, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending order id required")
	}

	pending, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pending order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending order")
	}
	return pending, nil
}

func (s *service) CancelPendingOrder(ctx context.Context, userID, id uuid.UUID) (*models.PendingOrder, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending order id required")
	}

	var cancelled *models.PendingOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		pending, err := repo.FindByIDForUser(ctx, id, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pending order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending order")
		}
		if !pending.PaymentStatus.IsCancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("pending order is %s and can no longer be cancelled", pending.PaymentStatus))
		}

		ok, err := repo.CancelPendingOrder(ctx, id, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel pending order")
		}
		if !ok {
			// The payment settled between the read and the update.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "pending order changed state, refresh and retry")
		}
		if err := repo.CancelPaymentTransaction(ctx, pending.PaymentReference); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel payment transaction")
		}

		pending.PaymentStatus = enums.PaymentStatusCancelled
		cancelled = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// snapshotCart loads the requested products and freezes names and prices into
// cart lines. The stock read here is advisory fail-fast; the conditional
// decrement at materialization is the real gate.
func (s *service) snapshotCart(ctx context.Context, items []CartItemInput) (types.CartSnapshot, enums.Currency, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		// One line per product: the stock journal is keyed by order and
		// product, so a duplicate line would lose its adjustment.
		if _, dup := seen[item.ProductID]; dup {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(found))
	for _, product := range found {
		byID[product.ID] = product
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "products not found").
			WithDetails(map[string]any{"product_ids": missing})
	}

	currency := byID[ids[0]].Currency
	snapshot := make(types.CartSnapshot, 0, len(items))
	for _, item := range items {
		product := byID[item.ProductID]
		if product.Currency != currency {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "cart mixes currencies").
				WithDetails(map[string]any{"product_id": product.ID})
		}
		if !product.InStock || product.Quantity < item.Quantity {
			return nil, "", pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": product.ID,
					"requested":  item.Quantity,
					"available":  product.Quantity,
				})
		}
		lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		snapshot = append(snapshot, types.CartLine{
			ProductID:    product.ID,
			Name:         product.Name,
			Description:  product.Description,
			UnitPrice:    product.UnitPrice,
			Quantity:     item.Quantity,
			LineTotal:    lineTotal,
			CategoryName: product.CategoryName,
		})
	}
	return snapshot, currency, nil
}

// persistPendingOrder writes the initialized row. Retried only when the
// unique index on payment_reference rejects the insert.
func (s *service) persistPendingOrder(
	ctx context.Context,
	input CreatePendingOrderInput,
	snapshot types.CartSnapshot,
	subtotal, total decimal.Decimal,
	currency enums.Currency,
) (*models.PendingOrder, error) {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		reference, err := newPaymentReference()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint payment reference")
		}

		pending := &models.PendingOrder{
			ID:               uuid.New(),
			UserID:           input.UserID,
			CartSnapshot:     snapshot,
			Subtotal:         subtotal,
			Discount:         input.Discount,
			Credits:          input.Credits,
			TotalAmount:      total,
			Currency:         currency,
			DeliveryAddress:  input.DeliveryAddress,
			Notes:            input.Notes,
			PaymentReference: reference,
			PaymentStatus:    enums.PaymentStatusInitialized,
		}
		err = s.repo.Create(ctx, pending)
		if err == nil {
			return pending, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist pending order")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reference collisions exhausted retries")
}

func (in CreatePendingOrderInput) validate() error {
	if in.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(in.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	if in.Discount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}
	if in.Credits.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credits cannot be negative")
	}
	if err := in.DeliveryAddress.Validate(); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return nil
}
