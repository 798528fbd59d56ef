package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

// Repository persists pending orders and their gateway-side payment rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pending *models.PendingOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PendingOrder, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.PendingOrder, error)
	AttachGatewaySession(ctx context.Context, id uuid.UUID, accessCode, authorizationURL string) error
	CancelPendingOrder(ctx context.Context, id, userID uuid.UUID) (bool, error)
	CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	CancelPaymentTransaction(ctx context.Context, reference string) error
	FindStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PendingOrder, error)
	ExpirePendingOrder(ctx context.Context, id uuid.UUID, metadata types.JSONMap) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed checkout repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, pending *models.PendingOrder) error {
	return r.db.WithContext(ctx).Create(pending).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingOrder, error) {
	var pending models.PendingOrder
	if err := r.db.WithContext(ctx).First(&pending, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.PendingOrder, error) {
	var pending models.PendingOrder
	err := r.db.WithContext(ctx).First(&pending, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// AttachGatewaySession records the hosted-checkout handles and moves the
// payment to pending in a single write.
func (r *repository) AttachGatewaySession(ctx context.Context, id uuid.UUID, accessCode, authorizationURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_code":       accessCode,
			"authorization_url": authorizationURL,
			"payment_status":    enums.PaymentStatusPending,
		}).Error
}

// CancelPendingOrder flips a still-cancellable pending order to cancelled.
// The status list in the predicate makes the update a no-op when the payment
// settled concurrently; callers read the returned bool to detect that.
func (r *repository) CancelPendingOrder(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("id = ? AND user_id = ? AND payment_status IN ?", id, userID, []enums.PaymentStatus{
			enums.PaymentStatusInitialized,
			enums.PaymentStatusPending,
			enums.PaymentStatusFailed,
		}).
		Update("payment_status", enums.PaymentStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// CancelPaymentTransaction marks the gateway-side row cancelled unless the
// charge already settled.
func (r *repository) CancelPaymentTransaction(ctx context.Context, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("payment_reference = ? AND status NOT IN ?", reference, []enums.PaymentStatus{
			enums.PaymentStatusSuccess,
			enums.PaymentStatusCancelled,
		}).
		Update("status", enums.PaymentStatusCancelled).Error
}

// FindStaleBefore lists unconverted pending orders whose payment never
// settled and that were created before the cutoff, oldest first.
func (r *repository) FindStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PendingOrder, error) {
	var stale []models.PendingOrder
	q := r.db.WithContext(ctx).
		Where("payment_status IN ? AND converted_to_order_id IS NULL AND created_at < ?",
			[]enums.PaymentStatus{enums.PaymentStatusInitialized, enums.PaymentStatusPending}, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&stale).Error; err != nil {
		return nil, err
	}
	return stale, nil
}

// ExpirePendingOrder cancels a stale pending order, guarded on the same
// never-settled statuses so a payment that lands between the sweep's scan and
// this update wins. Map updates bypass the model serializer, so the metadata
// is marshalled by hand.
func (r *repository) ExpirePendingOrder(ctx context.Context, id uuid.UUID, metadata types.JSONMap) (bool, error) {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusCancelled,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return false, fmt.Errorf("marshal pending order metadata: %w", err)
		}
		updates["metadata"] = string(raw)
	}
	res := r.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("id = ? AND payment_status IN ? AND converted_to_order_id IS NULL", id, []enums.PaymentStatus{
			enums.PaymentStatusInitialized,
			enums.PaymentStatusPending,
		}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
