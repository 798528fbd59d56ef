package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

// Ledger journals and applies the stock mutations an order causes. Every
// mutation writes a stock_adjustments row first; the unique index on
// (order, product, direction) makes a replayed call a no-op. A product
// update that cannot land, a decrement below zero or a vanished product,
// parks the journal row as failed for the reconcile sweep and never fails
// the surrounding order transaction.
type Ledger struct {
	logg *logger.Logger
}

// NewLedger builds a stock ledger.
func NewLedger(logg *logger.Logger) *Ledger {
	return &Ledger{logg: logg}
}

// Decrement reduces product quantity by qty inside the caller's transaction.
// The boolean reports whether this call changed the product row: false with
// a nil error means the adjustment was already journaled earlier, or the
// product had too little quantity and the row was parked as failed.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (bool, error) {
	return l.adjust(ctx, tx, orderID, productID, qty, enums.StockAdjustmentDecrement)
}

// Increment raises product quantity by qty inside the caller's transaction.
// Same journal dedup as Decrement, no quantity floor.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int) (bool, error) {
	return l.adjust(ctx, tx, orderID, productID, qty, enums.StockAdjustmentIncrement)
}

func (l *Ledger) adjust(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, qty int, direction enums.StockAdjustmentDirection) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "stock adjustment requires a transaction")
	}
	if orderID == uuid.Nil || productID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order and product ids are required")
	}
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", qty))
	}

	// ON CONFLICT DO NOTHING rather than a caught unique violation: the
	// caller's transaction has to stay usable when the journal row already
	// exists.
	now := time.Now().UTC()
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO stock_adjustments (order_id, product_id, direction, quantity, status, attempts, applied_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT (order_id, product_id, direction) DO NOTHING`,
		orderID, productID, direction, qty, enums.StockAdjustmentApplied, now,
	)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "journal stock adjustment")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	applied, err := applyToProduct(ctx, tx, productID, qty, direction)
	if err != nil {
		return false, err
	}
	if applied {
		return true, nil
	}

	reason := fmt.Sprintf("conditional %s of %d did not match product %s", direction, qty, productID)
	if err := l.parkJournalRow(ctx, tx, orderID, productID, direction, reason); err != nil {
		return false, err
	}
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"order_id":   orderID.String(),
			"product_id": productID.String(),
			"direction":  direction.String(),
			"quantity":   qty,
		})
		l.logg.Warn(logCtx, "stock adjustment parked for reconciliation")
	}
	return false, nil
}

// parkJournalRow flips the freshly inserted journal row to failed. Keyed by
// the composite identity rather than the id so it works before the insert's
// generated id has round-tripped.
func (l *Ledger) parkJournalRow(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, direction enums.StockAdjustmentDirection, reason string) error {
	err := tx.WithContext(ctx).
		Model(&models.StockAdjustment{}).
		Where("order_id = ? AND product_id = ? AND direction = ?", orderID, productID, direction).
		Updates(map[string]any{
			"status":     enums.StockAdjustmentFailed,
			"applied_at": nil,
			"last_error": reason,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "park stock adjustment")
	}
	return nil
}

// applyToProduct runs the product-side update. The decrement carries the
// quantity floor in its WHERE clause, so an insufficient product simply
// matches zero rows instead of going negative.
func applyToProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, direction enums.StockAdjustmentDirection) (bool, error) {
	var res *gorm.DB
	switch direction {
	case enums.StockAdjustmentDecrement:
		res = tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND quantity >= ?", productID, qty).
			Updates(map[string]any{
				"quantity": gorm.Expr("quantity - ?", qty),
				"in_stock": gorm.Expr("(quantity - ?) > 0", qty),
			})
	case enums.StockAdjustmentIncrement:
		res = tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", productID).
			Updates(map[string]any{
				"quantity": gorm.Expr("quantity + ?", qty),
				"in_stock": gorm.Expr("(quantity + ?) > 0", qty),
			})
	default:
		return false, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown stock adjustment direction %q", direction))
	}
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "apply stock adjustment")
	}
	return res.RowsAffected > 0, nil
}
