package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

const (
	defaultReconcileBatch       = 100
	defaultReconcileMaxAttempts = 5
)

var errReconciledElsewhere = errors.New("adjustment no longer failed")

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Scanned int
	Applied int
	Failed  int
}

// Reconciler retries parked stock adjustments. Rows that keep failing stop
// being scanned once they exhaust maxAttempts; those need operator attention.
type Reconciler struct {
	db          *gorm.DB
	logg        *logger.Logger
	batchSize   int
	maxAttempts int
}

// NewReconciler builds a reconciler over the given DB handle.
func NewReconciler(database *gorm.DB, logg *logger.Logger, batchSize, maxAttempts int) (*Reconciler, error) {
	if database == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if batchSize <= 0 {
		batchSize = defaultReconcileBatch
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultReconcileMaxAttempts
	}
	return &Reconciler{
		db:          database,
		logg:        logg,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}, nil
}

// Run sweeps failed adjustments oldest first. Each row gets its own
// transaction so one poisoned row cannot stall the rest of the batch.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	var errs error

	rows, err := r.listFailed(ctx)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(rows)

	for i := range rows {
		adj := rows[i]
		applied, retryErr := r.retry(ctx, &adj)
		if retryErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("adjustment %s: %w", adj.ID, retryErr))
			stats.Failed++
			continue
		}
		if applied {
			stats.Applied++
		} else {
			stats.Failed++
		}
	}
	return stats, errs
}

func (r *Reconciler) listFailed(ctx context.Context) ([]models.StockAdjustment, error) {
	var rows []models.StockAdjustment
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", enums.StockAdjustmentFailed, r.maxAttempts).
		Order("created_at ASC").
		Limit(r.batchSize).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list failed stock adjustments")
	}
	return rows, nil
}

func (r *Reconciler) retry(ctx context.Context, adj *models.StockAdjustment) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, applyErr := applyToProduct(ctx, tx, adj.ProductID, adj.Quantity, adj.Direction)
		if applyErr != nil {
			return applyErr
		}

		updates := map[string]any{"attempts": gorm.Expr("attempts + 1")}
		if ok {
			now := time.Now().UTC()
			updates["status"] = enums.StockAdjustmentApplied
			updates["applied_at"] = now
			updates["last_error"] = nil
		} else {
			updates["last_error"] = fmt.Sprintf(
				"retry %d: conditional %s of %d did not match product %s",
				adj.Attempts+1, adj.Direction, adj.Quantity, adj.ProductID,
			)
		}

		res := tx.Model(&models.StockAdjustment{}).
			Where("id = ? AND status = ?", adj.ID, enums.StockAdjustmentFailed).
			Updates(updates)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update stock adjustment")
		}
		if res.RowsAffected == 0 {
			// Rolls the product update back too.
			return errReconciledElsewhere
		}
		applied = ok
		return nil
	})
	if errors.Is(err, errReconciledElsewhere) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"order_id":   adj.OrderID.String(),
			"product_id": adj.ProductID.String(),
			"direction":  adj.Direction.String(),
			"attempts":   adj.Attempts + 1,
		})
		if applied {
			r.logg.Info(logCtx, "stock adjustment reconciled")
		} else {
			r.logg.Warn(logCtx, "stock adjustment still failing")
		}
	}
	return applied, nil
}
