package stock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

func seedFailedAdjustment(t *testing.T, db *gorm.DB, productID uuid.UUID, direction enums.StockAdjustmentDirection, qty, attempts int, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	err := db.Exec(
		`INSERT INTO stock_adjustments (id, order_id, product_id, direction, quantity, status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'failed', ?, 'seeded failure', ?, ?)`,
		id, uuid.New(), productID, direction, qty, attempts, createdAt, createdAt,
	).Error
	if err != nil {
		t.Fatalf("seed failed adjustment: %v", err)
	}
	return id
}

func loadAdjustmentByID(t *testing.T, db *gorm.DB, id uuid.UUID) models.StockAdjustment {
	t.Helper()

	var adj models.StockAdjustment
	if err := db.First(&adj, "id = ?", id).Error; err != nil {
		t.Fatalf("load adjustment %s: %v", id, err)
	}
	return adj
}

func TestReconcilerAppliesWhenStockReturns(t *testing.T) {
	t.Parallel()

	db := newStockTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 10)
	adjID := seedFailedAdjustment(t, db, productID, enums.StockAdjustmentDecrement, 5, 1, time.Now().UTC().Add(-time.Hour))

	rec, err := NewReconciler(db, logger.New(logger.Options{ServiceName: "stock-test"}), 10, 5)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Scanned != 1 || stats.Applied != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	product := loadProduct(t, db, productID)
	if product.Quantity != 5 {
		t.Fatalf("expected reconciled quantity 5, got %d", product.Quantity)
	}

	adj := loadAdjustmentByID(t, db, adjID)
	if adj.Status != enums.StockAdjustmentApplied {
		t.Fatalf("expected applied status, got %s", adj.Status)
	}
	if adj.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", adj.Attempts)
	}
	if adj.LastError != nil {
		t.Fatalf("expected last_error cleared, got %q", *adj.LastError)
	}
	if adj.AppliedAt == nil {
		t.Fatalf("expected applied_at to be set")
	}
}

func TestReconcilerAppliesIncrement(t *testing.T) {
	t.Parallel()

	db := newStockTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 0)
	seedFailedAdjustment(t, db, productID, enums.StockAdjustmentIncrement, 3, 1, time.Now().UTC().Add(-time.Hour))

	rec, err := NewReconciler(db, logger.New(logger.Options{ServiceName: "stock-test"}), 10, 5)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Applied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	product := loadProduct(t, db, productID)
	if product.Quantity != 3 || !product.InStock {
		t.Fatalf("expected restocked product, got qty=%d in_stock=%v", product.Quantity, product.InStock)
	}
}

func TestReconcilerKeepsFailingRow(t *testing.T) {
	t.Parallel()

	db := newStockTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 1)
	adjID := seedFailedAdjustment(t, db, productID, enums.StockAdjustmentDecrement, 5, 1, time.Now().UTC().Add(-time.Hour))

	rec, err := NewReconciler(db, logger.New(logger.Options{ServiceName: "stock-test"}), 10, 5)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Scanned != 1 || stats.Applied != 0 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	product := loadProduct(t, db, productID)
	if product.Quantity != 1 {
		t.Fatalf("product should be untouched, got qty=%d", product.Quantity)
	}

	adj := loadAdjustmentByID(t, db, adjID)
	if adj.Status != enums.StockAdjustmentFailed {
		t.Fatalf("expected still-failed status, got %s", adj.Status)
	}
	if adj.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", adj.Attempts)
	}
	if adj.LastError == nil || !strings.Contains(*adj.LastError, "retry 2") {
		t.Fatalf("expected retry reason in last_error, got %v", adj.LastError)
	}
}

func TestReconcilerSkipsExhaustedRows(t *testing.T) {
	t.Parallel()

	db := newStockTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 10)
	adjID := seedFailedAdjustment(t, db, productID, enums.StockAdjustmentDecrement, 5, 5, time.Now().UTC().Add(-time.Hour))

	rec, err := NewReconciler(db, logger.New(logger.Options{ServiceName: "stock-test"}), 10, 5)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("exhausted row should not be scanned, got %+v", stats)
	}

	adj := loadAdjustmentByID(t, db, adjID)
	if adj.Attempts != 5 || adj.Status != enums.StockAdjustmentFailed {
		t.Fatalf("exhausted row should be untouched: attempts=%d status=%s", adj.Attempts, adj.Status)
	}
}

func TestReconcilerRespectsBatchSizeOldestFirst(t *testing.T) {
	t.Parallel()

	db := newStockTestDB(t)
	ctx := context.Background()
	olderProduct := seedProduct(t, db, 10)
	newerProduct := seedProduct(t, db, 10)
	olderID := seedFailedAdjustment(t, db, olderProduct, enums.StockAdjustmentDecrement, 2, 1, time.Now().UTC().Add(-2*time.Hour))
	newerID := seedFailedAdjustment(t, db, newerProduct, enums.StockAdjustmentDecrement, 2, 1, time.Now().UTC().Add(-time.Hour))

	rec, err := NewReconciler(db, logger.New(logger.Options{ServiceName: "stock-test"}), 1, 5)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Scanned != 1 || stats.Applied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if adj := loadAdjustmentByID(t, db, olderID); adj.Status != enums.StockAdjustmentApplied {
		t.Fatalf("expected oldest row reconciled first, got %s", adj.Status)
	}
	if adj := loadAdjustmentByID(t, db, newerID); adj.Status != enums.StockAdjustmentFailed {
		t.Fatalf("expected newer row untouched, got %s", adj.Status)
	}
	if product := loadProduct(t, db, newerProduct); product.Quantity != 10 {
		t.Fatalf("newer product should be untouched, got qty=%d", product.Quantity)
	}
}
