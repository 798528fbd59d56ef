package cron

import (
	"context"
	"fmt"

	"github.com/tobennaogbu/kobocart-backend/internal/stock"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

// StockReconcileJobParams configure the failed stock adjustment retry sweep.
type StockReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler stockReconciler
}

type stockReconciler interface {
	Run(ctx context.Context) (stock.ReconcileStats, error)
}

// NewStockReconcileJob wraps the stock reconciler as a cron job.
func NewStockReconcileJob(params StockReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("stock reconciler required")
	}
	return &stockReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
	}, nil
}

type stockReconcileJob struct {
	logg       *logger.Logger
	reconciler stockReconciler
}

func (j *stockReconcileJob) Name() string { return "stock-reconcile" }

func (j *stockReconcileJob) Run(ctx context.Context) error {
	stats, err := j.reconciler.Run(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": stats.Scanned,
		"applied": stats.Applied,
		"failed":  stats.Failed,
	})
	if err != nil {
		return fmt.Errorf("stock reconcile: %w", err)
	}
	j.logg.Info(logCtx, "stock reconcile sweep complete")
	return nil
}
