package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tobennaogbu/kobocart-backend/internal/checkout"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/payloads"
	"github.com/tobennaogbu/kobocart-backend/pkg/types"
)

const (
	defaultPendingOrderTTL = 24 * time.Hour
	expirySweepLimit       = 200
)

// PendingOrderExpiryJobParams configure the stale pending order sweep.
type PendingOrderExpiryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	StaleReader stalePendingOrderReader
	Outbox      outboxEmitter
	RepoFactory expiryRepoFactory
	TTL         time.Duration
}

type stalePendingOrderReader interface {
	FindStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PendingOrder, error)
}

type expiryRepo interface {
	ExpirePendingOrder(ctx context.Context, id uuid.UUID, metadata types.JSONMap) (bool, error)
	CancelPaymentTransaction(ctx context.Context, reference string) error
}

type expiryRepoFactory func(tx *gorm.DB) expiryRepo

func defaultExpiryRepo(tx *gorm.DB) expiryRepo {
	return checkout.NewRepository(tx)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewPendingOrderExpiryJob builds the job that cancels pending orders whose
// payment never settled within the TTL.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.StaleReader == nil {
		return nil, fmt.Errorf("stale pending order reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	repoFactory := params.RepoFactory
	if repoFactory == nil {
		repoFactory = defaultExpiryRepo
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &pendingOrderExpiryJob{
		logg:        params.Logger,
		db:          params.DB,
		staleReader: params.StaleReader,
		outbox:      params.Outbox,
		repoFactory: repoFactory,
		ttl:         ttl,
		now:         time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg        *logger.Logger
	db          txRunner
	staleReader stalePendingOrderReader
	outbox      outboxEmitter
	repoFactory expiryRepoFactory
	ttl         time.Duration
	now         func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.staleReader.FindStaleBefore(ctx, cutoff, expirySweepLimit)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for i := range stale {
		if err := j.expire(ctx, &stale[i]); err != nil {
			errs = append(errs, fmt.Errorf("pending order %s: %w", stale[i].ID, err))
			continue
		}
		expired++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "pending order expiry sweep complete")
	return multierr.Combine(errs...)
}

// expire cancels one stale pending order, its payment transaction, and
// queues the expiry event, all in one transaction. The status-guarded update
// returns false when the payment settled between the scan and this
// transaction; nothing else happens then.
func (j *pendingOrderExpiryJob) expire(ctx context.Context, pending *models.PendingOrder) error {
	now := j.now().UTC()
	metadata := types.JSONMap{}
	for key, value := range pending.Metadata {
		metadata[key] = value
	}
	metadata["cancellation_reason"] = "expired"
	metadata["expired_at"] = now.Format(time.RFC3339)

	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repoFactory(tx)
		expired, err := repo.ExpirePendingOrder(ctx, pending.ID, metadata)
		if err != nil {
			return err
		}
		if !expired {
			return nil
		}
		if err := repo.CancelPaymentTransaction(ctx, pending.PaymentReference); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventPendingOrderExpired,
			AggregateType: enums.AggregatePendingOrder,
			AggregateID:   pending.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PendingOrderExpiredEvent{
				PendingOrderID:   pending.ID,
				UserID:           pending.UserID,
				PaymentReference: pending.PaymentReference,
				Amount:           pending.TotalAmount,
				Currency:         pending.Currency.String(),
				ExpiredAt:        now,
				TTLHours:         int(j.ttl / time.Hour),
			},
		}
		return j.outbox.Emit(ctx, tx, event)
	})
}
