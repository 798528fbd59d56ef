package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/metrics"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox"
	"github.com/tobennaogbu/kobocart-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	backoffCeiling        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterRand = rand.New(rand.NewSource(time.Now().UnixNano()))

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher narrows *gcppubsub.Publisher so tests can stand in for the
// real broker without a Pub/Sub emulator.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishFuture
}

type publishFuture interface {
	Get(context.Context) (string, error)
}

type publisherFor func(topic string) topicPublisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               database
	PubSub           broker
	Repository       eventStore
	Registry         eventResolver
	PublisherFactory publisherFor
	DLQRepository    deadLetterStore
	Metrics          *metrics.OutboxMetrics
}

func (p ServiceParams) validate() error {
	switch {
	case p.Config == nil:
		return errors.New("outbox publisher: config is required")
	case p.Logger == nil:
		return errors.New("outbox publisher: logger is required")
	case p.DB == nil:
		return errors.New("outbox publisher: database client is required")
	case p.PubSub == nil:
		return errors.New("outbox publisher: pubsub client is required")
	case p.Repository == nil:
		return errors.New("outbox publisher: event repository is required")
	case p.Registry == nil:
		return errors.New("outbox publisher: event registry is required")
	case p.DLQRepository == nil:
		return errors.New("outbox publisher: dlq repository is required")
	}
	return nil
}

// Service drains the outbox table in batches and relays each event to its
// Pub/Sub topic, tracking attempts and parking poison events in the DLQ.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           database
	repo         eventStore
	pubsub       broker
	registry     eventResolver
	dlq          deadLetterStore
	metrics      *metrics.OutboxMetrics
	publishers   publisherFor
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	publishers := params.PublisherFactory
	if publishers == nil {
		publishers = func(topic string) topicPublisher {
			return wrapPublisher(params.PubSub.Publisher(topic))
		}
	}

	tuning := params.Config.Outbox
	svc := &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		publishers:   publishers,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
	}
	if tuning.BatchSize > 0 {
		svc.batchSize = tuning.BatchSize
	}
	if tuning.MaxAttempts > 0 {
		svc.maxAttempts = tuning.MaxAttempts
	}
	if tuning.PollIntervalMS > 0 {
		svc.pollInterval = time.Duration(tuning.PollIntervalMS) * time.Millisecond
	}
	return svc, nil
}

// Run polls until the context is cancelled. An empty fetch sleeps one poll
// interval; a batch error backs off exponentially up to backoffCeiling.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.pingDeps(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for ctx.Err() == nil {
		drained, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = min(backoff*2, backoffCeiling)
			if waitErr := s.wait(ctx, jittered(backoff)); waitErr != nil {
				return waitErr
			}
		case drained:
			backoff = s.pollInterval
		default:
			backoff = s.pollInterval
			if waitErr := s.wait(ctx, jittered(s.pollInterval)); waitErr != nil {
				return waitErr
			}
		}
	}
	s.logg.Info(ctx, "outbox publisher stopping")
	return ctx.Err()
}

func (s *Service) pingDeps(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// processBatch claims one batch under a transaction and works through it.
// The bool reports whether any events were fetched, so Run can decide
// between polling again immediately and sleeping.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	fetched := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, fetchErr := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		switch {
		case fetchErr != nil:
			return fetchErr
		case len(events) == 0:
			return nil
		}
		fetched = true
		for _, event := range events {
			if relayErr := s.relay(ctx, tx, event); relayErr != nil {
				return relayErr
			}
		}
		return nil
	})
	return fetched, err
}

// relay pushes a single event toward its topic. Transient publish failures
// bump the attempt counter; resolution failures, missing publishers, and
// exhausted attempts park the event. Only bookkeeping errors abort the batch.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, "", nil)
	}

	topic := resolved.Descriptor.Topic
	fields := s.relayFields(event, resolved.Envelope, topic)

	err = s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, topic, fields)
	}

	attempts := event.AttemptCount + 1
	fields["attempt_count"] = attempts
	if attempts >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return s.park(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err), topic, fields)
	}

	warnCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
	s.logg.Warn(warnCtx, "outbox publish failed")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	s.metrics.IncFailed(string(event.EventType))
	return nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = s.relayFields(event, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	warnCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(warnCtx, "outbox event will not be retried")

	message := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncParked(string(event.EventType))
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	future := pub.Publish(publishCtx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if future == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil result for topic %s", topic))
	}
	_, err := future.Get(publishCtx)
	return err
}

func (s *Service) relayFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterRand.Int63n(int64(jitterWindow)))
}

func wrapPublisher(p *gcppubsub.Publisher) topicPublisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{inner: p}
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishFuture {
	if p == nil || p.inner == nil {
		return nil
	}
	return &gcpFuture{inner: p.inner.Publish(ctx, msg)}
}

type gcpFuture struct {
	inner *gcppubsub.PublishResult
}

func (f *gcpFuture) Get(ctx context.Context) (string, error) {
	if f == nil || f.inner == nil {
		return "", errors.New("publish result is nil")
	}
	return f.inner.Get(ctx)
}
