package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher throughput and failures per event type.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	parked    *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided
// registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published",
		Help: "Outbox events published to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures",
		Help: "Publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_parked",
		Help: "Outbox events moved to the dead letter queue.",
	}, []string{"event_type"})
	reg.MustRegister(published, failed, parked)
	return &OutboxMetrics{
		published: published,
		failed:    failed,
		parked:    parked,
	}
}

// IncPublished increments the published counter for the event type.
func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed increments the retryable-failure counter for the event type.
func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncParked increments the dead-letter counter for the event type.
func (o *OutboxMetrics) IncParked(eventType string) {
	if o == nil || o.parked == nil {
		return
	}
	o.parked.WithLabelValues(normalizeLabel(eventType)).Inc()
}
