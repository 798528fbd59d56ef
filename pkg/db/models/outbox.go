package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

// OutboxEvent is one append-only row written in the same transaction as the
// state change it describes. The publisher drains unpublished rows in order.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`

	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
}

// Published reports whether the event has already been relayed to its topic.
func (e OutboxEvent) Published() bool {
	return e.PublishedAt != nil
}

// OutboxDLQ is the parking row for an event the publisher gave up on, either
// because it exhausted its attempts or failed in a way a retry cannot fix.
type OutboxDLQ struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	ErrorReason  enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:outbox_dlq_error_reason_enum;not null"`
	ErrorMessage *string                    `gorm:"column:error_message"`
	AttemptCount int                        `gorm:"column:attempt_count;not null;default:0"`

	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload_json;type:jsonb;not null"`

	FailedAt  time.Time `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
