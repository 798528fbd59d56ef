package types

import (
	"encoding/json"
	"time"

	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

// Envelope is the decoded analytics Pub/Sub message: the stored outbox
// envelope body plus the routing attributes the publisher stamped on the
// message.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}
