package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef records which user (and in what role) caused the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the versioned wrapper every outbox payload is stored
// in. Consumers rely on eventId for dedup and occurredAt for ordering, so
// the JSON keys are frozen.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
