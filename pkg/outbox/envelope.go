package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
)

// EnvelopeVersion is written when an event does not pin its own version.
const EnvelopeVersion = 1

// ActorRef names the user, and the role they acted under, behind an event.
type ActorRef struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// Actor builds an ActorRef, or nil for system-originated events.
func Actor(userID uuid.UUID, role enums.UserRole) *ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &ActorRef{UserID: userID, Role: role}
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
