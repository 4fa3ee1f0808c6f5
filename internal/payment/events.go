package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const EventPaymentCompleted = "PaymentCompleted"

// Event is the envelope published on the payments topic.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// PaymentCompleted is emitted once per session, by whichever of the webhook
// or the verify call observes completion first.
type PaymentCompleted struct {
	SessionID   string    `json:"sessionId"`
	Email       string    `json:"email"`
	CompletedAt time.Time `json:"completedAt"`
	Source      string    `json:"source"`
}

func NewEvent(eventType string, data any, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: at,
		Data:       raw,
	}, nil
}
