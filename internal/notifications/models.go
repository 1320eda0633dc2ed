package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"adspace/internal/audit"

	"github.com/google/uuid"
)

const (
	envelopeVersion = "1.0"
	producerName    = "adspace-engine"
)

// BookingEventMessage is the Kafka envelope for one committed timeline row.
type BookingEventMessage struct {
	Version     string              `json:"version"`
	Producer    string              `json:"producer"`
	PublishedAt time.Time           `json:"published_at"`
	Event       audit.TimelineEvent `json:"event"`
}

func NewBookingEventMessage(e audit.TimelineEvent, at time.Time) *BookingEventMessage {
	return &BookingEventMessage{
		Version:     envelopeVersion,
		Producer:    producerName,
		PublishedAt: at.UTC(),
		Event:       e,
	}
}

// PartitionKey keeps every event of one booking on the same partition so
// consumers see them in commit order.
func (m *BookingEventMessage) PartitionKey() string {
	return m.Event.BookingID.String()
}

// ToJSON converts the message to JSON
func (m *BookingEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON parses a message and rejects envelopes without a booking.
func FromJSON(data []byte) (*BookingEventMessage, error) {
	var m BookingEventMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking event: %w", err)
	}
	if m.Event.BookingID == uuid.Nil {
		return nil, fmt.Errorf("booking event %d has no booking id", m.Event.ID)
	}
	return &m, nil
}
