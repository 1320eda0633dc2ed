package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Category string

const (
	CategoryBooking Category = "booking"
	CategoryPayment Category = "payment"
	CategoryRefund  Category = "refund"
	CategoryProof   Category = "proof"
	CategoryPayout  Category = "payout"
	CategoryDispute Category = "dispute"
	CategoryAdmin   Category = "admin"
)

// EventType drives how the admin console colours a timeline entry.
type EventType string

const (
	TypeInfo    EventType = "info"
	TypeSuccess EventType = "success"
	TypeWarning EventType = "warning"
	TypeError   EventType = "error"
)

// TimelineEvent is one entry of a booking's payment-flow timeline. Rows are
// written inside the transaction that caused them and double as the outbox
// for the event stream; DispatchedAt is the delivery cursor.
type TimelineEvent struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"booking_id"`
	Category     Category       `gorm:"type:varchar(20);not null" json:"category"`
	Type         EventType      `gorm:"type:varchar(20);not null" json:"type"`
	Action       string         `gorm:"type:varchar(64);not null" json:"action"`
	FromStatus   string         `gorm:"type:varchar(32)" json:"from_status,omitempty"`
	ToStatus     string         `gorm:"type:varchar(32)" json:"to_status,omitempty"`
	ActorType    string         `gorm:"type:varchar(20);not null" json:"actor_type"`
	ActorID      *uuid.UUID     `gorm:"type:uuid" json:"actor_id,omitempty"`
	Message      string         `gorm:"type:text" json:"message"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	OccurredAt   time.Time      `gorm:"index;not null" json:"occurred_at"`
	DispatchedAt *time.Time     `gorm:"index" json:"-"`
}

func (TimelineEvent) TableName() string {
	return "timeline_events"
}
