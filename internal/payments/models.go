package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentType string

const (
	TypeDeposit PaymentType = "DEPOSIT"
	TypeBalance PaymentType = "BALANCE"
	TypeFull    PaymentType = "FULL"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
)

// Collected reports whether the payment brought money in.
func (s PaymentStatus) Collected() bool {
	return s == PaymentSucceeded || s == PaymentPartiallyRefunded || s == PaymentRefunded
}

// Payment is money collected for one booking. A booking has at most one
// payment of each type.
type Payment struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_payments_booking_type" json:"booking_id"`
	Type              PaymentType   `gorm:"type:varchar(10);not null;uniqueIndex:idx_payments_booking_type" json:"type"`
	Amount            int64         `gorm:"not null" json:"amount"`
	ProcessorFee      int64         `gorm:"not null;default:0" json:"processor_fee"`
	Currency          string        `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status            PaymentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ChargeRef         string        `gorm:"type:varchar(100)" json:"charge_ref,omitempty"`
	CheckoutSessionID *uuid.UUID    `gorm:"type:uuid;index" json:"checkout_session_id,omitempty"`
	PaymentMethodRef  string        `gorm:"type:varchar(100)" json:"-"`
	IdempotencyKey    string        `gorm:"type:varchar(120)" json:"-"`
	FailureReason     string        `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundedAmount    int64         `gorm:"not null;default:0" json:"refunded_amount"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type SessionStatus string

const (
	SessionOpen      SessionStatus = "OPEN"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// CheckoutSession groups the first payment of one or more bookings into a
// single hosted checkout. BookingSetKey identifies the set of bookings so a
// repeated request returns the session that is still open.
type CheckoutSession struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProcessorSessionID string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"processor_session_id"`
	AdvertiserID       uuid.UUID      `gorm:"type:uuid;index;not null" json:"advertiser_id"`
	IdempotencyKey     string         `gorm:"type:varchar(120);uniqueIndex;not null" json:"-"`
	BookingSetKey      uuid.UUID      `gorm:"type:uuid;index;not null" json:"-"`
	Status             SessionStatus  `gorm:"type:varchar(20);index;not null" json:"status"`
	RedirectURL        string         `gorm:"type:text;not null" json:"redirect_url"`
	AmountDue          int64          `gorm:"not null" json:"amount_due"`
	Currency           string         `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	PaymentMethodRef   string         `gorm:"type:varchar(100)" json:"-"`
	ExpiresAt          time.Time      `json:"expires_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Lines              []CheckoutLine `gorm:"foreignKey:SessionID" json:"lines"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}

func (s *CheckoutSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type CheckoutLine struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"session_id"`
	BookingID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"booking_id"`
	PaymentType PaymentType `gorm:"type:varchar(10);not null" json:"payment_type"`
	Amount      int64       `gorm:"not null" json:"amount"`
}

func (CheckoutLine) TableName() string {
	return "checkout_lines"
}

func (l *CheckoutLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// WebhookReceipt records every processor event that was applied.
type WebhookReceipt struct {
	EventID    string    `gorm:"type:varchar(100);primaryKey" json:"event_id"`
	Type       string    `gorm:"type:varchar(64);not null" json:"type"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

func (WebhookReceipt) TableName() string {
	return "webhook_receipts"
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundSucceeded RefundStatus = "SUCCEEDED"
	RefundFailed    RefundStatus = "FAILED"
)

// Refund returns part of one payment. A PENDING refund already counts
// against the refundable amount.
type Refund struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID       uuid.UUID    `gorm:"type:uuid;index;not null" json:"booking_id"`
	PaymentID       uuid.UUID    `gorm:"type:uuid;index;not null" json:"payment_id"`
	Amount          int64        `gorm:"not null" json:"amount"`
	Reason          string       `gorm:"type:text;not null" json:"reason"`
	Status          RefundStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ProcessorRef    string       `gorm:"type:varchar(100)" json:"processor_ref,omitempty"`
	IdempotencyKey  string       `gorm:"type:varchar(120);uniqueIndex;not null" json:"-"`
	FailureReason   string       `gorm:"type:text" json:"failure_reason,omitempty"`
	RequestedByType string       `gorm:"type:varchar(20);not null" json:"requested_by_type"`
	RequestedByID   *uuid.UUID   `gorm:"type:uuid" json:"requested_by_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Refund) TableName() string {
	return "refunds"
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
