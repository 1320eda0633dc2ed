package payouts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Stage string

const (
	Stage1 Stage = "STAGE1"
	Stage2 Stage = "STAGE2"
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusProcessing    Status = "PROCESSING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
)

// Payout is one staged transfer of the owner's share. LastAttemptKey is the
// idempotency key of the most recent processor call; Unacknowledged marks an
// attempt whose outcome is unknown and must be reconciled before retrying.
type Payout struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_payouts_booking_stage" json:"booking_id"`
	Stage          Stage      `gorm:"type:varchar(10);not null;uniqueIndex:idx_payouts_booking_stage" json:"stage"`
	OwnerID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"owner_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	PaidAmount     int64      `gorm:"not null;default:0" json:"paid_amount"`
	Currency       string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status         Status     `gorm:"type:varchar(20);index;not null;default:'PENDING'" json:"status"`
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	LastAttemptKey string     `gorm:"type:varchar(120)" json:"last_attempt_key,omitempty"`
	Unacknowledged bool       `gorm:"not null;default:false" json:"unacknowledged"`
	FailureReason  string     `gorm:"type:text" json:"failure_reason,omitempty"`
	TransferRef    string     `gorm:"type:varchar(100)" json:"transfer_ref,omitempty"`
	Destination    string     `gorm:"type:varchar(100)" json:"-"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Payout) TableName() string {
	return "payouts"
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Payout) Remaining() int64 {
	return p.Amount - p.PaidAmount
}

// NeedsAttention reports whether an admin retry is due.
func (p *Payout) NeedsAttention(now time.Time, staleAfter time.Duration) bool {
	switch p.Status {
	case StatusFailed, StatusPartiallyPaid:
		return true
	case StatusProcessing:
		return p.IsStale(now, staleAfter)
	}
	return false
}

// IsStale reports whether a PROCESSING attempt has been in flight too long.
func (p *Payout) IsStale(now time.Time, staleAfter time.Duration) bool {
	return p.Status == StatusProcessing && p.LastAttemptAt != nil && now.Sub(*p.LastAttemptAt) >= staleAfter
}
