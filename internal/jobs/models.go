package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindProofAutoApprove  Kind = "proof_auto_approve"
	KindBookingCompletion Kind = "booking_completion"
	KindBalanceCharge     Kind = "balance_charge"
	KindPayoutTransfer    Kind = "payout_transfer"
	KindRefundReconcile   Kind = "refund_reconcile"
)

// LifecycleKinds are the timers tied to the booking's progress. Leaving the
// happy path cancels them; refund reconciliation survives every status.
var LifecycleKinds = []Kind{KindProofAutoApprove, KindBookingCompletion, KindBalanceCharge, KindPayoutTransfer}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// ScheduledJob is a durable timer. (BookingID, Kind, DueAt) identifies the
// job; NextRunAt moves forward on retry while DueAt stays put.
type ScheduledJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_jobs_booking_kind_due" json:"booking_id"`
	Kind        Kind           `gorm:"type:varchar(40);not null;uniqueIndex:idx_jobs_booking_kind_due" json:"kind"`
	DueAt       time.Time      `gorm:"not null;uniqueIndex:idx_jobs_booking_kind_due" json:"due_at"`
	NextRunAt   time.Time      `gorm:"not null;index" json:"next_run_at"`
	Status      Status         `gorm:"type:varchar(20);not null;index;default:'PENDING'" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	LockedUntil *time.Time     `json:"locked_until,omitempty"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

func (j *ScheduledJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// PayoutPayload is carried by payout_transfer jobs.
type PayoutPayload struct {
	PayoutID uuid.UUID `json:"payout_id"`
}
