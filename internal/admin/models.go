package admin

import (
	"time"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/payments"
	"adspace/internal/payouts"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminAction is the durable audit record of a privileged override.
type AdminAction struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AdminID      uuid.UUID      `gorm:"type:uuid;index;not null" json:"admin_id"`
	Action       string         `gorm:"type:varchar(40);index;not null" json:"action"`
	BookingID    *uuid.UUID     `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	ResourceType string         `gorm:"type:varchar(20);not null" json:"resource_type"`
	ResourceID   uuid.UUID      `gorm:"type:uuid;not null" json:"resource_id"`
	Before       datatypes.JSON `json:"before,omitempty"`
	After        datatypes.JSON `json:"after,omitempty"`
	Notes        string         `gorm:"type:text" json:"notes,omitempty"`
	Succeeded    bool           `gorm:"not null" json:"succeeded"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	IPAddress    string         `gorm:"type:varchar(45)" json:"ip_address"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (AdminAction) TableName() string {
	return "admin_actions"
}

func (a *AdminAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Snapshot is the state of a booking's payment flow around an override.
type Snapshot struct {
	Booking  *bookings.Booking  `json:"booking"`
	Payments []payments.Payment `json:"payments"`
	Refunds  []payments.Refund  `json:"refunds"`
	Payouts  []payouts.Payout   `json:"payouts"`
}

// Suggested override actions shown next to a payment flow.
const (
	SuggestResolveDispute = "resolve_dispute"
	SuggestRetryPayout    = "retry_payout"
	SuggestRetryBalance   = "retry_balance"
	SuggestRefund         = "refund"
	SuggestRetryRefund    = "retry_refund"
)

type PayoutSummary struct {
	ID            uuid.UUID      `json:"id"`
	Stage         payouts.Stage  `json:"stage"`
	Status        payouts.Status `json:"status"`
	Amount        int64          `json:"amount"`
	PaidAmount    int64          `json:"paid_amount"`
	AttemptCount  int            `json:"attempt_count"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// PaymentFlowRow is one booking as seen by the payments console.
type PaymentFlowRow struct {
	BookingID          uuid.UUID       `json:"booking_id"`
	SpaceID            uuid.UUID       `json:"space_id"`
	SpaceName          string          `json:"space_name"`
	AdvertiserID       uuid.UUID       `json:"advertiser_id"`
	OwnerID            uuid.UUID       `json:"owner_id"`
	Status             bookings.Status `json:"status"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	Total              int64           `json:"total"`
	PayoutAmount       int64           `json:"payout_amount"`
	Collected          int64           `json:"collected"`
	Refunded           int64           `json:"refunded"`
	PaidOut            int64           `json:"paid_out"`
	BalanceChargeError string          `json:"balance_charge_error,omitempty"`
	Payouts            []PayoutSummary `json:"payouts"`
	NeedsAttention     bool            `json:"needs_attention"`
	AttentionReason    string          `json:"attention_reason,omitempty"`
	SuggestedAction    string          `json:"suggested_action,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type FlowSummary struct {
	Bookings       int64 `json:"bookings"`
	Collected      int64 `json:"collected"`
	Refunded       int64 `json:"refunded"`
	PaidOut        int64 `json:"paid_out"`
	NeedsAttention int64 `json:"needs_attention"`
}

type PaymentFlowList struct {
	Summary    FlowSummary         `json:"summary"`
	Rows       []PaymentFlowRow    `json:"rows"`
	Pagination bookings.Pagination `json:"pagination"`
}

// Timeline is the ordered event history of one booking's payment flow.
type Timeline struct {
	Booking *bookings.Booking     `json:"booking"`
	Events  []audit.TimelineEvent `json:"events"`
}
