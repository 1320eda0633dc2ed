package bookings

import (
	"time"

	"adspace/internal/pricing"
	"adspace/internal/shared/actor"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Booking is one advertiser's rental of one space for an inclusive range of
// days. Prices are snapshotted at creation; all amounts are cents.
type Booking struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SpaceID      uuid.UUID `gorm:"type:uuid;index:idx_bookings_space_dates;not null" json:"space_id"`
	CampaignID   uuid.UUID `gorm:"type:uuid;index;not null" json:"campaign_id"`
	AdvertiserID uuid.UUID `gorm:"type:uuid;index;not null" json:"advertiser_id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id"`
	StartDate    time.Time `gorm:"index:idx_bookings_space_dates;not null" json:"start_date"`
	EndDate      time.Time `gorm:"index:idx_bookings_space_dates;not null" json:"end_date"`

	PricePerDay     int64          `gorm:"not null" json:"price_per_day"`
	InstallationFee int64          `gorm:"not null" json:"installation_fee"`
	DurationDays    int            `gorm:"not null" json:"duration_days"`
	RentalCost      int64          `gorm:"not null" json:"rental_cost"`
	Subtotal        int64          `gorm:"not null" json:"subtotal"`
	PlatformFee     int64          `gorm:"not null" json:"platform_fee"`
	ProcessorFee    int64          `gorm:"not null" json:"processor_fee"`
	Total           int64          `gorm:"not null" json:"total"`
	Currency        string         `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	PaymentPolicy   pricing.Policy `gorm:"type:varchar(10);not null" json:"payment_policy"`
	DepositAmount   int64          `gorm:"not null" json:"deposit_amount"`
	BalanceAmount   int64          `gorm:"not null" json:"balance_amount"`
	PayoutAmount    int64          `gorm:"not null" json:"payout_amount"`

	Status Status `gorm:"type:varchar(20);index;not null;default:'PENDING_APPROVAL'" json:"status"`
	Notes  string `gorm:"type:text" json:"notes,omitempty"`

	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	FileDownloadedAt   *time.Time `json:"file_downloaded_at,omitempty"`
	ProofSubmittedAt   *time.Time `json:"proof_submitted_at,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	DisputedAt         *time.Time `json:"disputed_at,omitempty"`
	RejectionReason    string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason,omitempty"`

	BalanceChargeError    string `gorm:"type:text" json:"balance_charge_error,omitempty"`
	BalanceChargeAttempts int    `gorm:"not null;default:0" json:"balance_charge_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsOwner reports whether a is the space owner of this booking.
func (b *Booking) IsOwner(a actor.Actor) bool {
	return a.Type == actor.TypeOwner && a.ID == b.OwnerID
}

// IsAdvertiser reports whether a is the advertiser of this booking.
func (b *Booking) IsAdvertiser(a actor.Actor) bool {
	return a.Type == actor.TypeAdvertiser && a.ID == b.AdvertiserID
}

// CanView reports whether a may read this booking.
func (b *Booking) CanView(a actor.Actor) bool {
	return a.Privileged() || b.IsOwner(a) || b.IsAdvertiser(a)
}

// EndOfService is the last instant of the booked range.
func (b *Booking) EndOfService() time.Time {
	return b.EndDate.Add(24*time.Hour - time.Nanosecond)
}

// FirstChargeAmount is what checkout collects for this booking.
func (b *Booking) FirstChargeAmount() int64 {
	if b.PaymentPolicy == pricing.PolicyDeposit {
		return b.DepositAmount
	}
	return b.Total
}
