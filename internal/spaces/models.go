package spaces

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusInactive        Status = "INACTIVE"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusRejected        Status = "REJECTED"
	StatusSuspended       Status = "SUSPENDED"
)

// Space is a bookable advertising space. Spaces are deactivated, never
// deleted, because bookings keep referencing them.
type Space struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID            uuid.UUID  `gorm:"type:uuid;index;not null" json:"owner_id"`
	Name               string     `gorm:"type:varchar(200);not null" json:"name"`
	Location           string     `gorm:"type:varchar(300)" json:"location"`
	PricePerDay        int64      `gorm:"not null" json:"price_per_day"`
	InstallationFee    int64      `gorm:"not null;default:0" json:"installation_fee"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	MinDurationDays    int        `gorm:"not null;default:1" json:"min_duration_days"`
	MaxDurationDays    int        `gorm:"not null;default:0" json:"max_duration_days"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	AvailableTo        *time.Time `json:"available_to,omitempty"`
	DepositPercent     int        `gorm:"not null;default:0" json:"deposit_percent"`
	OwnerPayoutAccount string     `gorm:"type:varchar(100)" json:"-"`
	Status             Status     `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	BookingCount       int        `gorm:"not null;default:0" json:"booking_count"`
	ActiveBookingCount int        `gorm:"not null;default:0" json:"active_booking_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BlockedDate is an owner-declared unavailable range, both days inclusive.
type BlockedDate struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SpaceID   uuid.UUID `gorm:"type:uuid;index;not null" json:"space_id"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	Reason    string    `gorm:"type:varchar(200)" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Space) TableName() string {
	return "spaces"
}

func (BlockedDate) TableName() string {
	return "space_blocked_dates"
}

func (s *Space) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (b *BlockedDate) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (s *Space) IsBookable() bool {
	return s.Status == StatusActive
}

// HasPayoutAccount reports whether transfers to the owner can be attempted.
func (s *Space) HasPayoutAccount() bool {
	return s.OwnerPayoutAccount != ""
}
