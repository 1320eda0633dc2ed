package campaigns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Campaign groups an advertiser's bookings. DepositPercent, when set,
// overrides the space's payment policy for every booking of the campaign.
type Campaign struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AdvertiserID   uuid.UUID `gorm:"type:uuid;index;not null" json:"advertiser_id"`
	Name           string    `gorm:"type:varchar(200);not null" json:"name"`
	Budget         int64     `gorm:"not null;default:0" json:"budget"`
	Status         Status    `gorm:"type:varchar(20);not null;default:'DRAFT'" json:"status"`
	DepositPercent *int      `json:"deposit_percent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AcceptsBookings reports whether new bookings may be attached.
func (c *Campaign) AcceptsBookings() bool {
	return c.Status != StatusCompleted && c.Status != StatusCancelled
}

type Repository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Campaign, error)
	Create(ctx context.Context, campaign *Campaign) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Campaign, error) {
	if tx == nil {
		tx = r.db
	}
	var campaign Campaign
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("campaign %s not found", id)
		}
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	return &campaign, nil
}

func (r *repository) Create(ctx context.Context, campaign *Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}
