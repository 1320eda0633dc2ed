package bookings

import (
	"context"
	"errors"
	"fmt"

	"adspace/internal/availability"
	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, query ListQuery) ([]Booking, int64, error)
	Overlapping(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID, r availability.DateRange) ([]availability.Conflict, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Lock loads the booking with a row lock. Every mutation of the booking
// aggregate (payments, proof, payouts, disputes) goes through it.
func Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", id)
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// WithLock runs fn in a transaction holding the booking row lock.
func WithLock(ctx context.Context, db *gorm.DB, id uuid.UUID, fn func(tx *gorm.DB, b *Booking) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(tx, b)
	})
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, booking *Booking) error {
	return tx.WithContext(ctx).Create(booking).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", id)
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, query ListQuery) ([]Booking, int64, error) {
	var bookings []Booking
	var totalCount int64

	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}

	baseQuery := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("campaign_id = ?", campaignID)
	if query.Status != "" {
		baseQuery = baseQuery.Where("status = ?", query.Status)
	}

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	offset := (query.Page - 1) * query.Limit
	err := baseQuery.
		Order("start_date ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&bookings).Error
	return bookings, totalCount, err
}

// Overlapping returns bookings of the space that hold any day of r.
func (r *repository) Overlapping(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID, dr availability.DateRange) ([]availability.Conflict, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []Booking
	err := tx.WithContext(ctx).
		Select("id", "start_date", "end_date", "status").
		Where("space_id = ? AND status NOT IN ? AND start_date <= ? AND end_date >= ?",
			spaceID, ReleasedStatuses(), dr.End, dr.Start).
		Order("start_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	conflicts := make([]availability.Conflict, 0, len(rows))
	for _, b := range rows {
		conflicts = append(conflicts, availability.Conflict{
			Kind:      availability.ConflictBooking,
			ID:        b.ID,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Status:    string(b.Status),
		})
	}
	return conflicts, nil
}
