package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]TimelineEvent, error)
	ListUndispatched(ctx context.Context, limit int) ([]TimelineEvent, error)
	MarkDispatched(ctx context.Context, ids []int64, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]TimelineEvent, error) {
	var events []TimelineEvent
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) ListUndispatched(ctx context.Context, limit int) ([]TimelineEvent, error) {
	var events []TimelineEvent
	err := r.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *repository) MarkDispatched(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&TimelineEvent{}).
		Where("id IN ? AND dispatched_at IS NULL", ids).
		Update("dispatched_at", at).Error
}
