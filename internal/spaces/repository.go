package spaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Space, error)
	// LockForUpdate must be called inside a transaction; it serializes
	// booking creation per space.
	LockForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Space, error)
	BlockedOverlapping(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID, start, end time.Time) ([]BlockedDate, error)
	AdjustCounts(ctx context.Context, tx *gorm.DB, id uuid.UUID, total, active int) error
	PayoutAccount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (string, error)
	Create(ctx context.Context, space *Space) error
	// Block stores the range as whole UTC days.
	Block(ctx context.Context, tx *gorm.DB, blocked *BlockedDate) error
	Unblock(ctx context.Context, tx *gorm.DB, spaceID, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Space, error) {
	var space Space
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&space).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("space %s not found", id)
		}
		return nil, fmt.Errorf("failed to load space: %w", err)
	}
	return &space, nil
}

func (r *repository) LockForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Space, error) {
	var space Space
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&space).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("space %s not found", id)
		}
		return nil, fmt.Errorf("failed to lock space: %w", err)
	}
	return &space, nil
}

func (r *repository) BlockedOverlapping(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID, start, end time.Time) ([]BlockedDate, error) {
	if tx == nil {
		tx = r.db
	}
	var blocked []BlockedDate
	err := tx.WithContext(ctx).
		Where("space_id = ? AND start_date < ? AND end_date >= ?", spaceID, dayStart(end).AddDate(0, 0, 1), dayStart(start)).
		Order("start_date ASC").
		Find(&blocked).Error
	return blocked, err
}

func (r *repository) AdjustCounts(ctx context.Context, tx *gorm.DB, id uuid.UUID, total, active int) error {
	return tx.WithContext(ctx).
		Model(&Space{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"booking_count":        gorm.Expr("booking_count + ?", total),
			"active_booking_count": gorm.Expr("active_booking_count + ?", active),
		}).Error
}

func (r *repository) PayoutAccount(ctx context.Context, tx *gorm.DB, id uuid.UUID) (string, error) {
	if tx == nil {
		tx = r.db
	}
	var space Space
	err := tx.WithContext(ctx).Select("id", "owner_payout_account").Where("id = ?", id).First(&space).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.NotFound("space %s not found", id)
		}
		return "", err
	}
	return space.OwnerPayoutAccount, nil
}

func (r *repository) Create(ctx context.Context, space *Space) error {
	return r.db.WithContext(ctx).Create(space).Error
}

func (r *repository) Block(ctx context.Context, tx *gorm.DB, blocked *BlockedDate) error {
	if tx == nil {
		tx = r.db
	}
	blocked.StartDate = dayStart(blocked.StartDate)
	blocked.EndDate = dayStart(blocked.EndDate)
	if blocked.EndDate.Before(blocked.StartDate) {
		return errs.Validation("blocked range ends before it starts")
	}
	return tx.WithContext(ctx).Create(blocked).Error
}

func (r *repository) Unblock(ctx context.Context, tx *gorm.DB, spaceID, id uuid.UUID) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Where("id = ? AND space_id = ?", id, spaceID).Delete(&BlockedDate{})
	if result.Error != nil {
		return fmt.Errorf("failed to unblock dates: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("blocked range %s not found", id)
	}
	return nil
}

// dayStart truncates t to midnight UTC.
func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
