package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adspace/internal/shared/clock"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewStore(db *gorm.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clk}
}

// Schedule enqueues a job inside tx. Scheduling the same (booking, kind, due)
// twice is a no-op, except that a previously cancelled row is revived.
func (s *Store) Schedule(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, kind Kind, dueAt time.Time, payload interface{}) error {
	job := &ScheduledJob{
		BookingID: bookingID,
		Kind:      kind,
		DueAt:     dueAt.UTC(),
		NextRunAt: dueAt.UTC(),
		Status:    StatusPending,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode job payload: %w", err)
		}
		job.Payload = datatypes.JSON(raw)
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "booking_id"}, {Name: "kind"}, {Name: "due_at"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "scheduled_jobs.status = ?", Vars: []interface{}{StatusCancelled}},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       StatusPending,
			"attempts":     0,
			"last_error":   "",
			"locked_until": nil,
			"next_run_at":  job.NextRunAt,
			"updated_at":   s.clock.Now(),
		}),
	}).Create(job).Error
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", kind, err)
	}
	return nil
}

// CancelPending cancels pending jobs of the booking. With no kinds given every
// pending job is cancelled.
func (s *Store) CancelPending(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, kinds ...Kind) (int64, error) {
	q := tx.WithContext(ctx).
		Model(&ScheduledJob{}).
		Where("booking_id = ? AND status = ?", bookingID, StatusPending)
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	result := q.Updates(map[string]interface{}{
		"status":     StatusCancelled,
		"updated_at": s.clock.Now(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ClaimDue leases up to limit due jobs. Each claim is a conditional
// PENDING -> RUNNING update, so two runners never hold the same job.
func (s *Store) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]ScheduledJob, error) {
	now := s.clock.Now()

	var candidates []ScheduledJob
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", StatusPending, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due jobs: %w", err)
	}

	claimed := make([]ScheduledJob, 0, len(candidates))
	lockedUntil := now.Add(lease)
	for _, job := range candidates {
		result := s.db.WithContext(ctx).
			Model(&ScheduledJob{}).
			Where("id = ? AND status = ?", job.ID, StatusPending).
			Updates(map[string]interface{}{
				"status":       StatusRunning,
				"locked_until": lockedUntil,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   now,
			})
		if result.Error != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		job.Status = StatusRunning
		job.LockedUntil = &lockedUntil
		job.Attempts++
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).
		Model(&ScheduledJob{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Updates(map[string]interface{}{
			"status":       StatusDone,
			"locked_until": nil,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// Fail releases a running job for another try after backoff, or parks it as
// FAILED once maxAttempts is reached.
func (s *Store) Fail(ctx context.Context, job ScheduledJob, cause error, maxAttempts int, backoff time.Duration) error {
	now := s.clock.Now()
	updates := map[string]interface{}{
		"last_error":   cause.Error(),
		"locked_until": nil,
		"updated_at":   now,
	}
	if job.Attempts >= maxAttempts {
		updates["status"] = StatusFailed
	} else {
		updates["status"] = StatusPending
		updates["next_run_at"] = now.Add(backoff * time.Duration(job.Attempts))
	}
	return s.db.WithContext(ctx).
		Model(&ScheduledJob{}).
		Where("id = ? AND status = ?", job.ID, StatusRunning).
		Updates(updates).Error
}

// RecoverStale returns jobs whose lease expired (the runner died mid-job) to
// PENDING.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Model(&ScheduledJob{}).
		Where("status = ? AND locked_until < ?", StatusRunning, now).
		Updates(map[string]interface{}{
			"status":       StatusPending,
			"locked_until": nil,
			"next_run_at":  now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

func (s *Store) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	err := s.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("due_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// DecodePayload unmarshals the job payload into dest.
func DecodePayload(job ScheduledJob, dest interface{}) error {
	if len(job.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", job.ID)
	}
	return json.Unmarshal(job.Payload, dest)
}
