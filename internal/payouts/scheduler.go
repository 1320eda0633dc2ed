package payouts

import (
	"context"
	"errors"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/errs"
	"adspace/internal/spaces"
	"adspace/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reasonMissingAccount = "owner payout account missing"

type Dependencies struct {
	DB        *gorm.DB
	Processor processor.Processor
	Machine   *bookings.StateMachine
	Recorder  *audit.Recorder
	Jobs      *jobs.Store
	Spaces    spaces.Repository
	Clock     clock.Clock
	Logger    *logger.Logger
	Config    config.MarketplaceConfig
}

// Scheduler creates staged payouts and moves money to owners. Transfers are
// never retried automatically; a failed stage waits for an admin retry.
type Scheduler struct {
	Dependencies
}

func NewScheduler(deps Dependencies) *Scheduler {
	return &Scheduler{Dependencies: deps}
}

type attemptMode int

const (
	attemptFirst attemptMode = iota
	attemptRetry
)

// CreateStage inserts the payout row for stage inside tx and enqueues its
// transfer job. It returns created=false when the stage already exists or has
// nothing to pay.
func (s *Scheduler) CreateStage(ctx context.Context, tx *gorm.DB, b *bookings.Booking, stage Stage) (*Payout, bool, error) {
	stage1, stage2 := Split(b.PayoutAmount, s.Config.PayoutStage1Percent)
	amount := stage1
	if stage == Stage2 {
		amount = stage2
	}
	if amount <= 0 {
		return nil, false, nil
	}

	destination, err := s.Spaces.PayoutAccount(ctx, tx, b.SpaceID)
	if err != nil {
		return nil, false, err
	}

	payout := &Payout{
		BookingID:   b.ID,
		Stage:       stage,
		OwnerID:     b.OwnerID,
		Amount:      amount,
		Currency:    b.Currency,
		Status:      StatusPending,
		Destination: destination,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payout)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create %s payout: %w", stage, result.Error)
	}
	if result.RowsAffected == 0 {
		existing, err := s.find(ctx, tx, b.ID, stage)
		return existing, false, err
	}

	if err := s.Jobs.Schedule(ctx, tx, b.ID, jobs.KindPayoutTransfer, s.Clock.Now(), jobs.PayoutPayload{PayoutID: payout.ID}); err != nil {
		return nil, false, err
	}
	_, err = s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: b.ID,
		Category:  audit.CategoryPayout,
		Type:      audit.TypeInfo,
		Action:    "payout_scheduled",
		ToStatus:  string(StatusPending),
		Message:   fmt.Sprintf("%s payout of %d scheduled", stage, amount),
		Metadata:  map[string]interface{}{"payout_id": payout.ID.String(), "stage": string(stage), "amount": amount},
	})
	return payout, true, err
}

// AttemptFirst runs the initial transfer of a PENDING payout. Any other status
// means another path already attempted it, and the call is a no-op.
func (s *Scheduler) AttemptFirst(ctx context.Context, payoutID uuid.UUID) (*Payout, error) {
	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	return s.attempt(ctx, p.BookingID, payoutID, actor.System(), attemptFirst)
}

// Retry re-attempts the earliest payout of the booking that failed, was paid
// partially, or is stuck in PROCESSING. The updated payout is returned even
// when the new attempt fails; the failure lives on the record.
func (s *Scheduler) Retry(ctx context.Context, bookingID uuid.UUID, act actor.Actor) (*Payout, error) {
	return s.attempt(ctx, bookingID, uuid.Nil, act, attemptRetry)
}

func (s *Scheduler) attempt(ctx context.Context, bookingID, payoutID uuid.UUID, act actor.Actor, mode attemptMode) (*Payout, error) {
	var (
		p         *Payout
		prevKey   string
		reconcile bool
		skip      bool
	)

	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if payoutBlocked(b.Status) {
			if mode == attemptFirst {
				skip = true
				return nil
			}
			return errs.InvalidTransition("payouts are frozen while the booking is %s", b.Status)
		}

		var err error
		if payoutID != uuid.Nil {
			p, err = s.getTx(ctx, tx, payoutID)
		} else {
			p, err = s.retryCandidate(ctx, tx, bookingID)
		}
		if err != nil {
			return err
		}

		switch mode {
		case attemptFirst:
			if p.Status != StatusPending {
				skip = true
				return nil
			}
		case attemptRetry:
			if !p.NeedsAttention(s.Clock.Now(), s.Config.StaleTransferAfter) {
				return errs.InvalidTransition("%s payout is %s and cannot be retried", p.Stage, p.Status)
			}
		}

		if p.Destination == "" {
			if p.Destination, err = s.Spaces.PayoutAccount(ctx, tx, b.SpaceID); err != nil {
				return err
			}
		}
		if p.Destination == "" {
			skip = true
			return s.failWithoutCall(ctx, tx, p, act)
		}

		reconcile = p.LastAttemptKey != "" && (p.Unacknowledged || p.Status == StatusProcessing)
		prevKey = p.LastAttemptKey
		return s.markProcessing(ctx, tx, p, act)
	})
	if err != nil {
		return nil, err
	}
	if skip {
		return p, nil
	}

	outcome := s.transfer(ctx, p, prevKey, reconcile)
	return s.finish(ctx, p, outcome, act)
}

func payoutBlocked(status bookings.Status) bool {
	return status == bookings.StatusDisputed || status == bookings.StatusCancelled || status == bookings.StatusRejected
}

func (s *Scheduler) markProcessing(ctx context.Context, tx *gorm.DB, p *Payout, act actor.Actor) error {
	now := s.Clock.Now()
	from := p.Status
	prevAttempts := p.AttemptCount
	key := fmt.Sprintf("payout:%s:%s:%d", p.BookingID, p.Stage, prevAttempts+1)

	result := tx.WithContext(ctx).
		Model(&Payout{}).
		Where("id = ? AND status = ? AND attempt_count = ?", p.ID, from, prevAttempts).
		Updates(map[string]interface{}{
			"status":           StatusProcessing,
			"attempt_count":    prevAttempts + 1,
			"last_attempt_at":  now,
			"last_attempt_key": key,
			"destination":      p.Destination,
			"unacknowledged":   false,
			"failure_reason":   "",
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark payout processing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.RaceLost("payout %s changed concurrently", p.ID)
	}

	p.Status = StatusProcessing
	p.AttemptCount = prevAttempts + 1
	p.LastAttemptAt = &now
	p.LastAttemptKey = key

	_, err := s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID:  p.BookingID,
		Category:   audit.CategoryPayout,
		Type:       audit.TypeInfo,
		Action:     "payout_attempt_started",
		FromStatus: string(from),
		ToStatus:   string(StatusProcessing),
		Actor:      act,
		Message:    fmt.Sprintf("%s payout attempt %d started", p.Stage, p.AttemptCount),
		Metadata:   map[string]interface{}{"payout_id": p.ID.String(), "idempotency_key": key},
	})
	return err
}

func (s *Scheduler) failWithoutCall(ctx context.Context, tx *gorm.DB, p *Payout, act actor.Actor) error {
	now := s.Clock.Now()
	from := p.Status
	result := tx.WithContext(ctx).
		Model(&Payout{}).
		Where("id = ? AND status = ?", p.ID, from).
		Updates(map[string]interface{}{
			"status":          StatusFailed,
			"attempt_count":   p.AttemptCount + 1,
			"last_attempt_at": now,
			"failure_reason":  reasonMissingAccount,
			"updated_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	p.Status = StatusFailed
	p.AttemptCount++
	p.LastAttemptAt = &now
	p.FailureReason = reasonMissingAccount

	s.Logger.LogPayoutFailure(ctx, p.BookingID.String(), string(p.Stage), p.AttemptCount, reasonMissingAccount)
	_, err := s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID:  p.BookingID,
		Category:   audit.CategoryPayout,
		Type:       audit.TypeError,
		Action:     "payout_failed",
		FromStatus: string(from),
		ToStatus:   string(StatusFailed),
		Actor:      act,
		Message:    fmt.Sprintf("%s payout failed: %s", p.Stage, reasonMissingAccount),
		Metadata:   map[string]interface{}{"payout_id": p.ID.String()},
	})
	return err
}

type transferOutcome struct {
	credited      int64 // recovered from the previous unacknowledged attempt
	transfer      *processor.Transfer
	err           error
	reconcileFail bool
	prevKey       string
}

// transfer runs outside any lock.
func (s *Scheduler) transfer(ctx context.Context, p *Payout, prevKey string, reconcile bool) transferOutcome {
	out := transferOutcome{prevKey: prevKey}

	if reconcile {
		prev, err := s.Processor.LookupTransfer(ctx, prevKey)
		switch {
		case err == nil:
			out.credited = prev.Paid
		case errors.Is(err, processor.ErrNotFound):
		default:
			out.err = fmt.Errorf("could not reconcile previous attempt %s: %w", prevKey, err)
			out.reconcileFail = true
			return out
		}
	}

	remaining := p.Remaining() - out.credited
	if remaining <= 0 {
		return out
	}

	out.transfer, out.err = s.Processor.Transfer(ctx, processor.TransferRequest{
		IdempotencyKey: p.LastAttemptKey,
		Destination:    p.Destination,
		Amount:         remaining,
		Currency:       p.Currency,
		Metadata: map[string]string{
			"booking_id": p.BookingID.String(),
			"payout_id":  p.ID.String(),
			"stage":      string(p.Stage),
		},
	})
	return out
}

func (s *Scheduler) finish(ctx context.Context, p *Payout, out transferOutcome, act actor.Actor) (*Payout, error) {
	now := s.Clock.Now()
	paid := p.PaidAmount + out.credited
	updates := map[string]interface{}{"updated_at": now}

	var (
		eventType audit.EventType
		action    string
		message   string
	)

	switch {
	case out.err != nil:
		reason := out.err.Error()
		var decline *processor.DeclineError
		unknown := !errors.As(out.err, &decline)
		updates["status"] = StatusFailed
		updates["failure_reason"] = reason
		updates["unacknowledged"] = unknown
		if out.reconcileFail {
			// keep pointing at the attempt whose outcome is still unknown
			updates["last_attempt_key"] = out.prevKey
		}
		eventType, action = audit.TypeError, "payout_failed"
		message = fmt.Sprintf("%s payout attempt %d failed: %s", p.Stage, p.AttemptCount, reason)
		s.Logger.LogPayoutFailure(ctx, p.BookingID.String(), string(p.Stage), p.AttemptCount, reason)

	case out.transfer != nil && out.transfer.Status == processor.TransferFailed:
		updates["status"] = StatusFailed
		updates["failure_reason"] = out.transfer.FailureReason
		eventType, action = audit.TypeError, "payout_failed"
		message = fmt.Sprintf("%s payout attempt %d failed: %s", p.Stage, p.AttemptCount, out.transfer.FailureReason)
		s.Logger.LogPayoutFailure(ctx, p.BookingID.String(), string(p.Stage), p.AttemptCount, out.transfer.FailureReason)

	default:
		if out.transfer != nil {
			paid += out.transfer.Paid
			updates["transfer_ref"] = out.transfer.ID
		}
		if paid >= p.Amount {
			updates["status"] = StatusCompleted
			updates["completed_at"] = now
			eventType, action = audit.TypeSuccess, "payout_completed"
			message = fmt.Sprintf("%s payout of %d completed", p.Stage, p.Amount)
		} else {
			reason := fmt.Sprintf("paid %d of %d", paid, p.Amount)
			if out.transfer != nil && out.transfer.FailureReason != "" {
				reason = out.transfer.FailureReason + ": " + reason
			}
			updates["status"] = StatusPartiallyPaid
			updates["failure_reason"] = reason
			eventType, action = audit.TypeWarning, "payout_partially_paid"
			message = fmt.Sprintf("%s payout partially paid (%s)", p.Stage, reason)
			s.Logger.LogPayoutFailure(ctx, p.BookingID.String(), string(p.Stage), p.AttemptCount, reason)
		}
	}
	updates["paid_amount"] = paid

	var result *Payout
	err := bookings.WithLock(ctx, s.DB, p.BookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		res := tx.WithContext(ctx).
			Model(&Payout{}).
			Where("id = ? AND status = ? AND attempt_count = ?", p.ID, StatusProcessing, p.AttemptCount).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to record payout result: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			s.Logger.Warn("payout result superseded by a newer attempt",
				"payout_id", p.ID.String(), "attempt", p.AttemptCount)
		} else if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID:  p.BookingID,
			Category:   audit.CategoryPayout,
			Type:       eventType,
			Action:     action,
			FromStatus: string(StatusProcessing),
			ToStatus:   fmt.Sprint(updates["status"]),
			Actor:      act,
			Message:    message,
			Metadata: map[string]interface{}{
				"payout_id":   p.ID.String(),
				"paid_amount": paid,
				"credited":    out.credited,
				"attempt":     p.AttemptCount,
			},
		}); err != nil {
			return err
		}
		var err error
		result, err = s.getTx(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOpen fails every payout of the booking that has not been paid in full
// and is not in flight.
func (s *Scheduler) CancelOpen(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&Payout{}).
		Where("booking_id = ? AND status IN ?", bookingID, []Status{StatusPending, StatusFailed, StatusPartiallyPaid}).
		Updates(map[string]interface{}{
			"status":         StatusFailed,
			"failure_reason": reason,
			"unacknowledged": false,
			"updated_at":     s.Clock.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel payouts: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: bookingID,
			Category:  audit.CategoryPayout,
			Type:      audit.TypeWarning,
			Action:    "payouts_cancelled",
			ToStatus:  string(StatusFailed),
			Message:   fmt.Sprintf("%d open payout(s) cancelled: %s", result.RowsAffected, reason),
		}); err != nil {
			return 0, err
		}
	}
	return result.RowsAffected, nil
}

// Reschedule re-enqueues transfer jobs for PENDING payouts whose jobs were
// cancelled, e.g. by a dispute that was later dismissed.
func (s *Scheduler) Reschedule(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) error {
	var pending []Payout
	if err := tx.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, StatusPending).
		Find(&pending).Error; err != nil {
		return err
	}
	for _, p := range pending {
		if err := s.Jobs.Schedule(ctx, tx, bookingID, jobs.KindPayoutTransfer, s.Clock.Now(), jobs.PayoutPayload{PayoutID: p.ID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return s.getTx(ctx, s.DB, id)
}

func (s *Scheduler) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Payout, error) {
	var payouts []Payout
	err := s.DB.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("stage ASC").
		Find(&payouts).Error
	return payouts, err
}

func (s *Scheduler) getTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Payout, error) {
	var p Payout
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("payout %s not found", id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Scheduler) find(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, stage Stage) (*Payout, error) {
	var p Payout
	if err := tx.WithContext(ctx).Where("booking_id = ? AND stage = ?", bookingID, stage).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Scheduler) retryCandidate(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*Payout, error) {
	var payouts []Payout
	if err := tx.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID, []Status{StatusFailed, StatusPartiallyPaid, StatusProcessing}).
		Order("stage ASC").
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	for i := range payouts {
		if payouts[i].NeedsAttention(now, s.Config.StaleTransferAfter) {
			return &payouts[i], nil
		}
	}
	return nil, errs.Validation("booking %s has no payout that needs a retry", bookingID)
}
