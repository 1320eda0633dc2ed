package payments

import (
	"context"
	"errors"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Refundable returns how much of the booking's collected money can still be
// refunded: collected payments minus refunds that are pending or succeeded.
func (s *Service) Refundable(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (int64, error) {
	var collected, reserved int64
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Where("booking_id = ? AND status IN ?", bookingID, collectedStatuses).
		Select("COALESCE(SUM(amount), 0)").Scan(&collected).Error; err != nil {
		return 0, err
	}
	if err := tx.WithContext(ctx).Model(&Refund{}).
		Where("booking_id = ? AND status IN ?", bookingID, []RefundStatus{RefundPending, RefundSucceeded}).
		Select("COALESCE(SUM(amount), 0)").Scan(&reserved).Error; err != nil {
		return 0, err
	}
	return collected - reserved, nil
}

var collectedStatuses = []PaymentStatus{PaymentSucceeded, PaymentPartiallyRefunded, PaymentRefunded}

// ReserveRefund writes PENDING refunds for amount (0 = everything refundable)
// inside the caller's booking-locked transaction, allocated across payments
// newest first. The processor is called later by ExecuteRefunds.
func (s *Service) ReserveRefund(ctx context.Context, tx *gorm.DB, b *bookings.Booking, amount int64, reason string, act actor.Actor) ([]Refund, error) {
	refundable, err := s.Refundable(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = refundable
	}
	if amount < 0 {
		return nil, errs.Validation("refund amount must be positive")
	}
	if amount > refundable {
		return nil, errs.Validation("refund of %d exceeds the refundable %d", amount, refundable)
	}
	if amount == 0 {
		return nil, nil
	}

	var payments []Payment
	if err := tx.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", b.ID, collectedStatuses).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, err
	}

	var actorID *uuid.UUID
	if act.ID != uuid.Nil {
		id := act.ID
		actorID = &id
	}

	refunds := make([]Refund, 0, len(payments))
	left := amount
	for _, p := range payments {
		if left == 0 {
			break
		}
		var reservedOnPayment int64
		if err := tx.Model(&Refund{}).
			Where("payment_id = ? AND status IN ?", p.ID, []RefundStatus{RefundPending, RefundSucceeded}).
			Select("COALESCE(SUM(amount), 0)").Scan(&reservedOnPayment).Error; err != nil {
			return nil, err
		}
		available := p.Amount - reservedOnPayment
		if available <= 0 {
			continue
		}
		take := min(available, left)

		id := uuid.New()
		refund := Refund{
			ID:              id,
			BookingID:       b.ID,
			PaymentID:       p.ID,
			Amount:          take,
			Reason:          reason,
			Status:          RefundPending,
			IdempotencyKey:  "refund:" + id.String(),
			RequestedByType: string(act.Type),
			RequestedByID:   actorID,
		}
		if err := tx.Create(&refund).Error; err != nil {
			return nil, fmt.Errorf("failed to reserve refund: %w", err)
		}
		refunds = append(refunds, refund)
		left -= take
	}

	// Settles the refunds even if ExecuteRefunds never runs.
	due := s.Clock.Now().Add(s.Marketplace.RefundRetryAfter)
	if err := s.Jobs.Schedule(ctx, tx, b.ID, jobs.KindRefundReconcile, due, nil); err != nil {
		return nil, err
	}

	_, err = s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: b.ID,
		Category:  audit.CategoryRefund,
		Type:      audit.TypeInfo,
		Action:    "refund_requested",
		Actor:     act,
		Message:   fmt.Sprintf("refund of %d requested: %s", amount, reason),
		Metadata:  map[string]interface{}{"amount": amount, "refunds": len(refunds)},
	})
	return refunds, err
}

// ExecuteRefunds calls the processor for each reserved refund outside any
// lock and records the outcome. Unacknowledged refunds stay PENDING for
// RefundReconcileHandler.
func (s *Service) ExecuteRefunds(ctx context.Context, refunds []Refund, act actor.Actor) ([]Refund, error) {
	out := make([]Refund, 0, len(refunds))
	for _, r := range refunds {
		updated, err := s.settleRefund(ctx, r, act, false)
		if err != nil {
			return out, err
		}
		out = append(out, *updated)
	}
	return out, nil
}

// RefundReconcileHandler settles the booking's PENDING refunds. A refund the
// processor still has not confirmed fails the job, so the runner tries again
// after backoff.
func (s *Service) RefundReconcileHandler(ctx context.Context, job jobs.ScheduledJob) error {
	settled, err := s.settlePending(ctx, job.BookingID, actor.System())
	if err != nil {
		return err
	}
	for _, r := range settled {
		if r.Status == RefundPending {
			return fmt.Errorf("refund %s is still unconfirmed", r.ID)
		}
	}
	return nil
}

// RetryRefunds is the admin retry of refunds the processor never confirmed.
// Refunds that stay unconfirmed are returned as they are, not as an error.
func (s *Service) RetryRefunds(ctx context.Context, bookingID uuid.UUID, act actor.Actor) ([]Refund, error) {
	settled, err := s.settlePending(ctx, bookingID, act)
	if err != nil {
		return nil, err
	}
	if len(settled) == 0 {
		return nil, errs.Validation("booking %s has no unconfirmed refund", bookingID)
	}
	return settled, nil
}

func (s *Service) settlePending(ctx context.Context, bookingID uuid.UUID, act actor.Actor) ([]Refund, error) {
	var pending []Refund
	if err := s.DB.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, RefundPending).
		Order("created_at ASC").
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending refunds: %w", err)
	}
	out := make([]Refund, 0, len(pending))
	for _, r := range pending {
		updated, err := s.settleRefund(ctx, r, act, true)
		if err != nil {
			return out, err
		}
		out = append(out, *updated)
	}
	return out, nil
}

// settleRefund sends r under its stored idempotency key and records the
// outcome. With reconcile set the processor is asked first whether an earlier
// attempt already went through.
func (s *Service) settleRefund(ctx context.Context, r Refund, act actor.Actor, reconcile bool) (*Refund, error) {
	var payment Payment
	if err := s.DB.WithContext(ctx).Where("id = ?", r.PaymentID).First(&payment).Error; err != nil {
		return nil, err
	}

	var (
		res     *processor.Refund
		callErr error
	)
	if reconcile {
		res, callErr = s.Processor.LookupRefund(ctx, r.IdempotencyKey)
		if errors.Is(callErr, processor.ErrNotFound) {
			res, callErr = nil, nil
		}
	}
	if res == nil && callErr == nil {
		res, callErr = s.Processor.Refund(ctx, processor.RefundRequest{
			IdempotencyKey: r.IdempotencyKey,
			ChargeRef:      payment.ChargeRef,
			Amount:         r.Amount,
			Reason:         r.Reason,
		})
	}

	var updated Refund
	err := bookings.WithLock(ctx, s.DB, r.BookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if err := s.recordRefundOutcome(ctx, tx, r, res, callErr, act); err != nil {
			return err
		}
		return tx.Where("id = ?", r.ID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) recordRefundOutcome(ctx context.Context, tx *gorm.DB, r Refund, res *processor.Refund, callErr error, act actor.Actor) error {
	now := s.Clock.Now()
	if callErr != nil {
		var decline *processor.DeclineError
		entry := audit.Entry{
			BookingID: r.BookingID,
			Category:  audit.CategoryRefund,
			Actor:     act,
			Metadata:  map[string]interface{}{"refund_id": r.ID.String(), "amount": r.Amount},
		}
		if errors.As(callErr, &decline) {
			if err := tx.Model(&Refund{}).Where("id = ? AND status = ?", r.ID, RefundPending).Updates(map[string]interface{}{
				"status":         RefundFailed,
				"failure_reason": decline.Error(),
				"updated_at":     now,
			}).Error; err != nil {
				return err
			}
			entry.Type, entry.Action = audit.TypeError, "refund_failed"
			entry.ToStatus = string(RefundFailed)
			entry.Message = "refund declined: " + decline.Error()
		} else {
			if err := tx.Model(&Refund{}).Where("id = ? AND status = ?", r.ID, RefundPending).Updates(map[string]interface{}{
				"failure_reason": callErr.Error(),
				"updated_at":     now,
			}).Error; err != nil {
				return err
			}
			entry.Type, entry.Action = audit.TypeWarning, "refund_unconfirmed"
			entry.ToStatus = string(RefundPending)
			entry.Message = "refund outcome unknown: " + callErr.Error()
		}
		s.Logger.LogPaymentFailure(ctx, r.BookingID.String(), "refund", callErr.Error())
		_, err := s.Recorder.Record(ctx, tx, entry)
		return err
	}

	result := tx.Model(&Refund{}).Where("id = ? AND status = ?", r.ID, RefundPending).Updates(map[string]interface{}{
		"status":         RefundSucceeded,
		"processor_ref":  res.ID,
		"failure_reason": "",
		"updated_at":     now,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}

	var payment Payment
	if err := tx.Where("id = ?", r.PaymentID).First(&payment).Error; err != nil {
		return err
	}
	refunded := payment.RefundedAmount + r.Amount
	status := PaymentPartiallyRefunded
	if refunded >= payment.Amount {
		status = PaymentRefunded
	}
	if err := tx.Model(&Payment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
		"refunded_amount": refunded,
		"status":          status,
		"updated_at":      now,
	}).Error; err != nil {
		return err
	}

	_, err := s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: r.BookingID,
		Category:  audit.CategoryRefund,
		Type:      audit.TypeSuccess,
		Action:    "refund_succeeded",
		ToStatus:  string(RefundSucceeded),
		Actor:     act,
		Message:   fmt.Sprintf("refunded %d", r.Amount),
		Metadata:  map[string]interface{}{"refund_id": r.ID.String(), "processor_ref": res.ID},
	})
	return err
}

// IssueRefund reserves and executes a refund in one call. The booking status
// is left as it is.
func (s *Service) IssueRefund(ctx context.Context, bookingID uuid.UUID, req RefundRequest, act actor.Actor) ([]Refund, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	var reserved []Refund
	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		var err error
		reserved, err = s.ReserveRefund(ctx, tx, b, req.Amount, req.Reason, act)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(reserved) == 0 {
		return nil, errs.Validation("booking %s has nothing to refund", bookingID)
	}
	return s.ExecuteRefunds(ctx, reserved, act)
}
