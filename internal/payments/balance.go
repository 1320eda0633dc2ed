package payments

import (
	"context"
	"errors"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/pricing"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// owesBalance lists the statuses in which an unpaid balance may be charged.
var owesBalance = map[bookings.Status]bool{
	bookings.StatusPendingBalance: true,
	bookings.StatusActive:         true,
	bookings.StatusAwaitingProof:  true,
	bookings.StatusVerified:       true,
	bookings.StatusCompleted:      true,
}

// BalanceHandler charges the balance of a deposit booking. Declines are
// recorded on the booking and finish the job; an unacknowledged charge fails
// the job so the runner retries it with the same idempotency key.
func (s *Service) BalanceHandler(ctx context.Context, job jobs.ScheduledJob) error {
	_, err := s.chargeBalance(ctx, job.BookingID, actor.System(), false)
	return err
}

// RetryBalanceCharge is the admin retry of a declined balance charge. The
// booking is returned even when the charge fails again.
func (s *Service) RetryBalanceCharge(ctx context.Context, bookingID uuid.UUID, act actor.Actor) (*bookings.Booking, error) {
	b, err := s.chargeBalance(ctx, bookingID, act, true)
	if err != nil && b != nil && errs.KindOf(err) == errs.KindPaymentFailure {
		return b, nil
	}
	return b, err
}

func (s *Service) chargeBalance(ctx context.Context, bookingID uuid.UUID, act actor.Actor, manual bool) (*bookings.Booking, error) {
	var (
		payment *Payment
		method  string
		skip    bool
	)

	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if b.PaymentPolicy != pricing.PolicyDeposit || b.BalanceAmount <= 0 {
			if manual {
				return errs.Validation("booking %s has no balance to charge", b.ID)
			}
			skip = true
			return nil
		}
		if !owesBalance[b.Status] {
			if manual {
				return errs.InvalidTransition("balance cannot be charged while the booking is %s", b.Status)
			}
			skip = true
			return nil
		}

		var err error
		if method, err = s.savedPaymentMethod(ctx, tx, b.ID); err != nil {
			return err
		}
		payment, skip, err = s.prepareBalancePayment(ctx, tx, b, act)
		return err
	})
	if err != nil {
		return nil, err
	}
	if skip {
		return s.getBooking(ctx, bookingID)
	}

	charge, chargeErr := s.Processor.ChargeOffSession(ctx, processor.ChargeRequest{
		IdempotencyKey:   payment.IdempotencyKey,
		PaymentMethodRef: method,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		Metadata: map[string]string{
			"booking_id": bookingID.String(),
			"payment_id": payment.ID.String(),
		},
	})

	var outcome error
	err = bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		var decline *processor.DeclineError
		switch {
		case chargeErr == nil:
			return s.recordBalancePaid(ctx, tx, b, payment, charge, act)
		case errors.As(chargeErr, &decline):
			if err := tx.Model(&Payment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
				"status":         PaymentFailed,
				"failure_reason": decline.Error(),
				"updated_at":     s.Clock.Now(),
			}).Error; err != nil {
				return err
			}
			outcome = errs.Wrap(errs.KindPaymentFailure, chargeErr, "balance charge declined")
			return s.recordBalanceDecline(ctx, tx, b, decline.Error(), act)
		default:
			// outcome unknown; the PENDING payment keeps its key for the next try
			reason := chargeErr.Error()
			s.Logger.LogPaymentFailure(ctx, b.ID.String(), string(TypeBalance), reason)
			if err := tx.Model(&bookings.Booking{}).Where("id = ?", b.ID).
				Update("balance_charge_error", reason).Error; err != nil {
				return err
			}
			outcome = errs.Wrap(errs.KindPaymentFailure, chargeErr, "balance charge not acknowledged")
			_, err := s.Recorder.Record(ctx, tx, audit.Entry{
				BookingID: b.ID,
				Category:  audit.CategoryPayment,
				Type:      audit.TypeWarning,
				Action:    "balance_charge_unconfirmed",
				Actor:     act,
				Message:   "balance charge outcome unknown: " + reason,
				Metadata:  map[string]interface{}{"payment_id": payment.ID.String(), "idempotency_key": payment.IdempotencyKey},
			})
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		var decline *processor.DeclineError
		if !manual && errors.As(chargeErr, &decline) {
			return b, nil
		}
		return b, outcome
	}
	return b, nil
}

// prepareBalancePayment creates or re-arms the BALANCE payment row and bumps
// the attempt counter. A PENDING row left by an unacknowledged attempt keeps
// its idempotency key so the processor can deduplicate.
func (s *Service) prepareBalancePayment(ctx context.Context, tx *gorm.DB, b *bookings.Booking, act actor.Actor) (*Payment, bool, error) {
	var payment Payment
	err := tx.WithContext(ctx).Where("booking_id = ? AND type = ?", b.ID, TypeBalance).First(&payment).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	found := err == nil
	if found && payment.Status.Collected() {
		return nil, true, nil
	}

	attempts := b.BalanceChargeAttempts + 1
	if err := tx.Model(&bookings.Booking{}).Where("id = ?", b.ID).
		Update("balance_charge_attempts", attempts).Error; err != nil {
		return nil, false, err
	}

	switch {
	case !found:
		payment = Payment{
			BookingID:      b.ID,
			Type:           TypeBalance,
			Amount:         b.BalanceAmount,
			Currency:       b.Currency,
			Status:         PaymentPending,
			IdempotencyKey: fmt.Sprintf("balance:%s:%d", b.ID, attempts),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return nil, false, errs.FromConstraint(err, "balance payment created concurrently")
		}
	case payment.Status == PaymentFailed:
		payment.Status = PaymentPending
		payment.IdempotencyKey = fmt.Sprintf("balance:%s:%d", b.ID, attempts)
		if err := tx.Model(&Payment{}).Where("id = ? AND status = ?", payment.ID, PaymentFailed).Updates(map[string]interface{}{
			"status":          PaymentPending,
			"idempotency_key": payment.IdempotencyKey,
			"failure_reason":  "",
			"updated_at":      s.Clock.Now(),
		}).Error; err != nil {
			return nil, false, err
		}
	}

	_, err = s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: b.ID,
		Category:  audit.CategoryPayment,
		Type:      audit.TypeInfo,
		Action:    "balance_charge_attempted",
		Actor:     act,
		Message:   fmt.Sprintf("balance charge attempt %d for %d", attempts, payment.Amount),
		Metadata:  map[string]interface{}{"payment_id": payment.ID.String(), "idempotency_key": payment.IdempotencyKey},
	})
	return &payment, false, err
}

func (s *Service) recordBalancePaid(ctx context.Context, tx *gorm.DB, b *bookings.Booking, payment *Payment, charge *processor.Charge, act actor.Actor) error {
	now := s.Clock.Now()
	if err := tx.Model(&Payment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
		"status":         PaymentSucceeded,
		"charge_ref":     charge.ID,
		"processor_fee":  charge.Fee,
		"failure_reason": "",
		"paid_at":        now,
		"updated_at":     now,
	}).Error; err != nil {
		return fmt.Errorf("failed to record balance payment: %w", err)
	}
	if err := tx.Model(&bookings.Booking{}).Where("id = ?", b.ID).
		Update("balance_charge_error", "").Error; err != nil {
		return err
	}
	b.BalanceChargeError = ""

	if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: b.ID,
		Category:  audit.CategoryPayment,
		Type:      audit.TypeSuccess,
		Action:    "payment_succeeded",
		Actor:     act,
		Message:   fmt.Sprintf("BALANCE payment of %d received", payment.Amount),
		Metadata:  map[string]interface{}{"payment_id": payment.ID.String(), "charge_ref": charge.ID},
	}); err != nil {
		return err
	}

	if b.Status == bookings.StatusPendingBalance {
		return s.Machine.Transition(ctx, tx, b, bookings.StatusConfirmed, act, bookings.TransitionOptions{
			Message: "balance collected",
		})
	}
	return nil
}

func (s *Service) recordBalanceDecline(ctx context.Context, tx *gorm.DB, b *bookings.Booking, reason string, act actor.Actor) error {
	s.Logger.LogPaymentFailure(ctx, b.ID.String(), string(TypeBalance), reason)
	if err := tx.Model(&bookings.Booking{}).Where("id = ?", b.ID).
		Update("balance_charge_error", reason).Error; err != nil {
		return err
	}
	b.BalanceChargeError = reason
	_, err := s.Recorder.Record(ctx, tx, audit.Entry{
		BookingID: b.ID,
		Category:  audit.CategoryPayment,
		Type:      audit.TypeError,
		Action:    "balance_charge_failed",
		Actor:     act,
		Message:   "balance charge declined: " + reason,
	})
	return err
}

// savedPaymentMethod returns the reusable method captured by the first
// checkout of the booking.
func (s *Service) savedPaymentMethod(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (string, error) {
	var payment Payment
	err := tx.WithContext(ctx).
		Where("booking_id = ? AND type IN ? AND payment_method_ref <> ''", bookingID, []PaymentType{TypeDeposit, TypeFull}).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return payment.PaymentMethodRef, nil
}

func (s *Service) getBooking(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	var b bookings.Booking
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", id)
		}
		return nil, err
	}
	return &b, nil
}
