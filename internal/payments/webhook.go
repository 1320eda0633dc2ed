package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookResult struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
}

// HandleWebhook verifies and applies one processor event. Events are applied
// at most once; redelivery of an applied event is acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature, remoteIP string) (*WebhookResult, error) {
	now := s.Clock.Now()
	if err := processor.Verify(payload, signature, s.Config.WebhookSecret, s.Config.WebhookTolerance, now); err != nil {
		s.Logger.LogWebhookRejected(ctx, err.Error(), remoteIP)
		return nil, errs.Wrap(errs.KindValidation, err, "invalid webhook signature")
	}
	event, err := processor.ParseEvent(payload)
	if err != nil {
		s.Logger.LogWebhookRejected(ctx, err.Error(), remoteIP)
		return nil, errs.Wrap(errs.KindValidation, err, "malformed webhook payload")
	}

	result := &WebhookResult{EventID: event.ID, Type: event.Type}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := createIgnoringDuplicate(ctx, tx, &WebhookReceipt{
			EventID:    event.ID,
			Type:       event.Type,
			ReceivedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to record webhook receipt: %w", err)
		}
		if !created {
			result.Duplicate = true
			return nil
		}

		switch event.Type {
		case processor.EventCheckoutCompleted:
			return s.applyCheckoutCompleted(ctx, tx, event)
		case processor.EventCheckoutExpired:
			return s.applyCheckoutExpired(ctx, tx, event)
		case processor.EventChargeFailed:
			return s.applyChargeFailed(ctx, tx, event)
		default:
			s.Logger.Debug("ignoring webhook event", "event_id", event.ID, "type", event.Type)
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) sessionByProcessorID(ctx context.Context, tx *gorm.DB, processorID string) (*CheckoutSession, error) {
	var session CheckoutSession
	err := tx.WithContext(ctx).Preload("Lines").Where("processor_session_id = ?", processorID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("checkout session %s not found", processorID)
		}
		return nil, err
	}
	sort.Slice(session.Lines, func(i, j int) bool {
		return session.Lines[i].BookingID.String() < session.Lines[j].BookingID.String()
	})
	return &session, nil
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, tx *gorm.DB, event *processor.Event) error {
	session, err := s.sessionByProcessorID(ctx, tx, event.Data.SessionID)
	if err != nil {
		return err
	}
	now := s.Clock.Now()
	if session.Status == SessionCompleted {
		return nil
	}
	if err := tx.Model(&CheckoutSession{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
		"status":             SessionCompleted,
		"payment_method_ref": event.Data.PaymentMethodRef,
		"completed_at":       now,
		"updated_at":         now,
	}).Error; err != nil {
		return fmt.Errorf("failed to complete checkout session: %w", err)
	}

	for _, line := range session.Lines {
		b, err := bookings.Lock(ctx, tx, line.BookingID)
		if err != nil {
			return err
		}

		sessionID := session.ID
		payment := &Payment{
			BookingID:         b.ID,
			Type:              line.PaymentType,
			Amount:            line.Amount,
			ProcessorFee:      s.Processor.EstimateFee(line.Amount),
			Currency:          session.Currency,
			Status:            PaymentSucceeded,
			ChargeRef:         event.Data.ChargeID,
			CheckoutSessionID: &sessionID,
			PaymentMethodRef:  event.Data.PaymentMethodRef,
			PaidAt:            &now,
		}
		created, err := createIgnoringDuplicate(ctx, tx, payment)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		if !created {
			continue
		}
		if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: b.ID,
			Category:  audit.CategoryPayment,
			Type:      audit.TypeSuccess,
			Action:    "payment_succeeded",
			Message:   fmt.Sprintf("%s payment of %d received", line.PaymentType, line.Amount),
			Metadata: map[string]interface{}{
				"payment_id": payment.ID.String(),
				"charge_ref": event.Data.ChargeID,
				"event_id":   event.ID,
			},
		}); err != nil {
			return err
		}

		if b.Status != bookings.StatusApproved {
			// money arrived for a booking that moved on; an admin decides
			s.Logger.LogPaymentFailure(ctx, b.ID.String(), string(line.PaymentType), "payment received for "+string(b.Status)+" booking")
			if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
				BookingID: b.ID,
				Category:  audit.CategoryPayment,
				Type:      audit.TypeError,
				Action:    "payment_for_inactive_booking",
				Message:   fmt.Sprintf("payment received while booking is %s", b.Status),
				Metadata:  map[string]interface{}{"payment_id": payment.ID.String(), "booking_status": string(b.Status)},
			}); err != nil {
				return err
			}
			continue
		}

		to := bookings.StatusConfirmed
		if line.PaymentType == TypeDeposit {
			to = bookings.StatusPendingBalance
		}
		if err := s.Machine.Transition(ctx, tx, b, to, actor.System(), bookings.TransitionOptions{
			Message:  "checkout completed",
			Metadata: map[string]interface{}{"payment_id": payment.ID.String()},
		}); err != nil {
			return err
		}
		if to == bookings.StatusPendingBalance {
			if err := s.ScheduleBalanceCharge(ctx, tx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) applyCheckoutExpired(ctx context.Context, tx *gorm.DB, event *processor.Event) error {
	session, err := s.sessionByProcessorID(ctx, tx, event.Data.SessionID)
	if err != nil {
		return err
	}
	result := tx.Model(&CheckoutSession{}).
		Where("id = ? AND status = ?", session.ID, SessionOpen).
		Updates(map[string]interface{}{"status": SessionExpired, "updated_at": s.Clock.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}
	for _, line := range session.Lines {
		if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: line.BookingID,
			Category:  audit.CategoryPayment,
			Type:      audit.TypeWarning,
			Action:    "checkout_expired",
			Message:   "checkout session expired without payment",
			Metadata:  map[string]interface{}{"session_id": session.ID.String()},
		}); err != nil {
			return err
		}
	}
	return nil
}

// applyChargeFailed records an asynchronous decline of an off-session balance
// charge. The booking keeps its status.
func (s *Service) applyChargeFailed(ctx context.Context, tx *gorm.DB, event *processor.Event) error {
	bookingID, err := uuid.Parse(event.Data.Metadata["booking_id"])
	if err != nil {
		s.Logger.Warn("charge.failed without booking reference", "event_id", event.ID)
		return nil
	}
	b, err := bookings.Lock(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	reason := event.Data.FailureReason
	if reason == "" {
		reason = event.Data.FailureCode
	}
	return s.recordBalanceDecline(ctx, tx, b, reason, actor.System())
}

// ScheduleBalanceCharge enqueues the balance charge of a deposit booking at
// the configured lead time before the start date, or now if that has passed.
func (s *Service) ScheduleBalanceCharge(ctx context.Context, tx *gorm.DB, b *bookings.Booking) error {
	due := b.StartDate.Add(-s.Marketplace.BalanceLeadTime)
	if now := s.Clock.Now(); due.Before(now) {
		due = now
	}
	return s.Jobs.Schedule(ctx, tx, b.ID, jobs.KindBalanceCharge, due, nil)
}
