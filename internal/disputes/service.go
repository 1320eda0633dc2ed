package disputes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/proofs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/errs"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const reasonBookingCancelled = "booking cancelled"

type Dependencies struct {
	DB       *gorm.DB
	Machine  *bookings.StateMachine
	Recorder *audit.Recorder
	Proofs   *proofs.Service
	Payments *payments.Service
	Payouts  *payouts.Scheduler
	Clock    clock.Clock
	Logger   *logger.Logger
}

type Service struct {
	Dependencies
	validate *validator.Validate
}

func NewService(deps Dependencies) *Service {
	return &Service{Dependencies: deps, validate: validator.New()}
}

// Open freezes the booking: proof review stops, every pending timer is
// cancelled and no payout is attempted until an admin resolves the dispute.
func (s *Service) Open(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req OpenDisputeRequest) (*BookingDispute, error) {
	return s.open(ctx, act, bookingID, req, false)
}

// ReportProofIssue opens a dispute against a proof that is still under
// review.
func (s *Service) ReportProofIssue(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req OpenDisputeRequest) (*BookingDispute, error) {
	return s.open(ctx, act, bookingID, req, true)
}

func (s *Service) open(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req OpenDisputeRequest, proofOnly bool) (*BookingDispute, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	photos, err := json.Marshal(req.Photos)
	if err != nil {
		return nil, err
	}

	var dispute *BookingDispute
	err = bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if !b.IsAdvertiser(act) && !act.Privileged() {
			return errs.Forbidden("only the advertiser can dispute booking %s", b.ID)
		}
		if b.Status.IsTerminal() || b.Status == bookings.StatusDisputed {
			return errs.InvalidTransition("booking %s is %s and cannot be disputed", b.ID, b.Status)
		}

		proof, err := s.Proofs.Find(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if proofOnly && (proof == nil || !proof.Status.InReview()) {
			return errs.InvalidTransition("there is no proof under review for booking %s", b.ID)
		}

		var open int64
		if err := tx.Model(&BookingDispute{}).
			Where("booking_id = ? AND status = ?", b.ID, StatusOpen).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return errs.InvalidTransition("booking %s already has an open dispute", b.ID)
		}

		proofPrev, err := s.Proofs.Freeze(ctx, tx, b.ID)
		if err != nil {
			return err
		}

		dispute = &BookingDispute{
			BookingID:         b.ID,
			RaisedByType:      string(act.Type),
			IssueType:         req.IssueType,
			Reason:            req.Reason,
			Photos:            datatypes.JSON(photos),
			Status:            StatusOpen,
			ResumeStatus:      string(b.Status),
			ProofResumeStatus: string(proofPrev),
		}
		if act.ID != uuid.Nil {
			id := act.ID
			dispute.RaisedByID = &id
		}
		if proof != nil {
			id := proof.ID
			dispute.ProofID = &id
		}
		if err := tx.Create(dispute).Error; err != nil {
			return errs.FromConstraint(err, "a dispute for this booking was opened concurrently")
		}

		if err := s.Machine.Transition(ctx, tx, b, bookings.StatusDisputed, act, bookings.TransitionOptions{
			Reason:   req.Reason,
			Message:  fmt.Sprintf("dispute opened: %s", req.IssueType),
			Metadata: map[string]interface{}{"dispute_id": dispute.ID.String()},
		}); err != nil {
			return err
		}
		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: b.ID,
			Category:  audit.CategoryDispute,
			Type:      audit.TypeWarning,
			Action:    "dispute_opened",
			ToStatus:  string(StatusOpen),
			Actor:     act,
			Message:   req.Reason,
			Metadata: map[string]interface{}{
				"dispute_id":    dispute.ID.String(),
				"issue_type":    string(req.IssueType),
				"resume_status": dispute.ResumeStatus,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// Resolve closes an open dispute with the admin's chosen action.
func (s *Service) Resolve(ctx context.Context, act actor.Actor, disputeID uuid.UUID, req ResolveRequest) (*BookingDispute, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if !act.IsAdmin() {
		return nil, errs.Forbidden("only admins can resolve disputes")
	}
	dispute, err := s.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	var (
		refunds []payments.Refund
		stage   *payouts.Payout
	)
	err = bookings.WithLock(ctx, s.DB, dispute.BookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if err := tx.Where("id = ?", disputeID).First(dispute).Error; err != nil {
			return err
		}
		if dispute.Status != StatusOpen {
			return errs.InvalidTransition("dispute %s is already %s", dispute.ID, dispute.Status)
		}
		if b.Status != bookings.StatusDisputed {
			return errs.InvalidTransition("booking %s is %s, expected DISPUTED", b.ID, b.Status)
		}

		var err error
		switch req.Action {
		case ActionReinstate:
			err = s.reinstate(ctx, tx, b, dispute, act, req.Notes)
		case ActionRefund:
			refunds, err = s.refund(ctx, tx, b, req, act)
		case ActionRejectDispute:
			stage, err = s.rejectDispute(ctx, tx, b, dispute, act, req.Notes)
		}
		if err != nil {
			return err
		}

		var refunded int64
		for _, r := range refunds {
			refunded += r.Amount
		}
		now := s.Clock.Now()
		adminID := act.ID
		result := tx.Model(&BookingDispute{}).
			Where("id = ? AND status = ?", dispute.ID, StatusOpen).
			Updates(map[string]interface{}{
				"status":            StatusResolved,
				"resolution_action": req.Action,
				"resolution_notes":  req.Notes,
				"refund_amount":     refunded,
				"resolved_by_id":    adminID,
				"resolved_at":       now,
				"updated_at":        now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errs.RaceLost("dispute %s was resolved concurrently", dispute.ID)
		}
		dispute.Status = StatusResolved
		dispute.ResolutionAction = req.Action
		dispute.ResolutionNotes = req.Notes
		dispute.RefundAmount = refunded
		dispute.ResolvedByID = &adminID
		dispute.ResolvedAt = &now

		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID:  b.ID,
			Category:   audit.CategoryDispute,
			Type:       audit.TypeSuccess,
			Action:     "dispute_resolved",
			FromStatus: string(StatusOpen),
			ToStatus:   string(StatusResolved),
			Actor:      act,
			Message:    fmt.Sprintf("dispute resolved with %s: %s", req.Action, req.Notes),
			Metadata: map[string]interface{}{
				"dispute_id":     dispute.ID.String(),
				"action":         string(req.Action),
				"booking_status": string(b.Status),
				"refund_amount":  refunded,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(refunds) > 0 {
		if _, err := s.Payments.ExecuteRefunds(ctx, refunds, act); err != nil {
			s.Logger.WithError(err).Error("dispute refund execution failed",
				"dispute_id", dispute.ID.String(), "booking_id", dispute.BookingID.String())
		}
	}
	if stage != nil {
		if _, err := s.Payouts.AttemptFirst(ctx, stage.ID); err != nil {
			s.Logger.WithError(err).Warn("first payout attempt deferred to its job",
				"booking_id", stage.BookingID.String())
		}
	}
	return dispute, nil
}

// reinstate puts the booking back where it was and restarts the timers the
// dispute cancelled.
func (s *Service) reinstate(ctx context.Context, tx *gorm.DB, b *bookings.Booking, d *BookingDispute, act actor.Actor, notes string) error {
	resume := bookings.Status(d.ResumeStatus)
	if err := s.Machine.Resume(ctx, tx, b, resume, act, bookings.TransitionOptions{
		Message: "dispute dismissed, booking reinstated: " + notes,
	}); err != nil {
		return err
	}
	if d.ProofResumeStatus != "" {
		if _, err := s.Proofs.Restore(ctx, tx, b.ID); err != nil {
			return err
		}
	}
	switch resume {
	case bookings.StatusVerified:
		if err := s.Proofs.ScheduleCompletion(ctx, tx, b); err != nil {
			return err
		}
	case bookings.StatusPendingBalance:
		if err := s.Payments.ScheduleBalanceCharge(ctx, tx, b); err != nil {
			return err
		}
	}
	return s.Payouts.Reschedule(ctx, tx, b.ID)
}

// refund cancels the booking and reserves the refund; the processor is
// called after commit.
func (s *Service) refund(ctx context.Context, tx *gorm.DB, b *bookings.Booking, req ResolveRequest, act actor.Actor) ([]payments.Refund, error) {
	refunds, err := s.Payments.ReserveRefund(ctx, tx, b, req.RefundAmount, "dispute: "+req.Notes, act)
	if err != nil {
		return nil, err
	}
	if err := s.Machine.Resume(ctx, tx, b, bookings.StatusCancelled, act, bookings.TransitionOptions{
		Reason:  req.Notes,
		Message: "dispute upheld, booking cancelled",
	}); err != nil {
		return nil, err
	}
	if _, err := s.Payouts.CancelOpen(ctx, tx, b.ID, reasonBookingCancelled); err != nil {
		return nil, err
	}
	if err := s.Proofs.RejectLocked(ctx, tx, b.ID, req.Notes, act); err != nil {
		return nil, err
	}
	return refunds, nil
}

// rejectDispute lets the proof stand: it is approved if it was not already
// and the booking advances as after a normal approval. Without a proof the
// booking is simply reinstated.
func (s *Service) rejectDispute(ctx context.Context, tx *gorm.DB, b *bookings.Booking, d *BookingDispute, act actor.Actor, notes string) (*payouts.Payout, error) {
	proof, err := s.Proofs.Find(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, s.reinstate(ctx, tx, b, d, act, notes)
	}
	stage, err := s.Proofs.ApproveLocked(ctx, tx, b, proof, act)
	if err != nil {
		return nil, err
	}
	if err := s.Payouts.Reschedule(ctx, tx, b.ID); err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*BookingDispute, error) {
	var d BookingDispute
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("dispute %s not found", id)
		}
		return nil, err
	}
	return &d, nil
}

// ListByBooking returns the disputes of a booking to its participants.
func (s *Service) ListByBooking(ctx context.Context, act actor.Actor, bookingID uuid.UUID) ([]BookingDispute, error) {
	var b bookings.Booking
	if err := s.DB.WithContext(ctx).Where("id = ?", bookingID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", bookingID)
		}
		return nil, err
	}
	if !b.CanView(act) {
		return nil, errs.Forbidden("not a participant of booking %s", bookingID)
	}
	var list []BookingDispute
	err := s.DB.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at DESC").Find(&list).Error
	return list, err
}
