package proofs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/payouts"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/errs"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Dependencies struct {
	DB       *gorm.DB
	Machine  *bookings.StateMachine
	Recorder *audit.Recorder
	Jobs     *jobs.Store
	Payouts  *payouts.Scheduler
	Clock    clock.Clock
	Logger   *logger.Logger
	Config   config.MarketplaceConfig
}

// Service runs proof submission and review, including the auto-approval timer.
type Service struct {
	Dependencies
	validate *validator.Validate
}

func NewService(deps Dependencies) *Service {
	return &Service{Dependencies: deps, validate: validator.New()}
}

// Submit stores the owner's proof and starts the review window. A booking
// that is CONFIRMED or PENDING_BALANCE is advanced through ACTIVE first.
func (s *Service) Submit(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req SubmitProofRequest) (*BookingProof, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	photos, err := json.Marshal(req.Photos)
	if err != nil {
		return nil, err
	}

	var proof *BookingProof
	err = bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if !b.IsOwner(act) && !act.Privileged() {
			return errs.Forbidden("only the space owner can submit proof")
		}
		existing, err := s.find(ctx, tx, b.ID)
		if err != nil {
			return err
		}

		switch b.Status {
		case bookings.StatusConfirmed, bookings.StatusPendingBalance:
			// The creative was never downloaded, so file_downloaded_at stays empty.
			if err := s.Machine.Transition(ctx, tx, b, bookings.StatusActive, act, bookings.TransitionOptions{
				Message:       "advanced on proof submission without a recorded creative download",
				Metadata:      map[string]interface{}{"auto_advanced": true, "trigger": "proof_submitted"},
				SkipTimestamp: true,
			}); err != nil {
				return err
			}
			fallthrough
		case bookings.StatusActive:
			if err := s.Machine.Transition(ctx, tx, b, bookings.StatusAwaitingProof, act, bookings.TransitionOptions{
				Message: "proof submitted",
			}); err != nil {
				return err
			}
		case bookings.StatusAwaitingProof:
			if existing != nil && !existing.Status.Resubmittable() {
				return errs.InvalidTransition("proof is %s and cannot be replaced", existing.Status)
			}
		default:
			return errs.InvalidTransition("proof cannot be submitted while the booking is %s", b.Status)
		}

		now := s.Clock.Now()
		proof = existing
		if proof == nil {
			proof = &BookingProof{BookingID: b.ID, Revision: 1}
		} else {
			proof.Revision++
		}
		proof.Photos = datatypes.JSON(photos)
		proof.Notes = req.Notes
		proof.Status = StatusPending
		proof.SubmittedAt = now
		proof.AutoApproveAt = now.Add(s.Config.ProofReviewWindow)
		proof.ReviewerType = ""
		proof.ReviewerID = nil
		proof.ReviewedAt = nil
		proof.ReviewNotes = ""
		if err := tx.Save(proof).Error; err != nil {
			return fmt.Errorf("failed to save proof: %w", err)
		}

		if err := s.startTimer(ctx, tx, proof); err != nil {
			return err
		}
		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: b.ID,
			Category:  audit.CategoryProof,
			Type:      audit.TypeInfo,
			Action:    "proof_submitted",
			ToStatus:  string(StatusPending),
			Actor:     act,
			Message:   fmt.Sprintf("proof revision %d submitted, auto-approval at %s", proof.Revision, proof.AutoApproveAt.Format("2006-01-02 15:04 MST")),
			Metadata:  map[string]interface{}{"proof_id": proof.ID.String(), "revision": proof.Revision},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// startTimer replaces any pending auto-approval with one at AutoApproveAt.
func (s *Service) startTimer(ctx context.Context, tx *gorm.DB, proof *BookingProof) error {
	if _, err := s.Jobs.CancelPending(ctx, tx, proof.BookingID, jobs.KindProofAutoApprove); err != nil {
		return err
	}
	return s.Jobs.Schedule(ctx, tx, proof.BookingID, jobs.KindProofAutoApprove, proof.AutoApproveAt, nil)
}

// MarkUnderReview is advisory: the advertiser signals they are looking at
// the proof. The auto-approval timer keeps running.
func (s *Service) MarkUnderReview(ctx context.Context, act actor.Actor, bookingID uuid.UUID) (*BookingProof, error) {
	var proof *BookingProof
	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if !b.IsAdvertiser(act) && !act.Privileged() {
			return errs.Forbidden("only the advertiser can review proof")
		}
		var err error
		if proof, err = s.mustFind(ctx, tx, b.ID); err != nil {
			return err
		}
		if proof.Status == StatusUnderReview {
			return nil
		}
		if err := s.move(ctx, tx, proof, StatusPending, StatusUnderReview); err != nil {
			return err
		}
		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID:  b.ID,
			Category:   audit.CategoryProof,
			Action:     "proof_under_review",
			FromStatus: string(StatusPending),
			ToStatus:   string(StatusUnderReview),
			Actor:      act,
			Message:    "advertiser is reviewing the proof",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// Approve accepts the proof. Approving an already approved proof returns it
// unchanged.
func (s *Service) Approve(ctx context.Context, act actor.Actor, bookingID uuid.UUID) (*BookingProof, error) {
	var (
		proof *BookingProof
		stage *payouts.Payout
	)
	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if !b.IsAdvertiser(act) && !act.Privileged() {
			return errs.Forbidden("only the advertiser can approve proof")
		}
		var err error
		if proof, err = s.mustFind(ctx, tx, b.ID); err != nil {
			return err
		}
		if proof.Status == StatusApproved {
			return nil
		}
		if !proof.Status.InReview() {
			return errs.InvalidTransition("proof is %s and cannot be approved", proof.Status)
		}
		stage, err = s.ApproveLocked(ctx, tx, b, proof, act)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.payFirstStage(ctx, stage)
	return proof, nil
}

// AutoApproveHandler approves a proof whose review window elapsed. It does
// nothing when the proof was already decided or the booking moved on.
func (s *Service) AutoApproveHandler(ctx context.Context, job jobs.ScheduledJob) error {
	var stage *payouts.Payout
	err := bookings.WithLock(ctx, s.DB, job.BookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if b.Status != bookings.StatusAwaitingProof {
			return nil
		}
		proof, err := s.find(ctx, tx, b.ID)
		if err != nil || proof == nil {
			return err
		}
		if !proof.Status.InReview() || s.Clock.Now().Before(proof.AutoApproveAt) {
			return nil
		}
		stage, err = s.ApproveLocked(ctx, tx, b, proof, actor.System())
		return err
	})
	if err != nil {
		return err
	}
	s.payFirstStage(ctx, stage)
	return nil
}

// ApproveLocked marks the proof APPROVED from whatever status it is in,
// advances the booking to VERIFIED (staged payouts) or COMPLETED, and creates
// the first payout stage. The caller holds the booking lock and attempts the
// returned payout after commit.
func (s *Service) ApproveLocked(ctx context.Context, tx *gorm.DB, b *bookings.Booking, proof *BookingProof, act actor.Actor) (*payouts.Payout, error) {
	from := proof.Status
	if from != StatusApproved {
		if err := s.review(ctx, tx, proof, []Status{from}, StatusApproved, act, ""); err != nil {
			return nil, err
		}
		if _, err := s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID:  b.ID,
			Category:   audit.CategoryProof,
			Type:       audit.TypeSuccess,
			Action:     "proof_approved",
			FromStatus: string(from),
			ToStatus:   string(StatusApproved),
			Actor:      act,
			Message:    fmt.Sprintf("proof revision %d approved", proof.Revision),
		}); err != nil {
			return nil, err
		}
	}

	target := bookings.StatusCompleted
	if payouts.Staged(s.Config.PayoutStage1Percent) {
		target = bookings.StatusVerified
	}
	opts := bookings.TransitionOptions{Message: "proof approved"}
	switch b.Status {
	case bookings.StatusDisputed:
		if err := s.Machine.Resume(ctx, tx, b, target, act, opts); err != nil {
			return nil, err
		}
	case target:
	default:
		if err := s.Machine.Transition(ctx, tx, b, target, act, opts); err != nil {
			return nil, err
		}
	}

	if b.Status == bookings.StatusVerified {
		if err := s.ScheduleCompletion(ctx, tx, b); err != nil {
			return nil, err
		}
	}
	p, created, err := s.Payouts.CreateStage(ctx, tx, b, payouts.Stage1)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return p, nil
}

// ScheduleCompletion enqueues the VERIFIED → COMPLETED move for the end of
// the service period plus the completion delay.
func (s *Service) ScheduleCompletion(ctx context.Context, tx *gorm.DB, b *bookings.Booking) error {
	due := b.EndOfService().Add(s.Config.CompletionDelay)
	if now := s.Clock.Now(); due.Before(now) {
		due = now
	}
	return s.Jobs.Schedule(ctx, tx, b.ID, jobs.KindBookingCompletion, due, nil)
}

func (s *Service) payFirstStage(ctx context.Context, p *payouts.Payout) {
	if p == nil {
		return
	}
	if _, err := s.Payouts.AttemptFirst(ctx, p.ID); err != nil {
		s.Logger.WithError(err).Warn("first payout attempt deferred to its job",
			"booking_id", p.BookingID.String(), "payout_id", p.ID.String())
	}
}

// RequestCorrection asks the owner to resubmit. The timer stops until then.
func (s *Service) RequestCorrection(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req ReviewRequest) (*BookingProof, error) {
	return s.decide(ctx, act, bookingID, req, StatusCorrectionRequested, "proof_correction_requested")
}

// Reject refuses the proof. The owner may still resubmit; the advertiser may
// open a dispute.
func (s *Service) Reject(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req ReviewRequest) (*BookingProof, error) {
	return s.decide(ctx, act, bookingID, req, StatusRejected, "proof_rejected")
}

func (s *Service) decide(ctx context.Context, act actor.Actor, bookingID uuid.UUID, req ReviewRequest, to Status, action string) (*BookingProof, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	var proof *BookingProof
	err := bookings.WithLock(ctx, s.DB, bookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		if !b.IsAdvertiser(act) && !act.Privileged() {
			return errs.Forbidden("only the advertiser can review proof")
		}
		if b.Status != bookings.StatusAwaitingProof {
			return errs.InvalidTransition("proof cannot be reviewed while the booking is %s", b.Status)
		}
		var err error
		if proof, err = s.mustFind(ctx, tx, b.ID); err != nil {
			return err
		}
		from := proof.Status
		if err := s.review(ctx, tx, proof, []Status{StatusPending, StatusUnderReview}, to, act, req.Reason); err != nil {
			return err
		}
		if _, err := s.Jobs.CancelPending(ctx, tx, b.ID, jobs.KindProofAutoApprove); err != nil {
			return err
		}
		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID:  b.ID,
			Category:   audit.CategoryProof,
			Type:       audit.TypeWarning,
			Action:     action,
			FromStatus: string(from),
			ToStatus:   string(to),
			Actor:      act,
			Message:    req.Reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}

// Get returns the proof of a booking to its participants.
func (s *Service) Get(ctx context.Context, act actor.Actor, bookingID uuid.UUID) (*BookingProof, error) {
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
	return s.mustFind(ctx, s.DB, bookingID)
}

// Freeze moves a proof that is under review to DISPUTED and returns its
// previous status, or "" when there is no proof to freeze.
func (s *Service) Freeze(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (Status, error) {
	proof, err := s.find(ctx, tx, bookingID)
	if err != nil || proof == nil {
		return "", err
	}
	if !proof.Status.InReview() {
		return "", nil
	}
	from := proof.Status
	return from, s.move(ctx, tx, proof, from, StatusDisputed)
}

// Restore returns a frozen proof to PENDING with a fresh review window.
func (s *Service) Restore(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*BookingProof, error) {
	proof, err := s.find(ctx, tx, bookingID)
	if err != nil || proof == nil || proof.Status != StatusDisputed {
		return nil, err
	}
	now := s.Clock.Now()
	proof.AutoApproveAt = now.Add(s.Config.ProofReviewWindow)
	result := tx.Model(&BookingProof{}).
		Where("id = ? AND status = ?", proof.ID, StatusDisputed).
		Updates(map[string]interface{}{
			"status":          StatusPending,
			"auto_approve_at": proof.AutoApproveAt,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	proof.Status = StatusPending
	return proof, s.startTimer(ctx, tx, proof)
}

// Find returns the booking's proof, or nil when none was submitted.
func (s *Service) Find(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*BookingProof, error) {
	return s.find(ctx, tx, bookingID)
}

// RejectLocked closes the proof as REJECTED without a review entry; used
// when a dispute ends in a refund.
func (s *Service) RejectLocked(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string, act actor.Actor) error {
	proof, err := s.find(ctx, tx, bookingID)
	if err != nil || proof == nil || proof.Status == StatusRejected {
		return err
	}
	return s.review(ctx, tx, proof, []Status{proof.Status}, StatusRejected, act, reason)
}

func (s *Service) move(ctx context.Context, tx *gorm.DB, proof *BookingProof, from, to Status) error {
	result := tx.WithContext(ctx).
		Model(&BookingProof{}).
		Where("id = ? AND status = ?", proof.ID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": s.Clock.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update proof: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.InvalidTransition("proof is %s, expected %s", proof.Status, from)
	}
	proof.Status = to
	return nil
}

// review is the conditional reviewer update shared by every decision.
func (s *Service) review(ctx context.Context, tx *gorm.DB, proof *BookingProof, from []Status, to Status, act actor.Actor, notes string) error {
	now := s.Clock.Now()
	var reviewerID *uuid.UUID
	if act.ID != uuid.Nil {
		id := act.ID
		reviewerID = &id
	}
	result := tx.WithContext(ctx).
		Model(&BookingProof{}).
		Where("id = ? AND status IN ?", proof.ID, from).
		Updates(map[string]interface{}{
			"status":        to,
			"reviewer_type": string(act.Type),
			"reviewer_id":   reviewerID,
			"reviewed_at":   now,
			"review_notes":  notes,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to review proof: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.RaceLost("proof %s was decided concurrently", proof.ID)
	}
	proof.Status = to
	proof.ReviewerType = string(act.Type)
	proof.ReviewerID = reviewerID
	proof.ReviewedAt = &now
	proof.ReviewNotes = notes
	return nil
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*BookingProof, error) {
	var proof BookingProof
	err := tx.WithContext(ctx).Where("booking_id = ?", bookingID).First(&proof).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	return &proof, nil
}

func (s *Service) mustFind(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*BookingProof, error) {
	proof, err := s.find(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, errs.NotFound("no proof submitted for booking %s", bookingID)
	}
	return proof, nil
}
