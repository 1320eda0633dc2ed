package payouts

import (
	"context"
	"fmt"

	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/shared/actor"

	"gorm.io/gorm"
)

// TransferHandler runs the first transfer attempt of a scheduled payout.
// Transfer failures are recorded on the payout and do not fail the job.
func (s *Scheduler) TransferHandler(ctx context.Context, job jobs.ScheduledJob) error {
	var payload jobs.PayoutPayload
	if err := jobs.DecodePayload(job, &payload); err != nil {
		return err
	}
	_, err := s.AttemptFirst(ctx, payload.PayoutID)
	return err
}

// CompletionHandler closes out a VERIFIED booking once the service period has
// ended and releases the second payout stage.
func (s *Scheduler) CompletionHandler(ctx context.Context, job jobs.ScheduledJob) error {
	var stage2 *Payout
	err := bookings.WithLock(ctx, s.DB, job.BookingID, func(tx *gorm.DB, b *bookings.Booking) error {
		switch b.Status {
		case bookings.StatusVerified:
			if err := s.Machine.Transition(ctx, tx, b, bookings.StatusCompleted, actor.System(), bookings.TransitionOptions{
				Message: "service period ended",
			}); err != nil {
				return err
			}
		case bookings.StatusCompleted:
		default:
			s.Logger.Info("completion job skipped",
				"booking_id", b.ID.String(), "status", string(b.Status))
			return nil
		}

		p, created, err := s.CreateStage(ctx, tx, b, Stage2)
		if err != nil {
			return fmt.Errorf("failed to create final payout: %w", err)
		}
		if created {
			stage2 = p
		}
		return nil
	})
	if err != nil || stage2 == nil {
		return err
	}

	if _, err := s.AttemptFirst(ctx, stage2.ID); err != nil {
		s.Logger.WithError(err).Warn("final payout attempt deferred to its job",
			"booking_id", job.BookingID.String())
	}
	return nil
}
