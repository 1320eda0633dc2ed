package bookings

import (
	"context"
	"fmt"
	"time"

	"adspace/internal/audit"
	"adspace/internal/jobs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/errs"
	"adspace/internal/spaces"
	"adspace/pkg/logger"

	"gorm.io/gorm"
)

// TransitionOptions carries the context recorded with a transition.
type TransitionOptions struct {
	Reason   string
	Message  string
	Metadata map[string]interface{}
	// SkipTimestamp leaves the target status's timestamp column unset.
	SkipTimestamp bool
}

// StateMachine applies booking status changes. Callers must hold the booking
// row lock (see WithLock) and pass the same transaction.
type StateMachine struct {
	recorder *audit.Recorder
	jobs     *jobs.Store
	spaces   spaces.Repository
	clock    clock.Clock
	logger   *logger.Logger
}

func NewStateMachine(recorder *audit.Recorder, jobStore *jobs.Store, spaceRepo spaces.Repository, clk clock.Clock, log *logger.Logger) *StateMachine {
	return &StateMachine{
		recorder: recorder,
		jobs:     jobStore,
		spaces:   spaceRepo,
		clock:    clk,
		logger:   log,
	}
}

// Transition moves b along a forward edge of the transition table.
func (m *StateMachine) Transition(ctx context.Context, tx *gorm.DB, b *Booking, to Status, act actor.Actor, opts TransitionOptions) error {
	if !CanTransition(b.Status, to) {
		return m.invalid(ctx, b, to, act)
	}
	return m.apply(ctx, tx, b, to, act, opts, "status_changed", !opts.SkipTimestamp)
}

// Resume moves a DISPUTED booking to the status chosen by dispute resolution.
func (m *StateMachine) Resume(ctx context.Context, tx *gorm.DB, b *Booking, to Status, act actor.Actor, opts TransitionOptions) error {
	if b.Status != StatusDisputed || !CanResume(to) {
		return m.invalid(ctx, b, to, act)
	}
	// resuming keeps the original timestamps of the pre-dispute status
	return m.apply(ctx, tx, b, to, act, opts, "dispute_resumed", to.IsTerminal())
}

func (m *StateMachine) invalid(ctx context.Context, b *Booking, to Status, act actor.Actor) error {
	m.logger.LogInvalidTransition(ctx, "booking", b.ID.String(), string(b.Status), string(to), act.String())
	return errs.InvalidTransition("booking %s cannot move from %s to %s", b.ID, b.Status, to)
}

func (m *StateMachine) apply(ctx context.Context, tx *gorm.DB, b *Booking, to Status, act actor.Actor, opts TransitionOptions, action string, stamp bool) error {
	from := b.Status
	now := m.clock.Now()

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if column := timestampColumn(to); column != "" && stamp {
		updates[column] = now
	}
	switch to {
	case StatusRejected:
		updates["rejection_reason"] = opts.Reason
	case StatusCancelled:
		updates["cancellation_reason"] = opts.Reason
	}

	result := tx.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND status = ?", b.ID, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update booking status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.RaceLost("booking %s changed status concurrently", b.ID)
	}

	b.Status = to
	b.UpdatedAt = now
	if stamp {
		stampInMemory(b, to, now, opts.Reason)
	}

	if err := m.cancelJobsOnEntry(ctx, tx, b, to); err != nil {
		return err
	}
	if to.IsTerminal() {
		if err := m.spaces.AdjustCounts(ctx, tx, b.SpaceID, 0, -1); err != nil {
			return fmt.Errorf("failed to update space counters: %w", err)
		}
	}

	metadata := map[string]interface{}{"space_id": b.SpaceID.String()}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	if opts.Reason != "" {
		metadata["reason"] = opts.Reason
	}
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Booking moved from %s to %s", from, to)
	}
	if _, err := m.recorder.Record(ctx, tx, audit.Entry{
		BookingID:  b.ID,
		Category:   audit.CategoryBooking,
		Type:       eventTypeFor(to),
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
		Actor:      act,
		Message:    message,
		Metadata:   metadata,
	}); err != nil {
		return err
	}

	m.logger.LogTransition(ctx, b.ID.String(), string(from), string(to), act.String())
	return nil
}

func (m *StateMachine) cancelJobsOnEntry(ctx context.Context, tx *gorm.DB, b *Booking, to Status) error {
	var err error
	switch to {
	case StatusDisputed, StatusCancelled, StatusRejected:
		_, err = m.jobs.CancelPending(ctx, tx, b.ID, jobs.LifecycleKinds...)
	case StatusVerified:
		_, err = m.jobs.CancelPending(ctx, tx, b.ID, jobs.KindProofAutoApprove)
	case StatusCompleted:
		_, err = m.jobs.CancelPending(ctx, tx, b.ID, jobs.KindProofAutoApprove, jobs.KindBookingCompletion, jobs.KindBalanceCharge)
	}
	return err
}

func timestampColumn(s Status) string {
	switch s {
	case StatusApproved:
		return "approved_at"
	case StatusRejected:
		return "rejected_at"
	case StatusCancelled:
		return "cancelled_at"
	case StatusConfirmed:
		return "confirmed_at"
	case StatusActive:
		return "file_downloaded_at"
	case StatusAwaitingProof:
		return "proof_submitted_at"
	case StatusVerified:
		return "verified_at"
	case StatusCompleted:
		return "completed_at"
	case StatusDisputed:
		return "disputed_at"
	}
	return ""
}

func stampInMemory(b *Booking, s Status, now time.Time, reason string) {
	t := now
	switch s {
	case StatusApproved:
		b.ApprovedAt = &t
	case StatusRejected:
		b.RejectedAt = &t
		b.RejectionReason = reason
	case StatusCancelled:
		b.CancelledAt = &t
		b.CancellationReason = reason
	case StatusConfirmed:
		b.ConfirmedAt = &t
	case StatusActive:
		b.FileDownloadedAt = &t
	case StatusAwaitingProof:
		b.ProofSubmittedAt = &t
	case StatusVerified:
		b.VerifiedAt = &t
	case StatusCompleted:
		b.CompletedAt = &t
	case StatusDisputed:
		b.DisputedAt = &t
	}
}

func eventTypeFor(s Status) audit.EventType {
	switch s {
	case StatusApproved, StatusConfirmed, StatusVerified, StatusCompleted:
		return audit.TypeSuccess
	case StatusCancelled, StatusRejected, StatusDisputed:
		return audit.TypeWarning
	}
	return audit.TypeInfo
}
