package admin

import (
	"context"
	"encoding/json"
	"errors"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/disputes"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/proofs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"
	"adspace/internal/shared/constants"
	"adspace/internal/shared/errs"
	"adspace/pkg/cache"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Dependencies struct {
	Repo     Repository
	Events   audit.Repository
	Bookings bookings.Service
	Proofs   *proofs.Service
	Disputes *disputes.Service
	Payments *payments.Service
	Payouts  *payouts.Scheduler
	Cache    cache.Service
	Clock    clock.Clock
	Logger   *logger.Logger
	Config   config.MarketplaceConfig
}

// Service exposes privileged overrides. Every override runs the same domain
// operation a participant would, with the admin as actor, and leaves an
// AdminAction with before and after snapshots.
type Service struct {
	Dependencies
	validate *validator.Validate
}

func NewService(deps Dependencies) *Service {
	return &Service{Dependencies: deps, validate: validator.New()}
}

// Meta identifies the admin request being audited.
type Meta struct {
	Actor actor.Actor
	IP    string
}

func (s *Service) ApproveBooking(ctx context.Context, m Meta, bookingID uuid.UUID) (*bookings.Booking, error) {
	var out *bookings.Booking
	err := s.override(ctx, m, "approve_booking", "booking", bookingID, bookingID, "", func() (err error) {
		out, err = s.Bookings.Approve(ctx, m.Actor, bookingID)
		return err
	})
	return out, err
}

func (s *Service) RejectBooking(ctx context.Context, m Meta, bookingID uuid.UUID, req NotesRequest) (*bookings.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	var out *bookings.Booking
	err := s.override(ctx, m, "reject_booking", "booking", bookingID, bookingID, req.Reason, func() (err error) {
		out, err = s.Bookings.Reject(ctx, m.Actor, bookingID, bookings.ReasonRequest{Reason: req.Reason})
		return err
	})
	return out, err
}

func (s *Service) IssueRefund(ctx context.Context, m Meta, bookingID uuid.UUID, req payments.RefundRequest) ([]payments.Refund, error) {
	var out []payments.Refund
	err := s.override(ctx, m, "issue_refund", "booking", bookingID, bookingID, req.Reason, func() (err error) {
		out, err = s.Payments.IssueRefund(ctx, bookingID, req, m.Actor)
		return err
	})
	return out, err
}

// RetryPayout returns the payout after the attempt; a failed transfer is
// reported on the record, not as an error.
func (s *Service) RetryPayout(ctx context.Context, m Meta, bookingID uuid.UUID) (*payouts.Payout, error) {
	var out *payouts.Payout
	err := s.override(ctx, m, "retry_payout", "booking", bookingID, bookingID, "", func() (err error) {
		out, err = s.Payouts.Retry(ctx, bookingID, m.Actor)
		return err
	})
	return out, err
}

// RetryRefunds settles refunds the processor never confirmed, reconciling by
// their stored idempotency keys first.
func (s *Service) RetryRefunds(ctx context.Context, m Meta, bookingID uuid.UUID) ([]payments.Refund, error) {
	var out []payments.Refund
	err := s.override(ctx, m, "retry_refund", "booking", bookingID, bookingID, "", func() (err error) {
		out, err = s.Payments.RetryRefunds(ctx, bookingID, m.Actor)
		return err
	})
	return out, err
}

func (s *Service) RetryBalanceCharge(ctx context.Context, m Meta, bookingID uuid.UUID) (*bookings.Booking, error) {
	var out *bookings.Booking
	err := s.override(ctx, m, "retry_balance_charge", "booking", bookingID, bookingID, "", func() (err error) {
		out, err = s.Payments.RetryBalanceCharge(ctx, bookingID, m.Actor)
		return err
	})
	return out, err
}

func (s *Service) ApproveProof(ctx context.Context, m Meta, bookingID uuid.UUID) (*proofs.BookingProof, error) {
	var out *proofs.BookingProof
	err := s.override(ctx, m, "approve_proof", "proof", bookingID, bookingID, "", func() (err error) {
		out, err = s.Proofs.Approve(ctx, m.Actor, bookingID)
		return err
	})
	return out, err
}

func (s *Service) RejectProof(ctx context.Context, m Meta, bookingID uuid.UUID, req NotesRequest) (*proofs.BookingProof, error) {
	var out *proofs.BookingProof
	err := s.override(ctx, m, "reject_proof", "proof", bookingID, bookingID, req.Reason, func() (err error) {
		out, err = s.Proofs.Reject(ctx, m.Actor, bookingID, proofs.ReviewRequest{Reason: req.Reason})
		return err
	})
	return out, err
}

func (s *Service) ResolveDispute(ctx context.Context, m Meta, disputeID uuid.UUID, req disputes.ResolveRequest) (*disputes.BookingDispute, error) {
	dispute, err := s.Disputes.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	var out *disputes.BookingDispute
	err = s.override(ctx, m, "resolve_dispute", "dispute", disputeID, dispute.BookingID, req.Notes, func() (err error) {
		out, err = s.Disputes.Resolve(ctx, m.Actor, disputeID, req)
		return err
	})
	return out, err
}

func (s *Service) override(ctx context.Context, m Meta, action, resourceType string, resourceID, bookingID uuid.UUID, notes string, fn func() error) error {
	if !m.Actor.IsAdmin() {
		return errs.Forbidden("admin role required")
	}
	before, err := s.snapshot(ctx, bookingID)
	if err != nil {
		return err
	}

	opErr := fn()

	after, err := s.snapshot(ctx, bookingID)
	if err != nil {
		s.Logger.WithError(err).Warn("failed to capture override snapshot", "booking_id", bookingID.String())
	}
	record := &AdminAction{
		AdminID:      m.Actor.ID,
		Action:       action,
		BookingID:    &bookingID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Before:       before,
		After:        after,
		Notes:        notes,
		Succeeded:    opErr == nil,
		IPAddress:    m.IP,
	}
	if opErr != nil {
		record.Error = opErr.Error()
	}
	if err := s.Repo.SaveAction(ctx, record); err != nil {
		s.Logger.WithError(err).Error("failed to record admin action", "action", action, "booking_id", bookingID.String())
	}
	s.Logger.LogAdminOverride(ctx, m.Actor.ID.String(), action, bookingID.String())

	if err := s.Cache.DeletePattern(ctx, constants.PATTERN_INVALIDATE_PAYMENT_FLOWS); err != nil {
		s.Logger.WithError(err).Warn("failed to invalidate payment flow cache")
	}
	return opErr
}

func (s *Service) snapshot(ctx context.Context, bookingID uuid.UUID) (datatypes.JSON, error) {
	snap, err := s.Repo.Snapshot(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", bookingID)
		}
		return nil, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Timeline returns the booking with its ordered payment-flow events.
func (s *Service) Timeline(ctx context.Context, bookingID uuid.UUID) (*Timeline, error) {
	snap, err := s.Repo.Snapshot(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", bookingID)
		}
		return nil, err
	}
	events, err := s.Events.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &Timeline{Booking: snap.Booking, Events: events}, nil
}

// Actions lists the overrides applied to a booking.
func (s *Service) Actions(ctx context.Context, bookingID uuid.UUID) ([]AdminAction, error) {
	return s.Repo.ListActions(ctx, bookingID)
}

// ListPaymentFlows is cached briefly; overrides invalidate it.
func (s *Service) ListPaymentFlows(ctx context.Context, q PaymentFlowQuery) (*PaymentFlowList, error) {
	pagination := bookings.NewPagination(q.Page, q.Limit, 0)
	q.Page, q.Limit = pagination.Page, pagination.Limit
	key := constants.BuildPaymentFlowsKey(q.Status, q.PayoutStatus, q.Search, q.Page, q.Limit)

	var list PaymentFlowList
	err := s.Cache.GetOrSet(ctx, key, constants.TTL_PAYMENT_FLOWS, &list, func() (interface{}, error) {
		now := s.Clock.Now()
		cutoffs := Cutoffs{
			Transfer: now.Add(-s.Config.StaleTransferAfter),
			Refund:   now.Add(-s.Config.RefundRetryAfter),
		}
		rows, total, err := s.Repo.ListFlows(ctx, q, cutoffs)
		if err != nil {
			return nil, err
		}
		summary, err := s.Repo.Summary(ctx, q, cutoffs)
		if err != nil {
			return nil, err
		}
		return &PaymentFlowList{
			Summary:    *summary,
			Rows:       rows,
			Pagination: bookings.NewPagination(q.Page, q.Limit, total),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}
