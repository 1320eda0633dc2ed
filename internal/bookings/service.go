package bookings

import (
	"context"
	"fmt"

	"adspace/internal/audit"
	"adspace/internal/availability"
	"adspace/internal/campaigns"
	"adspace/internal/pricing"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/spaces"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, act actor.Actor, req CreateBookingRequest) (*Booking, error)
	Get(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error)
	Status(ctx context.Context, act actor.Actor, id uuid.UUID) (*StatusResponse, error)
	ListByCampaign(ctx context.Context, act actor.Actor, campaignID uuid.UUID, query ListQuery) (*BookingList, error)
	Approve(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error)
	Reject(ctx context.Context, act actor.Actor, id uuid.UUID, req ReasonRequest) (*Booking, error)
	Decline(ctx context.Context, act actor.Actor, id uuid.UUID, req ReasonRequest) (*Booking, error)
	MarkFileDownloaded(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error)
}

type Dependencies struct {
	DB         *gorm.DB
	Repo       Repository
	Campaigns  campaigns.Repository
	Spaces     spaces.Repository
	Checker    *availability.Checker
	Calculator *pricing.Calculator
	Machine    *StateMachine
	Recorder   *audit.Recorder
	Logger     *logger.Logger
}

type service struct {
	Dependencies
	validate *validator.Validate
}

func NewService(deps Dependencies) Service {
	return &service{Dependencies: deps, validate: validator.New()}
}

func (s *service) Create(ctx context.Context, act actor.Actor, req CreateBookingRequest) (*Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if act.Type != actor.TypeAdvertiser && !act.Privileged() {
		return nil, errs.Forbidden("only advertisers can create bookings")
	}
	dates, err := availability.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	spaceID := uuid.MustParse(req.SpaceID)
	campaignID := uuid.MustParse(req.CampaignID)

	var booking *Booking
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := s.Campaigns.GetByID(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if !act.Privileged() && campaign.AdvertiserID != act.ID {
			return errs.Forbidden("campaign belongs to another advertiser")
		}
		if !campaign.AcceptsBookings() {
			return errs.Validation("campaign is %s", campaign.Status)
		}

		// Holding the space lock serializes creations for this space, so
		// the re-check below sees every committed competitor.
		space, err := s.Spaces.LockForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		result, err := s.Checker.Evaluate(ctx, tx, space, dates)
		if err != nil {
			return err
		}
		if !result.Available {
			return errs.DateConflict("%s", result.Reason)
		}

		depositPercent := space.DepositPercent
		if campaign.DepositPercent != nil {
			depositPercent = *campaign.DepositPercent
		}
		quote, err := s.Calculator.Quote(pricing.Input{
			PricePerDay:     space.PricePerDay,
			InstallationFee: space.InstallationFee,
			Days:            dates.Days(),
			DepositPercent:  depositPercent,
		})
		if err != nil {
			return err
		}

		booking = &Booking{
			SpaceID:         space.ID,
			CampaignID:      campaign.ID,
			AdvertiserID:    campaign.AdvertiserID,
			OwnerID:         space.OwnerID,
			StartDate:       dates.Start,
			EndDate:         dates.End,
			PricePerDay:     quote.PricePerDay,
			InstallationFee: quote.InstallationFee,
			DurationDays:    quote.DurationDays,
			RentalCost:      quote.RentalCost,
			Subtotal:        quote.Subtotal,
			PlatformFee:     quote.PlatformFee,
			ProcessorFee:    quote.ProcessorFee,
			Total:           quote.Total,
			Currency:        space.Currency,
			PaymentPolicy:   quote.Policy,
			DepositAmount:   quote.DepositAmount,
			BalanceAmount:   quote.BalanceAmount,
			PayoutAmount:    quote.PayoutAmount,
			Status:          StatusPendingApproval,
			Notes:           req.Notes,
		}
		if err := s.Repo.Create(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.Spaces.AdjustCounts(ctx, tx, space.ID, 1, 1); err != nil {
			return fmt.Errorf("failed to update space counters: %w", err)
		}

		_, err = s.Recorder.Record(ctx, tx, audit.Entry{
			BookingID: booking.ID,
			Category:  audit.CategoryBooking,
			Type:      audit.TypeInfo,
			Action:    "created",
			ToStatus:  string(StatusPendingApproval),
			Actor:     act,
			Message:   fmt.Sprintf("Booking requested for %d days", quote.DurationDays),
			Metadata: map[string]interface{}{
				"space_id":       space.ID.String(),
				"total":          quote.Total,
				"payment_policy": string(quote.Policy),
			},
		})
		return err
	})
	if err != nil {
		return nil, errs.FromConstraint(err, "dates were taken by a concurrent booking")
	}

	s.Logger.LogBookingCreated(ctx, booking.ID.String(), booking.SpaceID.String(), act.String())
	return booking, nil
}

func (s *service) Get(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error) {
	booking, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.CanView(act) {
		return nil, errs.Forbidden("booking belongs to another account")
	}
	return booking, nil
}

func (s *service) Status(ctx context.Context, act actor.Actor, id uuid.UUID) (*StatusResponse, error) {
	booking, err := s.Get(ctx, act, id)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		BookingID:          booking.ID,
		Status:             booking.Status,
		NextStatuses:       NextStatuses(booking.Status),
		BalanceChargeError: booking.BalanceChargeError,
		UpdatedAt:          booking.UpdatedAt,
	}, nil
}

func (s *service) ListByCampaign(ctx context.Context, act actor.Actor, campaignID uuid.UUID, query ListQuery) (*BookingList, error) {
	campaign, err := s.Campaigns.GetByID(ctx, nil, campaignID)
	if err != nil {
		return nil, err
	}
	if !act.Privileged() && campaign.AdvertiserID != act.ID {
		return nil, errs.Forbidden("campaign belongs to another advertiser")
	}
	if query.Status != "" && !Status(query.Status).IsValid() {
		return nil, errs.Validation("unknown status %q", query.Status)
	}

	bookings, total, err := s.Repo.ListByCampaign(ctx, campaignID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return &BookingList{
		Bookings:   bookings,
		Pagination: NewPagination(query.Page, query.Limit, total),
	}, nil
}

// Approve is idempotent: approving an APPROVED booking returns it unchanged.
func (s *service) Approve(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error) {
	var out *Booking
	err := WithLock(ctx, s.DB, id, func(tx *gorm.DB, b *Booking) error {
		if !b.IsOwner(act) && !act.Privileged() {
			return errs.Forbidden("only the space owner can approve this booking")
		}
		out = b
		if b.Status == StatusApproved {
			return nil
		}
		return s.Machine.Transition(ctx, tx, b, StatusApproved, act, TransitionOptions{
			Message: "Booking approved by " + string(act.Type),
		})
	})
	return out, err
}

func (s *service) Reject(ctx context.Context, act actor.Actor, id uuid.UUID, req ReasonRequest) (*Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	var out *Booking
	err := WithLock(ctx, s.DB, id, func(tx *gorm.DB, b *Booking) error {
		if !b.IsOwner(act) && !act.Privileged() {
			return errs.Forbidden("only the space owner can reject this booking")
		}
		out = b
		return s.Machine.Transition(ctx, tx, b, StatusRejected, act, TransitionOptions{
			Reason:  req.Reason,
			Message: "Booking rejected: " + req.Reason,
		})
	})
	return out, err
}

// Decline lets the advertiser withdraw a booking before paying for it.
func (s *service) Decline(ctx context.Context, act actor.Actor, id uuid.UUID, req ReasonRequest) (*Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	var out *Booking
	err := WithLock(ctx, s.DB, id, func(tx *gorm.DB, b *Booking) error {
		if !b.IsAdvertiser(act) && !act.Privileged() {
			return errs.Forbidden("only the advertiser can decline this booking")
		}
		if b.Status != StatusApproved && b.Status != StatusPendingApproval {
			return s.Machine.invalid(ctx, b, StatusCancelled, act)
		}
		out = b
		return s.Machine.Transition(ctx, tx, b, StatusCancelled, act, TransitionOptions{
			Reason:  req.Reason,
			Message: "Booking declined by advertiser: " + req.Reason,
		})
	})
	return out, err
}

// MarkFileDownloaded records that the owner fetched the creative. Repeating it
// once the booking is ACTIVE is a no-op.
func (s *service) MarkFileDownloaded(ctx context.Context, act actor.Actor, id uuid.UUID) (*Booking, error) {
	var out *Booking
	err := WithLock(ctx, s.DB, id, func(tx *gorm.DB, b *Booking) error {
		if !b.IsOwner(act) && !act.Privileged() {
			return errs.Forbidden("only the space owner can download the creative")
		}
		out = b
		if b.Status == StatusActive {
			return nil
		}
		return s.Machine.Transition(ctx, tx, b, StatusActive, act, TransitionOptions{
			Message: "Creative downloaded, installation started",
		})
	})
	return out, err
}
