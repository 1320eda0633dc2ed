package availability

import (
	"context"
	"time"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/constants"
	"adspace/internal/shared/errs"
	"adspace/internal/spaces"
	"adspace/pkg/cache"
	"adspace/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BlockRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Reason    string `json:"reason" validate:"max=200"`
}

// BlockService lets owners take whole days of their space off the market.
type BlockService struct {
	checker  *Checker
	cache    cache.Service
	logger   *logger.Logger
	validate *validator.Validate
}

func NewBlockService(checker *Checker, cacheService cache.Service, log *logger.Logger) *BlockService {
	if cacheService == nil {
		cacheService = cache.NewNoop()
	}
	return &BlockService{checker: checker, cache: cacheService, logger: log, validate: validator.New()}
}

// BlockDates blocks req's days on the space. Days still held by a booking
// cannot be blocked.
func (s *BlockService) BlockDates(ctx context.Context, act actor.Actor, spaceID uuid.UUID, req BlockRequest) (*spaces.BlockedDate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	r, err := ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if r.Start.Before(StartOfDay(s.checker.clock.Now())) {
		return nil, errs.Validation("cannot block days in the past")
	}

	var blocked *spaces.BlockedDate
	err = s.checker.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Same lock booking creation takes, so neither side misses the other.
		space, err := s.checker.spaces.LockForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(act, space); err != nil {
			return err
		}

		booked, err := s.checker.bookings.Overlapping(ctx, tx, spaceID, r)
		if err != nil {
			return err
		}
		if len(booked) > 0 {
			return errs.DateConflict("dates overlap %d existing booking(s)", len(booked))
		}

		blocked = &spaces.BlockedDate{
			SpaceID:   spaceID,
			StartDate: r.Start,
			EndDate:   r.End,
			Reason:    req.Reason,
		}
		return s.checker.spaces.Block(ctx, tx, blocked)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, spaceID)
	s.logger.WithActor(act.String()).Info("dates blocked",
		"space_id", spaceID.String(),
		"start_date", r.Start.Format(time.DateOnly),
		"end_date", r.End.Format(time.DateOnly),
	)
	return blocked, nil
}

// UnblockDates releases a blocked range of the space.
func (s *BlockService) UnblockDates(ctx context.Context, act actor.Actor, spaceID, blockID uuid.UUID) error {
	err := s.checker.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		space, err := s.checker.spaces.LockForUpdate(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(act, space); err != nil {
			return err
		}
		return s.checker.spaces.Unblock(ctx, tx, spaceID, blockID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, spaceID)
	s.logger.WithActor(act.String()).Info("dates unblocked", "space_id", spaceID.String(), "block_id", blockID.String())
	return nil
}

func (s *BlockService) invalidate(ctx context.Context, spaceID uuid.UUID) {
	if err := s.cache.DeletePattern(ctx, constants.PatternInvalidateSpaceCalendar(spaceID.String())); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate space calendar", "space_id", spaceID.String())
	}
}

func authorizeOwner(act actor.Actor, space *spaces.Space) error {
	if act.Privileged() {
		return nil
	}
	if act.Type != actor.TypeOwner || act.ID != space.OwnerID {
		return errs.Forbidden("only the space owner can change blocked dates")
	}
	return nil
}
