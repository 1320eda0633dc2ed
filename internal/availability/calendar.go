package availability

import (
	"context"
	"encoding/json"
	"time"

	"adspace/internal/audit"
	"adspace/internal/shared/constants"
	"adspace/pkg/cache"
	"adspace/pkg/logger"

	"github.com/google/uuid"
)

type Calendar struct {
	SpaceID uuid.UUID  `json:"space_id"`
	From    time.Time  `json:"from"`
	To      time.Time  `json:"to"`
	Booked  []Conflict `json:"booked"`
	Blocked []Conflict `json:"blocked"`
}

// CalendarService serves the read-only occupancy view of a space. It is
// advisory; bookings are always re-checked against the database.
type CalendarService struct {
	checker *Checker
	cache   cache.Service
}

func NewCalendarService(checker *Checker, cacheService cache.Service) *CalendarService {
	if cacheService == nil {
		cacheService = cache.NewNoop()
	}
	return &CalendarService{checker: checker, cache: cacheService}
}

func (s *CalendarService) Calendar(ctx context.Context, spaceID uuid.UUID, r DateRange) (*Calendar, error) {
	key := constants.BuildSpaceCalendarKey(spaceID.String(), r.Start, r.End)

	var cal Calendar
	err := s.cache.GetOrSet(ctx, key, constants.TTL_SPACE_CALENDAR, &cal, func() (interface{}, error) {
		return s.build(ctx, spaceID, r)
	})
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (s *CalendarService) build(ctx context.Context, spaceID uuid.UUID, r DateRange) (*Calendar, error) {
	if _, err := s.checker.spaces.GetByID(ctx, spaceID); err != nil {
		return nil, err
	}
	booked, err := s.checker.bookings.Overlapping(ctx, s.checker.db, spaceID, r)
	if err != nil {
		return nil, err
	}
	blocked, err := s.checker.spaces.BlockedOverlapping(ctx, nil, spaceID, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	cal := &Calendar{SpaceID: spaceID, From: r.Start, To: r.End, Booked: booked, Blocked: []Conflict{}}
	if cal.Booked == nil {
		cal.Booked = []Conflict{}
	}
	for _, b := range blocked {
		cal.Blocked = append(cal.Blocked, Conflict{
			Kind:      ConflictBlocked,
			ID:        b.ID,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Reason:    b.Reason,
		})
	}
	return cal, nil
}

// CalendarInvalidator drops cached calendars of spaces whose bookings changed.
type CalendarInvalidator struct {
	cache  cache.Service
	logger *logger.Logger
}

func NewCalendarInvalidator(cacheService cache.Service, log *logger.Logger) *CalendarInvalidator {
	return &CalendarInvalidator{cache: cacheService, logger: log}
}

func (i *CalendarInvalidator) Name() string { return "calendar-cache" }

func (i *CalendarInvalidator) Deliver(ctx context.Context, events []audit.TimelineEvent) error {
	seen := make(map[string]struct{})
	for _, e := range events {
		if e.Category != audit.CategoryBooking || len(e.Metadata) == 0 {
			continue
		}
		var meta struct {
			SpaceID string `json:"space_id"`
		}
		if err := json.Unmarshal(e.Metadata, &meta); err != nil || meta.SpaceID == "" {
			continue
		}
		if _, ok := seen[meta.SpaceID]; ok {
			continue
		}
		seen[meta.SpaceID] = struct{}{}
		if err := i.cache.DeletePattern(ctx, constants.PatternInvalidateSpaceCalendar(meta.SpaceID)); err != nil {
			// a stale calendar only costs a rejected booking attempt
			i.logger.WithError(err).Warn("failed to invalidate space calendar", "space_id", meta.SpaceID)
		}
	}
	return nil
}
