package availability

import (
	"context"
	"fmt"
	"time"

	"adspace/internal/shared/clock"
	"adspace/internal/spaces"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConflictKind string

const (
	ConflictBooking ConflictKind = "booking"
	ConflictBlocked ConflictKind = "blocked"
)

type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	ID        uuid.UUID    `json:"id"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    string       `json:"status,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

type Result struct {
	Available bool       `json:"available"`
	Reason    string     `json:"reason,omitempty"`
	Days      int        `json:"days"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// BookingFinder lists bookings of a space that still hold their dates.
type BookingFinder interface {
	Overlapping(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID, r DateRange) ([]Conflict, error)
}

type Checker struct {
	db       *gorm.DB
	spaces   spaces.Repository
	bookings BookingFinder
	clock    clock.Clock
}

func NewChecker(db *gorm.DB, spaceRepo spaces.Repository, bookings BookingFinder, clk clock.Clock) *Checker {
	return &Checker{db: db, spaces: spaceRepo, bookings: bookings, clock: clk}
}

// Check answers whether the space can be booked for r right now.
func (c *Checker) Check(ctx context.Context, spaceID uuid.UUID, r DateRange) (*Result, error) {
	space, err := c.spaces.GetByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return c.Evaluate(ctx, c.db, space, r)
}

// Evaluate runs every rule against space using tx, so booking creation can
// re-check while it holds the space lock.
func (c *Checker) Evaluate(ctx context.Context, tx *gorm.DB, space *spaces.Space, r DateRange) (*Result, error) {
	result := &Result{Days: r.Days()}

	if reason := c.staticReason(space, r); reason != "" {
		result.Reason = reason
		return result, nil
	}

	booked, err := c.bookings.Overlapping(ctx, tx, space.ID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to load overlapping bookings: %w", err)
	}
	result.Conflicts = append(result.Conflicts, booked...)

	blocked, err := c.spaces.BlockedOverlapping(ctx, tx, space.ID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocked dates: %w", err)
	}
	for _, b := range blocked {
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:      ConflictBlocked,
			ID:        b.ID,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Reason:    b.Reason,
		})
	}

	switch {
	case len(booked) > 0:
		result.Reason = "dates overlap an existing booking"
	case len(blocked) > 0:
		result.Reason = "dates are blocked by the owner"
	default:
		result.Available = true
	}
	return result, nil
}

func (c *Checker) staticReason(space *spaces.Space, r DateRange) string {
	if !space.IsBookable() {
		return fmt.Sprintf("space is %s", space.Status)
	}
	today := StartOfDay(c.clock.Now())
	if r.Start.Before(today) {
		return "start date is in the past"
	}
	if space.AvailableFrom != nil && r.Start.Before(StartOfDay(*space.AvailableFrom)) {
		return "start date is before the space's availability window"
	}
	if space.AvailableTo != nil && r.End.After(StartOfDay(*space.AvailableTo)) {
		return "end date is after the space's availability window"
	}
	days := r.Days()
	if space.MinDurationDays > 0 && days < space.MinDurationDays {
		return fmt.Sprintf("minimum booking is %d days", space.MinDurationDays)
	}
	if space.MaxDurationDays > 0 && days > space.MaxDurationDays {
		return fmt.Sprintf("maximum booking is %d days", space.MaxDurationDays)
	}
	return ""
}
