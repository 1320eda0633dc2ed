package availability_test

import (
	"context"
	"testing"
	"time"

	"adspace/internal/availability"
	"adspace/internal/bookings"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"
	"adspace/internal/spaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockRequest(from, to int) availability.BlockRequest {
	return availability.BlockRequest{
		StartDate: testutil.Day(from),
		EndDate:   testutil.Day(to),
		Reason:    "panel maintenance",
	}
}

func TestBlockDatesStopsNewBookings(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEngine(t)
	space := env.Space(t)
	owner := actor.Owner(space.OwnerID)

	blocked, err := env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(12, 14))
	require.NoError(t, err)
	assert.True(t, blocked.StartDate.Equal(at(12, 0)))
	assert.True(t, blocked.EndDate.Equal(at(14, 0)))

	campaign := env.Campaign(t)
	_, err = env.Bookings.Create(ctx, actor.Advertiser(campaign.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: campaign.ID.String(),
		StartDate:  testutil.Day(10),
		EndDate:    testutil.Day(12),
	})
	assert.Equal(t, errs.KindDateConflict, errs.KindOf(err))

	cal, err := env.Calendar.Calendar(ctx, space.ID, dates(t, 0, 30))
	require.NoError(t, err)
	require.Len(t, cal.Blocked, 1)
	assert.Equal(t, blocked.ID, cal.Blocked[0].ID)

	require.NoError(t, env.Blocks.UnblockDates(ctx, owner, space.ID, blocked.ID))

	b := env.Book(t, space, campaign, 10, 12)
	assert.Equal(t, bookings.StatusPendingApproval, b.Status)

	cal, err = env.Calendar.Calendar(ctx, space.ID, dates(t, 0, 30))
	require.NoError(t, err)
	assert.Empty(t, cal.Blocked)
}

func TestBlockDatesRejectsHeldBooking(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEngine(t)
	space := env.Space(t)
	owner := actor.Owner(space.OwnerID)
	campaign := env.Campaign(t)
	held := env.Book(t, space, campaign, 10, 12)

	_, bookingErr := env.Bookings.Create(ctx, actor.Advertiser(campaign.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: campaign.ID.String(),
		StartDate:  testutil.Day(12),
		EndDate:    testutil.Day(13),
	})
	require.Error(t, bookingErr)

	_, err := env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(12, 14))
	require.Error(t, err)
	assert.Equal(t, errs.KindOf(bookingErr), errs.KindOf(err))
	assert.Equal(t, errs.KindDateConflict, errs.KindOf(err))

	// The day after the booking is free to block.
	_, err = env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(13, 14))
	require.NoError(t, err)

	// A released booking no longer holds its days.
	_, err = env.Bookings.Reject(ctx, owner, held.ID, bookings.ReasonRequest{Reason: "not a fit"})
	require.NoError(t, err)
	_, err = env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(10, 12))
	require.NoError(t, err)
}

func TestBlockDatesOwnership(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEngine(t)
	space := env.Space(t)

	_, err := env.Blocks.BlockDates(ctx, actor.Owner(uuid.New()), space.ID, blockRequest(10, 11))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = env.Blocks.BlockDates(ctx, actor.Advertiser(space.OwnerID), space.ID, blockRequest(10, 11))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	blocked, err := env.Blocks.BlockDates(ctx, actor.Admin(uuid.New()), space.ID, blockRequest(10, 11))
	require.NoError(t, err)

	err = env.Blocks.UnblockDates(ctx, actor.Owner(uuid.New()), space.ID, blocked.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	require.NoError(t, env.Blocks.UnblockDates(ctx, actor.Owner(space.OwnerID), space.ID, blocked.ID))
	err = env.Blocks.UnblockDates(ctx, actor.Owner(space.OwnerID), space.ID, blocked.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestBlockDatesValidation(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEngine(t)
	space := env.Space(t)
	owner := actor.Owner(space.OwnerID)

	_, err := env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(-2, 1))
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(14, 12))
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = env.Blocks.BlockDates(ctx, owner, uuid.New(), blockRequest(10, 12))
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	// Blocks of another space cannot be released through this one.
	other := env.Space(t, func(s *spaces.Space) { s.OwnerID = space.OwnerID })
	blocked, err := env.Blocks.BlockDates(ctx, owner, other.ID, blockRequest(10, 12))
	require.NoError(t, err)
	err = env.Blocks.UnblockDates(ctx, owner, space.ID, blocked.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	env.Clock.Advance(24 * time.Hour)
	_, err = env.Blocks.BlockDates(ctx, owner, space.ID, blockRequest(0, 0))
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
