package bookings_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"adspace/internal/audit"
	"adspace/internal/availability"
	"adspace/internal/bookings"
	"adspace/internal/campaigns"
	"adspace/internal/pricing"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingPricesThreeDays(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)

	b := env.Book(t, space, env.Campaign(t), 10, 12)

	assert.Equal(t, bookings.StatusPendingApproval, b.Status)
	assert.Equal(t, 3, b.DurationDays)
	assert.Equal(t, int64(30000), b.RentalCost)
	assert.Equal(t, int64(30000), b.Subtotal)
	assert.Equal(t, int64(3000), b.PlatformFee)
	assert.Equal(t, env.Sandbox.EstimateFee(33000), b.ProcessorFee)
	assert.Equal(t, b.Subtotal+b.PlatformFee+b.ProcessorFee, b.Total)
	assert.Equal(t, pricing.PolicyFull, b.PaymentPolicy)
	assert.Equal(t, b.Total, b.DepositAmount)
	assert.Equal(t, int64(0), b.BalanceAmount)
	assert.Equal(t, b.Subtotal, b.PayoutAmount)

	events, err := env.Events.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "created", events[0].Action)
	assert.Equal(t, audit.CategoryBooking, events[0].Category)
}

func TestCreateBookingCollisionLeavesNoRow(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	env.Book(t, space, env.Campaign(t), 10, 12)

	c := env.Campaign(t)
	_, err := env.Bookings.Create(context.Background(), actor.Advertiser(c.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: c.ID.String(),
		StartDate:  testutil.Day(12),
		EndDate:    testutil.Day(14),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindDateConflict, errs.KindOf(err))

	var count int64
	require.NoError(t, env.DB.Model(&bookings.Booking{}).Where("space_id = ?", space.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConcurrentRequestsForSameDatesYieldOneBooking(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)

	const n = 5
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c := env.Campaign(t)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.Bookings.Create(context.Background(), actor.Advertiser(c.AdvertiserID), bookings.CreateBookingRequest{
				SpaceID:    space.ID.String(),
				CampaignID: c.ID.String(),
				StartDate:  testutil.Day(20),
				EndDate:    testutil.Day(22),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Contains(t, []errs.Kind{errs.KindDateConflict, errs.KindRaceLost}, errs.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
}

func TestRejectedBookingReleasesDates(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	b := env.Book(t, space, env.Campaign(t), 10, 12)

	rejected, err := env.Bookings.Reject(context.Background(), actor.Owner(space.OwnerID), b.ID, bookings.ReasonRequest{Reason: "artwork not allowed"})
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusRejected, rejected.Status)

	again := env.Book(t, space, env.Campaign(t), 10, 12)
	assert.Equal(t, bookings.StatusPendingApproval, again.Status)
}

func TestPastStartDateIsRejected(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	c := env.Campaign(t)

	_, err := env.Bookings.Create(context.Background(), actor.Advertiser(c.AdvertiserID), bookings.CreateBookingRequest{
		SpaceID:    space.ID.String(),
		CampaignID: c.ID.String(),
		StartDate:  testutil.Day(-1),
		EndDate:    testutil.Day(2),
	})
	assert.Equal(t, errs.KindDateConflict, errs.KindOf(err))
}

func TestApproveIsIdempotentAndOwnerOnly(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	b := env.Book(t, space, env.Campaign(t), 10, 12)
	ctx := context.Background()

	_, err := env.Bookings.Approve(ctx, actor.Advertiser(b.AdvertiserID), b.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	first := env.Approve(t, b)
	assert.Equal(t, bookings.StatusApproved, first.Status)
	second := env.Approve(t, b)
	assert.Equal(t, bookings.StatusApproved, second.Status)

	_, err = env.Bookings.Reject(ctx, actor.Owner(space.OwnerID), b.ID, bookings.ReasonRequest{Reason: "changed my mind"})
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
}

func TestDeclineOnlyBeforePayment(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	ctx := context.Background()

	b := env.Book(t, space, env.Campaign(t), 10, 12)
	env.Approve(t, b)
	declined, err := env.Bookings.Decline(ctx, actor.Advertiser(b.AdvertiserID), b.ID, bookings.ReasonRequest{Reason: "budget cut"})
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCancelled, declined.Status)

	paid := env.Confirmed(t, space, 20, 21)
	_, err = env.Bookings.Decline(ctx, actor.Advertiser(paid.AdvertiserID), paid.ID, bookings.ReasonRequest{Reason: "too late"})
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
}

func TestStatusReportsNextStatuses(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	b := env.Book(t, space, env.Campaign(t), 10, 12)

	status, err := env.Bookings.Status(context.Background(), actor.Advertiser(b.AdvertiserID), b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPendingApproval, status.Status)
	assert.Contains(t, status.NextStatuses, bookings.StatusApproved)

	_, err = env.Bookings.Status(context.Background(), actor.Owner(uuid.New()), b.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestRandomBookingSequenceNeverDoubleBooks(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEngine(t)
	space := env.Space(t)
	owner := actor.Owner(space.OwnerID)
	pool := []*campaigns.Campaign{env.Campaign(t), env.Campaign(t), env.Campaign(t)}
	rng := rand.New(rand.NewSource(20260302))

	type held struct {
		dates  availability.DateRange
		status bookings.Status
		by     actor.Actor
	}
	live := map[uuid.UUID]*held{}
	var blocks []availability.DateRange

	span := func() (int, int) {
		from := rng.Intn(40)
		return from, from + rng.Intn(4)
	}
	pick := func() (uuid.UUID, *held) {
		for id, h := range live {
			return id, h
		}
		return uuid.Nil, nil
	}
	clashes := func(r availability.DateRange) bool {
		for _, h := range live {
			if h.dates.Overlaps(r) {
				return true
			}
		}
		return false
	}

	for step := 0; step < 150; step++ {
		switch op := rng.Intn(10); {
		case op < 5:
			from, to := span()
			r, err := availability.ParseDateRange(testutil.Day(from), testutil.Day(to))
			require.NoError(t, err)
			expectConflict := clashes(r)
			for _, blk := range blocks {
				expectConflict = expectConflict || blk.Overlaps(r)
			}

			c := pool[rng.Intn(len(pool))]
			by := actor.Advertiser(c.AdvertiserID)
			b, err := env.Bookings.Create(ctx, by, bookings.CreateBookingRequest{
				SpaceID:    space.ID.String(),
				CampaignID: c.ID.String(),
				StartDate:  testutil.Day(from),
				EndDate:    testutil.Day(to),
			})
			if expectConflict {
				require.Equal(t, errs.KindDateConflict, errs.KindOf(err), "step %d: days %d-%d", step, from, to)
				continue
			}
			require.NoError(t, err, "step %d: days %d-%d", step, from, to)
			live[b.ID] = &held{dates: r, status: b.Status, by: by}

		case op < 6:
			from, to := span()
			r, err := availability.ParseDateRange(testutil.Day(from), testutil.Day(to))
			require.NoError(t, err)
			_, err = env.Blocks.BlockDates(ctx, owner, space.ID, availability.BlockRequest{
				StartDate: testutil.Day(from),
				EndDate:   testutil.Day(to),
			})
			if clashes(r) {
				require.Equal(t, errs.KindDateConflict, errs.KindOf(err), "step %d", step)
				continue
			}
			require.NoError(t, err, "step %d", step)
			blocks = append(blocks, r)

		case op < 8:
			id, h := pick()
			if h == nil {
				continue
			}
			if h.status == bookings.StatusPendingApproval {
				_, err := env.Bookings.Approve(ctx, owner, id)
				require.NoError(t, err)
				h.status = bookings.StatusApproved
				continue
			}
			_, err := env.Bookings.Decline(ctx, h.by, id, bookings.ReasonRequest{Reason: "plans changed"})
			require.NoError(t, err)
			delete(live, id)

		default:
			id, h := pick()
			if h == nil || h.status != bookings.StatusPendingApproval {
				continue
			}
			_, err := env.Bookings.Reject(ctx, owner, id, bookings.ReasonRequest{Reason: "not a fit"})
			require.NoError(t, err)
			delete(live, id)
		}

		var rows []bookings.Booking
		require.NoError(t, env.DB.
			Where("space_id = ? AND status NOT IN ?", space.ID, bookings.ReleasedStatuses()).
			Find(&rows).Error)
		require.Len(t, rows, len(live), "step %d", step)
		for i := range rows {
			a := availability.DateRange{Start: rows[i].StartDate, End: rows[i].EndDate}
			for j := i + 1; j < len(rows); j++ {
				b := availability.DateRange{Start: rows[j].StartDate, End: rows[j].EndDate}
				require.False(t, a.Overlaps(b), "step %d: %s overlaps %s", step, rows[i].ID, rows[j].ID)
			}
			for _, blk := range blocks {
				require.False(t, a.Overlaps(blk), "step %d: %s overlaps a blocked range", step, rows[i].ID)
			}
		}
	}
}
