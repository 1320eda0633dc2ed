package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"adspace/internal/jobs"
	"adspace/internal/shared/clock"
	"adspace/internal/shared/testutil"
	"adspace/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRunner(t *testing.T) (*gorm.DB, *jobs.Store, *jobs.Runner, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testutil.Epoch)
	db := testutil.OpenSQLite(t, clk)
	store := jobs.NewStore(db, clk)
	return db, store, jobs.NewRunner(store, testutil.Config().Jobs, clk, logger.NewDiscard()), clk
}

func TestJobWithoutHandlerIsParkedAsFailed(t *testing.T) {
	ctx := context.Background()
	db, store, runner, clk := newRunner(t)

	bookingID := uuid.New()
	require.NoError(t, store.Schedule(ctx, db, bookingID, jobs.Kind("unknown_kind"), clk.Now(), nil))

	completed, err := runner.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)

	scheduled, err := store.ListByBooking(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, jobs.StatusFailed, scheduled[0].Status)
	assert.Contains(t, scheduled[0].LastError, "no handler")

	// Parked jobs are never claimed again.
	clk.Advance(time.Hour)
	completed, err = runner.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)
}

func TestFailingHandlerIsRetriedWithBackoff(t *testing.T) {
	ctx := context.Background()
	db, store, runner, clk := newRunner(t)

	calls := 0
	runner.Register(jobs.KindBookingCompletion, func(ctx context.Context, job jobs.ScheduledJob) error {
		calls++
		if calls == 1 {
			return errors.New("processor unavailable")
		}
		return nil
	})

	bookingID := uuid.New()
	require.NoError(t, store.Schedule(ctx, db, bookingID, jobs.KindBookingCompletion, clk.Now(), nil))

	completed, err := runner.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)

	scheduled, err := store.ListByBooking(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, jobs.StatusPending, scheduled[0].Status)
	assert.Equal(t, "processor unavailable", scheduled[0].LastError)

	clk.Advance(30 * time.Second)
	completed, err = runner.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, completed, "backoff has not elapsed")

	clk.Advance(30 * time.Second)
	completed, err = runner.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 2, calls)
}
