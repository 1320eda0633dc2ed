package availability_test

import (
	"context"
	"testing"
	"time"

	"adspace/internal/availability"
	"adspace/internal/shared/testutil"
	"adspace/internal/spaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at returns midnight UTC n days after the test epoch, plus offset.
func at(n int, offset time.Duration) time.Time {
	return availability.StartOfDay(testutil.Epoch.AddDate(0, 0, n)).Add(offset)
}

func dates(t *testing.T, from, to int) availability.DateRange {
	t.Helper()
	r, err := availability.ParseDateRange(testutil.Day(from), testutil.Day(to))
	require.NoError(t, err)
	return r
}

func TestCheckAgainstBlockedDates(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		from, to   int
		available  bool
	}{
		{
			name:  "partial day block on the last day",
			start: at(12, 15*time.Hour), end: at(12, 18*time.Hour),
			from: 10, to: 12,
		},
		{
			name:  "partial day block on the first day",
			start: at(10, 20*time.Hour), end: at(10, 23*time.Hour),
			from: 10, to: 12,
		},
		{
			name:  "block ending on the first day",
			start: at(5, 0), end: at(10, 0),
			from: 10, to: 12,
		},
		{
			name:  "block inside the range",
			start: at(11, 0), end: at(11, 0),
			from: 10, to: 12,
		},
		{
			name:  "block covering the range",
			start: at(8, 0), end: at(20, 0),
			from: 10, to: 12,
		},
		{
			name:  "block the day before",
			start: at(9, 0), end: at(9, 23*time.Hour+59*time.Minute),
			from: 10, to: 12,
			available: true,
		},
		{
			name:  "block the day after",
			start: at(13, 0), end: at(14, 0),
			from: 10, to: 12,
			available: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEngine(t)
			space := env.Space(t)
			// Written as-is so rows stored with a time of day are covered too.
			require.NoError(t, env.DB.Create(&spaces.BlockedDate{
				SpaceID:   space.ID,
				StartDate: tt.start,
				EndDate:   tt.end,
				Reason:    "maintenance",
			}).Error)

			result, err := env.Checker.Check(context.Background(), space.ID, dates(t, tt.from, tt.to))
			require.NoError(t, err)
			assert.Equal(t, tt.available, result.Available, result.Reason)
			if !tt.available {
				assert.Equal(t, "dates are blocked by the owner", result.Reason)
				require.Len(t, result.Conflicts, 1)
				assert.Equal(t, availability.ConflictBlocked, result.Conflicts[0].Kind)
			}
		})
	}
}

func TestBlockStoresWholeDays(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)

	blocked := &spaces.BlockedDate{
		SpaceID:   space.ID,
		StartDate: at(12, 15*time.Hour),
		EndDate:   at(12, 18*time.Hour),
	}
	require.NoError(t, env.Spaces.Block(context.Background(), nil, blocked))
	assert.True(t, blocked.StartDate.Equal(at(12, 0)))
	assert.True(t, blocked.EndDate.Equal(at(12, 0)))

	var stored spaces.BlockedDate
	require.NoError(t, env.DB.First(&stored, "id = ?", blocked.ID).Error)
	assert.True(t, stored.StartDate.Equal(at(12, 0)))
	assert.True(t, stored.EndDate.Equal(at(12, 0)))

	result, err := env.Checker.Check(context.Background(), space.ID, dates(t, 10, 12))
	require.NoError(t, err)
	assert.False(t, result.Available)

	result, err = env.Checker.Check(context.Background(), space.ID, dates(t, 13, 15))
	require.NoError(t, err)
	assert.True(t, result.Available, result.Reason)
}

func TestCheckAgainstAvailabilityWindow(t *testing.T) {
	from := at(10, 0)
	// A window bound with a time of day still covers that whole day.
	to := at(20, 17*time.Hour)

	tests := []struct {
		name      string
		from, to  int
		available bool
		reason    string
	}{
		{name: "inside the window", from: 12, to: 15, available: true},
		{name: "first and last day of the window", from: 10, to: 20, available: true},
		{name: "starts before available_from", from: 9, to: 12, reason: "start date is before the space's availability window"},
		{name: "ends after available_to", from: 18, to: 21, reason: "end date is after the space's availability window"},
		{name: "entirely after the window", from: 25, to: 26, reason: "end date is after the space's availability window"},
	}

	env := testutil.NewEngine(t)
	space := env.Space(t, func(s *spaces.Space) {
		s.AvailableFrom = &from
		s.AvailableTo = &to
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.Checker.Check(context.Background(), space.ID, dates(t, tt.from, tt.to))
			require.NoError(t, err)
			assert.Equal(t, tt.available, result.Available, result.Reason)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestCheckRejectsPastStart(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)

	result, err := env.Checker.Check(context.Background(), space.ID, dates(t, -1, 2))
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "start date is in the past", result.Reason)

	result, err = env.Checker.Check(context.Background(), space.ID, dates(t, 0, 2))
	require.NoError(t, err)
	assert.True(t, result.Available, result.Reason)
}
