package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := DateConflict("dates %s to %s are taken", "2026-01-01", "2026-01-03")

	assert.True(t, errors.Is(err, ErrDateConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "dates 2026-01-01 to 2026-01-03 are taken", err.Error())
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	err := fmt.Errorf("create booking: %w", RaceLost("slot taken"))

	assert.True(t, errors.Is(err, ErrRaceLost))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, KindRaceLost, KindOf(err))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

func TestWrapUnwraps(t *testing.T) {
	root := errors.New("connection reset")
	err := Wrap(KindPayoutFailure, root, "transfer failed")

	assert.True(t, errors.Is(err, root))
	assert.True(t, errors.Is(err, ErrPayoutFailure))
	assert.Equal(t, "transfer failed: connection reset", err.Error())
}
