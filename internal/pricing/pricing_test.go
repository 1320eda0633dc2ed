package pricing

import (
	"math/rand"
	"testing"

	"adspace/internal/shared/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatFee struct{ bps, fixed int64 }

func (f flatFee) EstimateFee(amount int64) int64 {
	return BasisPoints(amount, f.bps) + f.fixed
}

func TestQuoteThreeDaysAtHundredDollars(t *testing.T) {
	calc := NewCalculator(1000, nil)

	q, err := calc.Quote(Input{PricePerDay: 10000, Days: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(30000), q.RentalCost)
	assert.Equal(t, int64(30000), q.Subtotal)
	assert.Equal(t, int64(3000), q.PlatformFee)
	assert.Equal(t, int64(33000), q.Total)
	assert.Equal(t, int64(30000), q.PayoutAmount)
	assert.Equal(t, PolicyFull, q.Policy)
	assert.Equal(t, q.Total, q.DepositAmount)
	assert.Zero(t, q.BalanceAmount)
}

func TestQuotePassesProcessorFeeThrough(t *testing.T) {
	calc := NewCalculator(1000, flatFee{bps: 290, fixed: 30})

	q, err := calc.Quote(Input{PricePerDay: 2500, InstallationFee: 5000, Days: 4})
	require.NoError(t, err)

	assert.Equal(t, int64(15000), q.Subtotal)
	assert.Equal(t, int64(1500), q.PlatformFee)
	// 2.9% of 16500 = 478.5 -> 479, plus 30
	assert.Equal(t, int64(509), q.ProcessorFee)
	assert.Equal(t, q.Subtotal+q.PlatformFee+q.ProcessorFee, q.Total)
}

func TestDepositAndBalanceSumToTotal(t *testing.T) {
	calc := NewCalculator(1000, flatFee{bps: 290, fixed: 30})

	q, err := calc.Quote(Input{PricePerDay: 3333, InstallationFee: 1, Days: 7, DepositPercent: 33})
	require.NoError(t, err)

	assert.Equal(t, PolicyDeposit, q.Policy)
	assert.Equal(t, q.Total, q.DepositAmount+q.BalanceAmount)
	assert.Equal(t, Percent(q.Total, 33), q.DepositAmount)
}

func TestQuoteInvariantsHoldForRandomInputs(t *testing.T) {
	calc := NewCalculator(1000, flatFee{bps: 290, fixed: 30})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		in := Input{
			PricePerDay:     rng.Int63n(500000),
			InstallationFee: rng.Int63n(100000),
			Days:            1 + rng.Intn(120),
			DepositPercent:  rng.Intn(101),
		}
		q, err := calc.Quote(in)
		require.NoError(t, err)

		assert.Equal(t, q.Subtotal+q.PlatformFee+q.ProcessorFee, q.Total)
		assert.Equal(t, q.Total, q.DepositAmount+q.BalanceAmount)
		assert.Equal(t, (q.Subtotal*10+50)/100, q.PlatformFee)
		assert.Equal(t, q.Subtotal, q.PayoutAmount)
		assert.GreaterOrEqual(t, q.BalanceAmount, int64(0))

		again, err := calc.Quote(in)
		require.NoError(t, err)
		assert.Equal(t, q, again)
	}
}

func TestQuoteRejectsBadInput(t *testing.T) {
	calc := NewCalculator(1000, nil)

	_, err := calc.Quote(Input{PricePerDay: 100, Days: 0})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = calc.Quote(Input{PricePerDay: 100, Days: 2, DepositPercent: 120})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestBasisPointsRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(1), BasisPoints(5, 1000))
	assert.Equal(t, int64(0), BasisPoints(4, 1000))
	assert.Equal(t, int64(3), Percent(5, 50))
}
