// Package pricing computes booking quotes. All amounts are integer cents and
// every function here is pure.
package pricing

import (
	"adspace/internal/shared/errs"
)

type Policy string

const (
	PolicyFull    Policy = "FULL"
	PolicyDeposit Policy = "DEPOSIT"
)

// FeeEstimator predicts the processor's fee for charging amount.
type FeeEstimator interface {
	EstimateFee(amount int64) int64
}

type Input struct {
	PricePerDay     int64
	InstallationFee int64
	Days            int
	// DepositPercent of 0 or 100 means the whole total is charged upfront.
	DepositPercent int
}

type Quote struct {
	DurationDays    int    `json:"duration_days"`
	PricePerDay     int64  `json:"price_per_day"`
	RentalCost      int64  `json:"rental_cost"`
	InstallationFee int64  `json:"installation_fee"`
	Subtotal        int64  `json:"subtotal"`
	PlatformFee     int64  `json:"platform_fee"`
	ProcessorFee    int64  `json:"processor_fee"`
	Total           int64  `json:"total"`
	Policy          Policy `json:"payment_policy"`
	DepositPercent  int    `json:"deposit_percent"`
	DepositAmount   int64  `json:"deposit_amount"`
	BalanceAmount   int64  `json:"balance_amount"`
	PayoutAmount    int64  `json:"payout_amount"`
}

type Calculator struct {
	platformFeeBps int64
	fees           FeeEstimator
}

func NewCalculator(platformFeeBps int64, fees FeeEstimator) *Calculator {
	return &Calculator{platformFeeBps: platformFeeBps, fees: fees}
}

func (c *Calculator) Quote(in Input) (*Quote, error) {
	if in.Days <= 0 {
		return nil, errs.Validation("duration must be at least one day")
	}
	if in.PricePerDay < 0 || in.InstallationFee < 0 {
		return nil, errs.Validation("prices cannot be negative")
	}
	if in.DepositPercent < 0 || in.DepositPercent > 100 {
		return nil, errs.Validation("deposit percent must be between 0 and 100")
	}

	q := &Quote{
		DurationDays:    in.Days,
		PricePerDay:     in.PricePerDay,
		RentalCost:      in.PricePerDay * int64(in.Days),
		InstallationFee: in.InstallationFee,
	}
	q.Subtotal = q.RentalCost + q.InstallationFee
	q.PlatformFee = BasisPoints(q.Subtotal, c.platformFeeBps)
	if c.fees != nil {
		q.ProcessorFee = c.fees.EstimateFee(q.Subtotal + q.PlatformFee)
	}
	q.Total = q.Subtotal + q.PlatformFee + q.ProcessorFee
	q.PayoutAmount = q.Subtotal

	if in.DepositPercent == 0 || in.DepositPercent == 100 {
		q.Policy = PolicyFull
		q.DepositPercent = 100
		q.DepositAmount = q.Total
	} else {
		q.Policy = PolicyDeposit
		q.DepositPercent = in.DepositPercent
		q.DepositAmount = Percent(q.Total, int64(in.DepositPercent))
	}
	q.BalanceAmount = q.Total - q.DepositAmount
	return q, nil
}

// BasisPoints returns amount * bps / 10000 rounded half up.
func BasisPoints(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}

// Percent returns amount * pct / 100 rounded half up.
func Percent(amount, pct int64) int64 {
	return (amount*pct + 50) / 100
}
