package payouts

import "adspace/internal/pricing"

// Split divides the owner's share into the proof-approval stage and the
// completion stage. stage1Percent of 100 yields a single stage.
func Split(payout, stage1Percent int64) (stage1, stage2 int64) {
	if stage1Percent >= 100 {
		return payout, 0
	}
	if stage1Percent <= 0 {
		return 0, payout
	}
	stage1 = pricing.Percent(payout, stage1Percent)
	return stage1, payout - stage1
}

// Staged reports whether bookings pass through VERIFIED before COMPLETED.
func Staged(stage1Percent int64) bool {
	return stage1Percent < 100
}
