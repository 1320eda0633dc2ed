package database

import (
	"adspace/internal/admin"
	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/campaigns"
	"adspace/internal/disputes"
	"adspace/internal/jobs"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/proofs"
	"adspace/internal/spaces"

	"gorm.io/gorm"
)

// Models lists every table the engine owns, parents first.
func Models() []interface{} {
	return []interface{}{
		&spaces.Space{},
		&spaces.BlockedDate{},
		&campaigns.Campaign{},
		&bookings.Booking{},
		&payments.CheckoutSession{},
		&payments.CheckoutLine{},
		&payments.Payment{},
		&payments.Refund{},
		&payments.WebhookReceipt{},
		&proofs.BookingProof{},
		&payouts.Payout{},
		&disputes.BookingDispute{},
		&jobs.ScheduledJob{},
		&audit.TimelineEvent{},
		&admin.AdminAction{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
