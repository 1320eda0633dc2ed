package payments_test

import (
	"context"
	"testing"
	"time"

	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/payments"
	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"
	"adspace/internal/spaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func approvedBooking(t *testing.T, env *testutil.Env, opts ...func(*spaces.Space)) *bookings.Booking {
	t.Helper()
	space := env.Space(t, opts...)
	b := env.Book(t, space, env.Campaign(t), 20, 22)
	return env.Approve(t, b)
}

func checkout(t *testing.T, env *testutil.Env, b *bookings.Booking) *payments.CheckoutResult {
	t.Helper()
	res, err := env.Payments.CreateCheckoutSession(context.Background(), actor.Advertiser(b.AdvertiserID), payments.CheckoutRequest{
		BookingIDs: []string{b.ID.String()},
	})
	require.NoError(t, err)
	return res
}

func TestWebhookIsAppliedOnce(t *testing.T) {
	env := testutil.NewEngine(t)
	b := approvedBooking(t, env)
	ctx := context.Background()

	res := checkout(t, env, b)
	assert.Equal(t, b.Total, res.AmountDue)
	payload, sig := env.CompletionWebhook(t, res.SessionID)

	first, err := env.Payments.HandleWebhook(ctx, payload, sig, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := env.Payments.HandleWebhook(ctx, payload, sig, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	paid, refunds, err := env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Empty(t, refunds)
	assert.Equal(t, payments.TypeFull, paid[0].Type)
	assert.Equal(t, payments.PaymentSucceeded, paid[0].Status)
	assert.Equal(t, b.Total, paid[0].Amount)

	assert.Equal(t, bookings.StatusConfirmed, env.Reload(t, b.ID).Status)

	events, err := env.Events.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	succeeded := 0
	for _, e := range events {
		if e.Action == "payment_succeeded" {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestWebhookWithBadSignatureIsRejected(t *testing.T) {
	env := testutil.NewEngine(t)
	b := approvedBooking(t, env)
	payload, _ := env.CompletionWebhook(t, checkout(t, env, b).SessionID)

	_, err := env.Payments.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef", "10.0.0.1")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Equal(t, bookings.StatusApproved, env.Reload(t, b.ID).Status)
}

func TestCheckoutSessionIsReusedWhileOpen(t *testing.T) {
	env := testutil.NewEngine(t)
	b := approvedBooking(t, env)

	first := checkout(t, env, b)
	second := checkout(t, env, b)
	assert.False(t, first.Reused)
	assert.True(t, second.Reused)
	assert.Equal(t, first.SessionID, second.SessionID)

	// An expired session is replaced
	env.Clock.Advance(first.ExpiresAt.Sub(env.Clock.Now()) + time.Second)
	third := checkout(t, env, b)
	assert.False(t, third.Reused)
	assert.NotEqual(t, first.SessionID, third.SessionID)
}

func TestCheckoutRequiresApprovedBooking(t *testing.T) {
	env := testutil.NewEngine(t)
	space := env.Space(t)
	b := env.Book(t, space, env.Campaign(t), 20, 22)

	_, err := env.Payments.CreateCheckoutSession(context.Background(), actor.Advertiser(b.AdvertiserID), payments.CheckoutRequest{
		BookingIDs: []string{b.ID.String()},
	})
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))

	env.Approve(t, b)
	_, err = env.Payments.CreateCheckoutSession(context.Background(), actor.Advertiser(uuid.New()), payments.CheckoutRequest{
		BookingIDs: []string{b.ID.String()},
	})
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestDepositBookingChargesBalanceBeforeStart(t *testing.T) {
	env := testutil.NewEngine(t)
	b := approvedBooking(t, env, func(s *spaces.Space) { s.DepositPercent = 30 })
	require.Greater(t, b.BalanceAmount, int64(0))

	b = env.Pay(t, b)
	assert.Equal(t, bookings.StatusPendingBalance, b.Status)

	scheduled, err := env.Jobs.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, jobs.KindBalanceCharge, scheduled[0].Kind)
	assert.WithinDuration(t, b.StartDate.Add(-7*24*time.Hour), scheduled[0].DueAt, time.Second)

	// Nothing is due yet
	assert.Equal(t, 0, env.RunJobs(t, time.Hour))
	assert.Equal(t, 1, env.RunJobs(t, 13*24*time.Hour))

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusConfirmed, b.Status)

	paid, _, err := env.Payments.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	var collected int64
	for _, p := range paid {
		if p.Status == payments.PaymentSucceeded {
			collected += p.Amount
		}
	}
	assert.Equal(t, b.Total, collected)
}

func TestDeclinedBalanceChargeCanBeRetried(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Pay(t, approvedBooking(t, env, func(s *spaces.Space) { s.DepositPercent = 50 }))
	require.Equal(t, bookings.StatusPendingBalance, b.Status)

	env.Sandbox.Inject(processor.OpCharge, processor.Fault{Mode: processor.FaultDecline, Reason: "card_declined"})
	env.RunJobs(t, 14*24*time.Hour)

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusPendingBalance, b.Status)
	assert.NotEmpty(t, b.BalanceChargeError)
	assert.Equal(t, 1, b.BalanceChargeAttempts)

	retried, err := env.Payments.RetryBalanceCharge(context.Background(), b.ID, actor.Admin(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusConfirmed, retried.Status)
	assert.Equal(t, 2, retried.BalanceChargeAttempts)
}

func TestRefundNeverExceedsCollected(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Pay(t, approvedBooking(t, env))
	ctx := context.Background()
	admin := actor.Admin(uuid.New())

	_, err := env.Payments.IssueRefund(ctx, b.ID, payments.RefundRequest{Amount: b.Total + 1, Reason: "too much"}, admin)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	refunds, err := env.Payments.IssueRefund(ctx, b.ID, payments.RefundRequest{Amount: 5000, Reason: "partial outage"}, admin)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, payments.RefundSucceeded, refunds[0].Status)

	paid, _, err := env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.PaymentPartiallyRefunded, paid[0].Status)
	assert.Equal(t, int64(5000), paid[0].RefundedAmount)

	rest, err := env.Payments.IssueRefund(ctx, b.ID, payments.RefundRequest{Reason: "full refund"}, admin)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, b.Total-5000, rest[0].Amount)

	paid, _, err = env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.PaymentRefunded, paid[0].Status)
}

func TestUnacknowledgedRefundIsReconciledByJob(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Pay(t, approvedBooking(t, env))
	ctx := context.Background()
	env.Sandbox.Inject(processor.OpRefund, processor.Fault{Mode: processor.FaultUnacknowledged})

	refunds, err := env.Payments.IssueRefund(ctx, b.ID, payments.RefundRequest{Reason: "venue closed"}, actor.Admin(uuid.New()))
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, payments.RefundPending, refunds[0].Status)

	assert.Zero(t, env.RunJobs(t, 4*time.Minute))
	assert.Equal(t, 1, env.RunJobs(t, time.Minute))

	paid, list, err := env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, payments.RefundSucceeded, list[0].Status)
	assert.NotEmpty(t, list[0].ProcessorRef)
	assert.Equal(t, payments.PaymentRefunded, paid[0].Status)
	assert.Equal(t, 1, env.Sandbox.RefundRequests())
}

func TestReservedRefundIsSentWhenExecutionNeverRan(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Pay(t, approvedBooking(t, env))
	ctx := context.Background()

	err := bookings.WithLock(ctx, env.DB, b.ID, func(tx *gorm.DB, locked *bookings.Booking) error {
		_, err := env.Payments.ReserveRefund(ctx, tx, locked, 4000, "dispute settled", actor.System())
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, env.Sandbox.RefundRequests())

	env.Sandbox.Inject(processor.OpRefund, processor.Fault{Mode: processor.FaultUnavailable})
	assert.Zero(t, env.RunJobs(t, 5*time.Minute))
	_, list, err := env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, payments.RefundPending, list[0].Status)
	assert.NotEmpty(t, list[0].FailureReason)

	assert.Equal(t, 1, env.RunJobs(t, time.Minute))
	paid, list, err := env.Payments.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.RefundSucceeded, list[0].Status)
	assert.Equal(t, int64(4000), paid[0].RefundedAmount)
	assert.Equal(t, 1, env.Sandbox.RefundRequests())
}
