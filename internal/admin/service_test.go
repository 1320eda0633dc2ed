package admin_test

import (
	"context"
	"testing"
	"time"

	"adspace/internal/admin"
	"adspace/internal/bookings"
	"adspace/internal/disputes"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/processor"
	"adspace/internal/proofs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminMeta() admin.Meta {
	return admin.Meta{Actor: actor.Admin(uuid.New()), IP: "10.1.2.3"}
}

func withProof(t *testing.T, env *testutil.Env, from, to int) *bookings.Booking {
	t.Helper()
	b := env.Confirmed(t, env.Space(t), from, to)
	_, err := env.Proofs.Submit(context.Background(), actor.Owner(b.OwnerID), b.ID, proofs.SubmitProofRequest{
		Photos: []string{"https://cdn.test/proof/1.jpg"},
	})
	require.NoError(t, err)
	return env.Reload(t, b.ID)
}

func TestOverrideRecordsAction(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Book(t, env.Space(t), env.Campaign(t), 10, 12)
	m := adminMeta()
	ctx := context.Background()

	approved, err := env.Admin.ApproveBooking(ctx, m, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusApproved, approved.Status)

	actions, err := env.Admin.Actions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, "approve_booking", a.Action)
	assert.Equal(t, m.Actor.ID, a.AdminID)
	assert.Equal(t, "10.1.2.3", a.IPAddress)
	assert.True(t, a.Succeeded)
	assert.Contains(t, string(a.Before), string(bookings.StatusPendingApproval))
	assert.Contains(t, string(a.After), string(bookings.StatusApproved))
}

func TestFailedOverrideIsRecorded(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Approve(t, env.Book(t, env.Space(t), env.Campaign(t), 10, 12))
	ctx := context.Background()

	_, err := env.Admin.RejectBooking(ctx, adminMeta(), b.ID, admin.NotesRequest{Reason: "duplicate request"})
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))

	actions, err := env.Admin.Actions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Succeeded)
	assert.NotEmpty(t, actions[0].Error)
	assert.Equal(t, "duplicate request", actions[0].Notes)
}

func TestOverrideRequiresAdmin(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Book(t, env.Space(t), env.Campaign(t), 10, 12)
	ctx := context.Background()

	_, err := env.Admin.ApproveBooking(ctx, admin.Meta{Actor: actor.Owner(b.OwnerID)}, b.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	actions, err := env.Admin.Actions(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, bookings.StatusPendingApproval, env.Reload(t, b.ID).Status)
}

func TestProofAndRefundOverrides(t *testing.T) {
	env := testutil.NewEngine(t)
	b := withProof(t, env, 20, 22)
	ctx := context.Background()

	proof, err := env.Admin.ApproveProof(ctx, adminMeta(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, proofs.StatusApproved, proof.Status)
	assert.Equal(t, string(actor.TypeAdmin), proof.ReviewerType)
	assert.Equal(t, bookings.StatusCompleted, env.Reload(t, b.ID).Status)

	refunds, err := env.Admin.IssueRefund(ctx, adminMeta(), b.ID, payments.RefundRequest{Amount: 2500, Reason: "goodwill credit"})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(2500), refunds[0].Amount)
	assert.Equal(t, payments.RefundSucceeded, refunds[0].Status)

	actions, err := env.Admin.Actions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "approve_proof", actions[0].Action)
	assert.Equal(t, "issue_refund", actions[1].Action)
}

func TestRetryPayoutOverride(t *testing.T) {
	env := testutil.NewEngine(t)
	env.Sandbox.Inject(processor.OpTransfer, processor.Fault{Mode: processor.FaultDecline})
	b := withProof(t, env, 20, 22)
	ctx := context.Background()

	_, err := env.Proofs.Approve(ctx, actor.Advertiser(b.AdvertiserID), b.ID)
	require.NoError(t, err)

	p, err := env.Admin.RetryPayout(ctx, adminMeta(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, payouts.StatusCompleted, p.Status)
	assert.Equal(t, 2, p.AttemptCount)
}

func TestResolveDisputeOverride(t *testing.T) {
	env := testutil.NewEngine(t)
	b := withProof(t, env, 20, 22)
	ctx := context.Background()

	d, err := env.Disputes.Open(ctx, actor.Advertiser(b.AdvertiserID), b.ID, disputes.OpenDisputeRequest{
		IssueType: disputes.IssueWrongLocation,
		Reason:    "ad was installed on the wrong corner",
	})
	require.NoError(t, err)

	resolved, err := env.Admin.ResolveDispute(ctx, adminMeta(), d.ID, disputes.ResolveRequest{
		Action: disputes.ActionReinstate,
		Notes:  "photos show the right corner",
	})
	require.NoError(t, err)
	assert.Equal(t, disputes.StatusResolved, resolved.Status)

	actions, err := env.Admin.Actions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "dispute", actions[0].ResourceType)
	assert.Equal(t, d.ID, actions[0].ResourceID)
}

func TestTimelineIsOrdered(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Confirmed(t, env.Space(t), 20, 22)

	timeline, err := env.Admin.Timeline(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, timeline.Booking)
	assert.Equal(t, b.ID, timeline.Booking.ID)
	require.NotEmpty(t, timeline.Events)
	assert.Equal(t, "created", timeline.Events[0].Action)
	for i := 1; i < len(timeline.Events); i++ {
		assert.Greater(t, timeline.Events[i].ID, timeline.Events[i-1].ID)
	}

	_, err = env.Admin.Timeline(context.Background(), uuid.New())
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestListPaymentFlows(t *testing.T) {
	env := testutil.NewEngine(t)
	ctx := context.Background()

	healthy := withProof(t, env, 10, 12)
	_, err := env.Proofs.Approve(ctx, actor.Advertiser(healthy.AdvertiserID), healthy.ID)
	require.NoError(t, err)

	env.Sandbox.Inject(processor.OpTransfer, processor.Fault{Mode: processor.FaultDecline})
	failed := withProof(t, env, 20, 22)
	_, err = env.Proofs.Approve(ctx, actor.Advertiser(failed.AdvertiserID), failed.ID)
	require.NoError(t, err)

	disputed := withProof(t, env, 30, 32)
	_, err = env.Disputes.Open(ctx, actor.Advertiser(disputed.AdvertiserID), disputed.ID, disputes.OpenDisputeRequest{
		IssueType: disputes.IssuePoorQuality,
		Reason:    "print is faded and unreadable",
	})
	require.NoError(t, err)

	all, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Summary.Bookings)
	assert.Equal(t, int64(2), all.Summary.NeedsAttention)
	assert.Equal(t, healthy.PayoutAmount, all.Summary.PaidOut)
	assert.Equal(t, healthy.Total+failed.Total+disputed.Total, all.Summary.Collected)
	assert.Len(t, all.Rows, 3)

	attention := map[uuid.UUID]admin.PaymentFlowRow{}
	for _, row := range all.Rows {
		if row.NeedsAttention {
			attention[row.BookingID] = row
		}
	}
	require.Len(t, attention, 2)
	assert.Equal(t, admin.SuggestRetryPayout, attention[failed.ID].SuggestedAction)
	assert.Equal(t, admin.SuggestResolveDispute, attention[disputed.ID].SuggestedAction)

	byPayout, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{PayoutStatus: "failed"})
	require.NoError(t, err)
	require.Len(t, byPayout.Rows, 1)
	assert.Equal(t, failed.ID, byPayout.Rows[0].BookingID)
	require.Len(t, byPayout.Rows[0].Payouts, 1)
	assert.Equal(t, payouts.StatusFailed, byPayout.Rows[0].Payouts[0].Status)

	byStatus, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{Status: "disputed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byStatus.Summary.Bookings)
	require.Len(t, byStatus.Rows, 1)
	assert.Equal(t, disputed.ID, byStatus.Rows[0].BookingID)
}

func TestUnconfirmedRefundIsFlaggedAndRetried(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Confirmed(t, env.Space(t), 20, 22)
	ctx := context.Background()
	env.Sandbox.Inject(processor.OpRefund, processor.Fault{Mode: processor.FaultUnavailable})

	refunds, err := env.Admin.IssueRefund(ctx, adminMeta(), b.ID, payments.RefundRequest{Reason: "space torn down"})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, payments.RefundPending, refunds[0].Status)

	// the unconfirmed amount stays reserved
	_, err = env.Admin.IssueRefund(ctx, adminMeta(), b.ID, payments.RefundRequest{Reason: "second attempt"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	fresh, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{})
	require.NoError(t, err)
	require.Len(t, fresh.Rows, 1)
	assert.False(t, fresh.Rows[0].NeedsAttention)

	env.Clock.Advance(5 * time.Minute)
	stuck, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{})
	require.NoError(t, err)
	require.Len(t, stuck.Rows, 1)
	assert.True(t, stuck.Rows[0].NeedsAttention)
	assert.Equal(t, admin.SuggestRetryRefund, stuck.Rows[0].SuggestedAction)
	assert.Equal(t, int64(1), stuck.Summary.NeedsAttention)

	retried, err := env.Admin.RetryRefunds(ctx, adminMeta(), b.ID)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, payments.RefundSucceeded, retried[0].Status)
	assert.Equal(t, b.Total, retried[0].Amount)
	assert.Equal(t, 1, env.Sandbox.RefundRequests())

	cleared, err := env.Admin.ListPaymentFlows(ctx, admin.PaymentFlowQuery{})
	require.NoError(t, err)
	assert.False(t, cleared.Rows[0].NeedsAttention)
	assert.Equal(t, b.Total, cleared.Rows[0].Refunded)

	_, err = env.Admin.RetryRefunds(ctx, adminMeta(), b.ID)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
