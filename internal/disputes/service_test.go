package disputes_test

import (
	"context"
	"testing"
	"time"

	"adspace/internal/bookings"
	"adspace/internal/disputes"
	"adspace/internal/jobs"
	"adspace/internal/payments"
	"adspace/internal/payouts"
	"adspace/internal/proofs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"
	"adspace/internal/spaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var complaint = disputes.OpenDisputeRequest{
	IssueType: disputes.IssueNotVisible,
	Reason:    "the billboard is covered by a tree",
	Photos:    []string{"https://cdn.test/dispute/tree.jpg"},
}

// awaitingProof returns a paid booking whose owner has submitted proof.
func awaitingProof(t *testing.T, env *testutil.Env) (*spaces.Space, *bookings.Booking) {
	t.Helper()
	space := env.Space(t)
	b := env.Confirmed(t, space, 20, 22)
	_, err := env.Proofs.Submit(context.Background(), actor.Owner(b.OwnerID), b.ID, proofs.SubmitProofRequest{
		Photos: []string{"https://cdn.test/proof/1.jpg"},
	})
	require.NoError(t, err)
	return space, env.Reload(t, b.ID)
}

func openDispute(t *testing.T, env *testutil.Env, b *bookings.Booking) *disputes.BookingDispute {
	t.Helper()
	d, err := env.Disputes.ReportProofIssue(context.Background(), actor.Advertiser(b.AdvertiserID), b.ID, complaint)
	require.NoError(t, err)
	return d
}

func resolve(env *testutil.Env, d *disputes.BookingDispute, action disputes.Action, amount int64) (*disputes.BookingDispute, error) {
	return env.Disputes.Resolve(context.Background(), actor.Admin(uuid.New()), d.ID, disputes.ResolveRequest{
		Action:       action,
		Notes:        "reviewed the photos",
		RefundAmount: amount,
	})
}

func proofStatus(t *testing.T, env *testutil.Env, bookingID uuid.UUID) proofs.Status {
	t.Helper()
	proof, err := env.Proofs.Find(context.Background(), env.DB, bookingID)
	require.NoError(t, err)
	require.NotNil(t, proof)
	return proof.Status
}

func TestDisputeFreezesProofTimer(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := awaitingProof(t, env)

	d := openDispute(t, env, b)
	assert.Equal(t, disputes.StatusOpen, d.Status)
	assert.Equal(t, string(bookings.StatusAwaitingProof), d.ResumeStatus)
	assert.Equal(t, string(proofs.StatusPending), d.ProofResumeStatus)
	require.NotNil(t, d.ProofID)

	assert.Equal(t, bookings.StatusDisputed, env.Reload(t, b.ID).Status)
	assert.Equal(t, proofs.StatusDisputed, proofStatus(t, env, b.ID))

	scheduled, err := env.Jobs.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	for _, j := range scheduled {
		assert.NotEqual(t, jobs.StatusPending, j.Status, "job %s still pending", j.Kind)
	}

	assert.Zero(t, env.RunJobs(t, 72*time.Hour))
	assert.Equal(t, bookings.StatusDisputed, env.Reload(t, b.ID).Status)

	list, err := env.Payouts.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, env.Sandbox.TransferRequests())
}

func TestOpenDisputeGuards(t *testing.T) {
	env := testutil.NewEngine(t)
	ctx := context.Background()

	confirmed := env.Confirmed(t, env.Space(t), 20, 22)
	_, err := env.Disputes.ReportProofIssue(ctx, actor.Advertiser(confirmed.AdvertiserID), confirmed.ID, complaint)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))

	_, b := awaitingProof(t, env)
	_, err = env.Disputes.Open(ctx, actor.Owner(b.OwnerID), b.ID, complaint)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = env.Disputes.Open(ctx, actor.Advertiser(b.AdvertiserID), b.ID, disputes.OpenDisputeRequest{
		IssueType: disputes.IssueDamage,
		Reason:    "short",
	})
	assert.Error(t, err)

	openDispute(t, env, b)
	_, err = env.Disputes.Open(ctx, actor.Advertiser(b.AdvertiserID), b.ID, complaint)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
}

func TestRefundResolutionCancelsBooking(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := awaitingProof(t, env)
	d := openDispute(t, env, b)

	resolved, err := resolve(env, d, disputes.ActionRefund, 0)
	require.NoError(t, err)
	assert.Equal(t, disputes.StatusResolved, resolved.Status)
	assert.Equal(t, disputes.ActionRefund, resolved.ResolutionAction)
	assert.Equal(t, b.Total, resolved.RefundAmount)

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusCancelled, b.Status)
	assert.Equal(t, proofs.StatusRejected, proofStatus(t, env, b.ID))

	paid, refunds, err := env.Payments.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	var collected, refunded int64
	for _, p := range paid {
		collected += p.Amount
		assert.Equal(t, payments.PaymentRefunded, p.Status)
	}
	for _, r := range refunds {
		assert.Equal(t, payments.RefundSucceeded, r.Status)
		refunded += r.Amount
	}
	assert.Equal(t, collected, refunded)
	assert.Zero(t, env.Sandbox.TransferRequests())

	_, err = resolve(env, d, disputes.ActionReinstate, 0)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
}

func TestPartialRefundResolution(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := awaitingProof(t, env)
	d := openDispute(t, env, b)

	_, err := resolve(env, d, disputes.ActionRefund, b.Total+1)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Equal(t, bookings.StatusDisputed, env.Reload(t, b.ID).Status)

	resolved, err := resolve(env, d, disputes.ActionRefund, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), resolved.RefundAmount)
	assert.Equal(t, bookings.StatusCancelled, env.Reload(t, b.ID).Status)

	paid, _, err := env.Payments.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, payments.PaymentPartiallyRefunded, paid[0].Status)
}

func TestReinstateRestartsReviewWindow(t *testing.T) {
	env := testutil.NewEngine(t)
	space, b := awaitingProof(t, env)
	env.Clock.Advance(40 * time.Hour)
	d := openDispute(t, env, b)

	resolved, err := resolve(env, d, disputes.ActionReinstate, 0)
	require.NoError(t, err)
	assert.Equal(t, disputes.ActionReinstate, resolved.ResolutionAction)
	assert.Zero(t, resolved.RefundAmount)

	assert.Equal(t, bookings.StatusAwaitingProof, env.Reload(t, b.ID).Status)
	assert.Equal(t, proofs.StatusPending, proofStatus(t, env, b.ID))

	// the window starts over from the resolution
	assert.Zero(t, env.RunJobs(t, 47*time.Hour))
	env.RunJobs(t, time.Hour)
	assert.Equal(t, bookings.StatusCompleted, env.Reload(t, b.ID).Status)
	assert.Equal(t, env.Reload(t, b.ID).PayoutAmount, env.Sandbox.TransferredTo(space.OwnerPayoutAccount))
}

func TestRejectDisputeApprovesProof(t *testing.T) {
	env := testutil.NewEngine(t)
	space, b := awaitingProof(t, env)
	d := openDispute(t, env, b)

	_, err := resolve(env, d, disputes.ActionRejectDispute, 0)
	require.NoError(t, err)

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusCompleted, b.Status)
	assert.Equal(t, proofs.StatusApproved, proofStatus(t, env, b.ID))

	list, err := env.Payouts.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, payouts.StatusCompleted, list[0].Status)
	assert.Equal(t, b.PayoutAmount, env.Sandbox.TransferredTo(space.OwnerPayoutAccount))
}

func TestResolveRequiresAdmin(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := awaitingProof(t, env)
	d := openDispute(t, env, b)

	_, err := env.Disputes.Resolve(context.Background(), actor.Advertiser(b.AdvertiserID), d.ID, disputes.ResolveRequest{
		Action: disputes.ActionRefund,
		Notes:  "refund me",
	})
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	list, err := env.Disputes.ListByBooking(context.Background(), actor.Owner(b.OwnerID), b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, disputes.StatusOpen, list[0].Status)
}
