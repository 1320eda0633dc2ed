package proofs_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"adspace/internal/audit"
	"adspace/internal/bookings"
	"adspace/internal/jobs"
	"adspace/internal/payouts"
	"adspace/internal/proofs"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/config"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/testutil"
	"adspace/internal/spaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var photos = proofs.SubmitProofRequest{
	Photos: []string{"https://cdn.test/proof/front.jpg", "https://cdn.test/proof/side.jpg"},
	Notes:  "installed on schedule",
}

func submitted(t *testing.T, env *testutil.Env) (*spaces.Space, *bookings.Booking) {
	t.Helper()
	space := env.Space(t)
	b := env.Confirmed(t, space, 20, 22)
	require.Equal(t, bookings.StatusConfirmed, b.Status)

	proof, err := env.Proofs.Submit(context.Background(), actor.Owner(b.OwnerID), b.ID, photos)
	require.NoError(t, err)
	require.Equal(t, proofs.StatusPending, proof.Status)
	return space, env.Reload(t, b.ID)
}

func countActions(t *testing.T, env *testutil.Env, bookingID uuid.UUID, action string) int {
	t.Helper()
	events, err := env.Events.ListByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	n := 0
	for _, e := range events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestSubmitStartsReviewWindow(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)

	assert.Equal(t, bookings.StatusAwaitingProof, b.Status)

	proof, err := env.Proofs.Get(context.Background(), actor.Advertiser(b.AdvertiserID), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, proof.Revision)
	assert.WithinDuration(t, env.Clock.Now().Add(48*time.Hour), proof.AutoApproveAt, time.Second)

	scheduled, err := env.Jobs.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	var timers int
	for _, j := range scheduled {
		if j.Kind == jobs.KindProofAutoApprove && j.Status == jobs.StatusPending {
			timers++
		}
	}
	assert.Equal(t, 1, timers)
}

func TestSubmitAutoAdvanceLeavesDownloadUnset(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)

	assert.Nil(t, b.FileDownloadedAt)
	assert.NotNil(t, b.ProofSubmittedAt)

	events, err := env.Events.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	var advanced *audit.TimelineEvent
	for i := range events {
		if events[i].ToStatus == string(bookings.StatusActive) {
			advanced = &events[i]
		}
	}
	require.NotNil(t, advanced)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(advanced.Metadata, &meta))
	assert.Equal(t, true, meta["auto_advanced"])
	assert.Equal(t, "proof_submitted", meta["trigger"])
}

func TestSubmitAfterDownloadKeepsDownloadTime(t *testing.T) {
	env := testutil.NewEngine(t)
	ctx := context.Background()
	b := env.Confirmed(t, env.Space(t), 20, 22)

	downloaded, err := env.Bookings.MarkFileDownloaded(ctx, actor.Owner(b.OwnerID), b.ID)
	require.NoError(t, err)
	require.NotNil(t, downloaded.FileDownloadedAt)
	at := *downloaded.FileDownloadedAt

	env.Clock.Advance(time.Hour)
	_, err = env.Proofs.Submit(ctx, actor.Owner(b.OwnerID), b.ID, photos)
	require.NoError(t, err)

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusAwaitingProof, b.Status)
	require.NotNil(t, b.FileDownloadedAt)
	assert.WithinDuration(t, at, *b.FileDownloadedAt, time.Second)
}

func TestSubmitRequiresOwner(t *testing.T) {
	env := testutil.NewEngine(t)
	b := env.Confirmed(t, env.Space(t), 20, 22)

	_, err := env.Proofs.Submit(context.Background(), actor.Advertiser(b.AdvertiserID), b.ID, photos)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = env.Proofs.Submit(context.Background(), actor.Owner(b.OwnerID), b.ID, proofs.SubmitProofRequest{})
	assert.Error(t, err)
}

func TestAutoApproveAfterReviewWindow(t *testing.T) {
	env := testutil.NewEngine(t)
	space, b := submitted(t, env)

	assert.Zero(t, env.RunJobs(t, 47*time.Hour))
	assert.Equal(t, bookings.StatusAwaitingProof, env.Reload(t, b.ID).Status)

	assert.Positive(t, env.RunJobs(t, time.Hour))
	// later sweeps find nothing left to approve
	env.RunJobs(t, time.Hour)
	env.RunJobs(t, 24*time.Hour)

	proof, err := env.Proofs.Get(context.Background(), actor.Admin(uuid.New()), b.ID)
	require.NoError(t, err)
	assert.Equal(t, proofs.StatusApproved, proof.Status)
	assert.Equal(t, string(actor.TypeSystem), proof.ReviewerType)
	assert.Equal(t, 1, countActions(t, env, b.ID, "proof_approved"))

	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusCompleted, b.Status)

	list, err := env.Payouts.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, payouts.Stage1, list[0].Stage)
	assert.Equal(t, payouts.StatusCompleted, list[0].Status)
	assert.Equal(t, b.PayoutAmount, list[0].PaidAmount)
	assert.Equal(t, b.PayoutAmount, env.Sandbox.TransferredTo(space.OwnerPayoutAccount))
	assert.Equal(t, 1, env.Sandbox.TransferRequests())
}

func TestManualApproveRacesTimer(t *testing.T) {
	env := testutil.NewEngine(t)
	space, b := submitted(t, env)
	env.Clock.Advance(48 * time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = env.Proofs.Approve(ctx, actor.Advertiser(b.AdvertiserID), b.ID)
	}()
	go func() {
		defer wg.Done()
		results[1] = env.Proofs.AutoApproveHandler(ctx, jobs.ScheduledJob{BookingID: b.ID, Kind: jobs.KindProofAutoApprove})
	}()
	wg.Wait()

	for _, err := range results {
		if err != nil {
			assert.Equal(t, errs.KindRaceLost, errs.KindOf(err))
		}
	}
	env.RunJobs(t, time.Minute)

	assert.Equal(t, 1, countActions(t, env, b.ID, "proof_approved"))
	list, err := env.Payouts.ListByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, env.Sandbox.TransferRequests())
	assert.Equal(t, env.Reload(t, b.ID).PayoutAmount, env.Sandbox.TransferredTo(space.OwnerPayoutAccount))
}

func TestApproveIsIdempotent(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)
	ctx := context.Background()
	advertiser := actor.Advertiser(b.AdvertiserID)

	first, err := env.Proofs.Approve(ctx, advertiser, b.ID)
	require.NoError(t, err)
	second, err := env.Proofs.Approve(ctx, advertiser, b.ID)
	require.NoError(t, err)

	assert.Equal(t, proofs.StatusApproved, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.Sandbox.TransferRequests())

	_, err = env.Proofs.Approve(ctx, actor.Owner(b.OwnerID), b.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestCorrectionStopsTimerUntilResubmitted(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)
	ctx := context.Background()

	proof, err := env.Proofs.RequestCorrection(ctx, actor.Advertiser(b.AdvertiserID), b.ID, proofs.ReviewRequest{Reason: "logo is cropped"})
	require.NoError(t, err)
	assert.Equal(t, proofs.StatusCorrectionRequested, proof.Status)

	assert.Zero(t, env.RunJobs(t, 72*time.Hour))
	assert.Equal(t, bookings.StatusAwaitingProof, env.Reload(t, b.ID).Status)

	proof, err = env.Proofs.Submit(ctx, actor.Owner(b.OwnerID), b.ID, photos)
	require.NoError(t, err)
	assert.Equal(t, 2, proof.Revision)
	assert.Equal(t, proofs.StatusPending, proof.Status)
	assert.Empty(t, proof.ReviewNotes)

	env.RunJobs(t, 48*time.Hour)
	assert.Equal(t, bookings.StatusCompleted, env.Reload(t, b.ID).Status)
}

func TestPendingProofCannotBeReplaced(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)

	_, err := env.Proofs.Submit(context.Background(), actor.Owner(b.OwnerID), b.ID, photos)
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))
}

func TestRejectedProofCanBeResubmitted(t *testing.T) {
	env := testutil.NewEngine(t)
	_, b := submitted(t, env)
	ctx := context.Background()

	_, err := env.Proofs.MarkUnderReview(ctx, actor.Advertiser(b.AdvertiserID), b.ID)
	require.NoError(t, err)
	proof, err := env.Proofs.Reject(ctx, actor.Advertiser(b.AdvertiserID), b.ID, proofs.ReviewRequest{Reason: "wrong billboard"})
	require.NoError(t, err)
	assert.Equal(t, proofs.StatusRejected, proof.Status)

	_, err = env.Proofs.Reject(ctx, actor.Advertiser(b.AdvertiserID), b.ID, proofs.ReviewRequest{Reason: "still wrong"})
	assert.Equal(t, errs.KindInvalidTransition, errs.KindOf(err))

	proof, err = env.Proofs.Submit(ctx, actor.Owner(b.OwnerID), b.ID, photos)
	require.NoError(t, err)
	assert.Equal(t, 2, proof.Revision)
	assert.Equal(t, 1, countActions(t, env, b.ID, "proof_rejected"))
	assert.Equal(t, 2, countActions(t, env, b.ID, "proof_submitted"))
}

func withStages(stage1Percent int64) func(*config.Config) {
	return func(cfg *config.Config) {
		cfg.Marketplace.PayoutStage1Percent = stage1Percent
	}
}

func TestStagedApprovalMovesToVerified(t *testing.T) {
	env := testutil.NewEngine(t, withStages(70))
	_, b := submitted(t, env)

	_, err := env.Proofs.Approve(context.Background(), actor.Advertiser(b.AdvertiserID), b.ID)
	require.NoError(t, err)
	b = env.Reload(t, b.ID)
	assert.Equal(t, bookings.StatusVerified, b.Status)

	list, err := env.Payouts.ListByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	stage1, _ := payouts.Split(b.PayoutAmount, 70)
	assert.Equal(t, stage1, list[0].Amount)
	assert.Equal(t, payouts.StatusCompleted, list[0].Status)
}
