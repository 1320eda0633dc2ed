package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"adspace/internal/shared/clock"
	"adspace/internal/shared/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(config.ProcessorConfig{
		WebhookSecret:   "whsec_test",
		CheckoutBaseURL: "https://pay.test/checkout",
		Currency:        "usd",
		FeeBasisPoints:  290,
		FeeFixedCents:   30,
	}, clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return sb
}

func TestTransferIsIdempotentPerKey(t *testing.T) {
	sb := newTestSandbox(t)
	ctx := context.Background()

	first, err := sb.Transfer(ctx, TransferRequest{IdempotencyKey: "k1", Destination: "acct_1", Amount: 500})
	require.NoError(t, err)
	again, err := sb.Transfer(ctx, TransferRequest{IdempotencyKey: "k1", Destination: "acct_1", Amount: 500})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(500), sb.TransferredTo("acct_1"))
	assert.Equal(t, 1, sb.TransferRequests())
}

func TestUnacknowledgedTransferCanBeLookedUp(t *testing.T) {
	sb := newTestSandbox(t)
	ctx := context.Background()
	sb.Inject(OpTransfer, Fault{Mode: FaultUnacknowledged})

	_, err := sb.Transfer(ctx, TransferRequest{IdempotencyKey: "k2", Destination: "acct_1", Amount: 700})
	assert.ErrorIs(t, err, ErrUnacknowledged)

	found, err := sb.LookupTransfer(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, int64(700), found.Paid)

	_, err = sb.LookupTransfer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnacknowledgedRefundExecutesOnce(t *testing.T) {
	sb := newTestSandbox(t)
	ctx := context.Background()
	sb.Inject(OpRefund, Fault{Mode: FaultUnavailable})
	sb.Inject(OpRefund, Fault{Mode: FaultUnacknowledged})

	_, err := sb.Refund(ctx, RefundRequest{IdempotencyKey: "r1", ChargeRef: "ch_1", Amount: 900})
	assert.Error(t, err)
	_, err = sb.LookupRefund(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, sb.RefundRequests())

	_, err = sb.Refund(ctx, RefundRequest{IdempotencyKey: "r1", ChargeRef: "ch_1", Amount: 900})
	assert.ErrorIs(t, err, ErrUnacknowledged)
	found, err := sb.LookupRefund(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), found.Amount)

	again, err := sb.Refund(ctx, RefundRequest{IdempotencyKey: "r1", ChargeRef: "ch_1", Amount: 900})
	require.NoError(t, err)
	assert.Equal(t, found.ID, again.ID)
	assert.Equal(t, 1, sb.RefundRequests())
}

func TestPartialAndDeclinedTransfers(t *testing.T) {
	sb := newTestSandbox(t)
	ctx := context.Background()
	sb.Inject(OpTransfer, Fault{Mode: FaultPartial, Amount: 200})
	sb.Inject(OpTransfer, Fault{Mode: FaultDecline, Code: "account_closed"})

	partial, err := sb.Transfer(ctx, TransferRequest{IdempotencyKey: "a", Destination: "d", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, TransferPartial, partial.Status)
	assert.Equal(t, int64(200), partial.Paid)

	_, err = sb.Transfer(ctx, TransferRequest{IdempotencyKey: "b", Destination: "d", Amount: 800})
	var decline *DeclineError
	require.True(t, errors.As(err, &decline))
	assert.Equal(t, "account_closed", decline.Code)
}

func TestCompleteCheckoutProducesVerifiableEvent(t *testing.T) {
	sb := newTestSandbox(t)
	sess, err := sb.CreateCheckoutSession(context.Background(), CheckoutRequest{
		IdempotencyKey: "checkout:1",
		CustomerRef:    "cus_1",
		Currency:       "usd",
		Lines:          []CheckoutLine{{Reference: "b1", Amount: 1200}, {Reference: "b2", Amount: 800}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), sess.AmountTotal)

	payload, header, err := sb.CompleteCheckout(sess.ID)
	require.NoError(t, err)
	require.NoError(t, Verify(payload, header, "whsec_test", 0, time.Now()))

	event, err := ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, sess.ID, event.Data.SessionID)
	assert.Equal(t, "pm_cus_1", event.Data.PaymentMethodRef)
}

func TestEstimateFee(t *testing.T) {
	sb := newTestSandbox(t)
	assert.Equal(t, int64(0), sb.EstimateFee(0))
	assert.Equal(t, int64(320), sb.EstimateFee(10000))
}
