package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	header := Sign(payload, "whsec_test", now)
	require.NoError(t, Verify(payload, header, "whsec_test", 5*time.Minute, now.Add(time.Minute)))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Now()
	header := Sign([]byte(`{"amount":100}`), "whsec_test", now)

	err := Verify([]byte(`{"amount":1}`), header, "whsec_test", time.Minute, now)
	assert.ErrorIs(t, err, ErrBadSignature)

	err = Verify([]byte(`{"amount":100}`), header, "other", time.Minute, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsStaleAndMissingHeaders(t *testing.T) {
	now := time.Now()
	payload := []byte(`{}`)
	header := Sign(payload, "s", now.Add(-time.Hour))

	assert.ErrorIs(t, Verify(payload, header, "s", 5*time.Minute, now), ErrStaleSignature)
	assert.ErrorIs(t, Verify(payload, "", "s", time.Minute, now), ErrMissingSignature)
	assert.ErrorIs(t, Verify(payload, "t=1", "s", time.Minute, now), ErrMissingSignature)
}

func TestParseEventRequiresIDAndType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"x"}`))
	assert.Error(t, err)

	e, err := ParseEvent([]byte(`{"id":"evt_1","type":"charge.failed","data":{"failure_code":"card_declined"}}`))
	require.NoError(t, err)
	assert.Equal(t, "card_declined", e.Data.FailureCode)
}
