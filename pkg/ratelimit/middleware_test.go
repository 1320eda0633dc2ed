package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRateLimitType(t *testing.T) {
	cases := map[string]RateLimitType{
		"/health":                           RateLimitTypeHealth,
		"/api/v1/payments/webhook":          RateLimitTypeWebhook,
		"/api/v1/admin/payment-flows":       RateLimitTypeAdmin,
		"/api/v1/admin/bookings/:id/refund": RateLimitTypeAdmin,
		"/api/v1/checkout/sessions":         RateLimitTypeBookingCritical,
		"/api/v1/bookings":                  RateLimitTypeBookingCritical,
		"/api/v1/bookings/:id/disputes":     RateLimitTypeBookingCritical,
		"/api/v1/bookings/:id/proof":        RateLimitTypeBooking,
		"/api/v1/campaigns/:id/bookings":    RateLimitTypeBookingCritical,
		"/api/v1/spaces/:id/availability":   RateLimitTypePublic,
		"/swagger/*any":                     RateLimitTypeDefault,
	}
	for path, want := range cases {
		assert.Equal(t, want, getRateLimitType(path), path)
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	rl := NewRateLimiter(nil, &Config{Enabled: false, DefaultRequests: 5})
	res, err := rl.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypeDefault)
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
}

func TestWhitelistedIPSkipsRedis(t *testing.T) {
	rl := NewRateLimiter(nil, &Config{Enabled: true, AdminRequests: 3, WhitelistedIPs: []string{"10.0.0.9"}})
	res, err := rl.IsAllowed(context.Background(), "10.0.0.9", RateLimitTypeAdmin)
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
}
