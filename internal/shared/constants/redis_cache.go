package constants

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Redis Cache Configuration
// Pattern: adspace:{module}:{operation}:{identifier}:{params?}
//
// Only read models live here. Availability checks and booking state are always
// read from the database so a cached answer can never admit a double booking.

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_DYNAMIC_MEDIUM  = 10 * time.Minute
	TTL_DYNAMIC_SHORT   = 5 * time.Minute
	TTL_REALTIME_MEDIUM = 1 * time.Minute
	TTL_REALTIME_SHORT  = 30 * time.Second
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "adspace"
)

// ================== SPACES MODULE ==================

const (
	CACHE_KEY_SPACE_CALENDAR = CACHE_PREFIX + ":spaces:calendar:uuid:" // + space-id:from:to
)

const (
	TTL_SPACE_CALENDAR = TTL_DYNAMIC_SHORT
)

// ================== ADMIN MODULE ==================

const (
	CACHE_KEY_PAYMENT_FLOWS = CACHE_PREFIX + ":admin:payment_flows:" // + query hash
)

const (
	TTL_PAYMENT_FLOWS = TTL_REALTIME_SHORT
)

// ================== CACHE INVALIDATION PATTERNS ==================

const (
	PATTERN_INVALIDATE_PAYMENT_FLOWS = CACHE_KEY_PAYMENT_FLOWS + "*"
)

// ================== HELPER FUNCTIONS ==================

// BuildSpaceCalendarKey -> "adspace:spaces:calendar:uuid:<id>:2025-01-01:2025-03-01"
func BuildSpaceCalendarKey(spaceID string, from, to time.Time) string {
	return CACHE_KEY_SPACE_CALENDAR + spaceID + ":" + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
}

func PatternInvalidateSpaceCalendar(spaceID string) string {
	return CACHE_KEY_SPACE_CALENDAR + spaceID + ":*"
}

// BuildPaymentFlowsKey hashes the list filters so arbitrary search strings stay
// out of the key space.
func BuildPaymentFlowsKey(status, payoutStatus, search string, page, limit int) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%d", status, payoutStatus, search, page, limit)
	sum := sha1.Sum([]byte(raw))
	return CACHE_KEY_PAYMENT_FLOWS + hex.EncodeToString(sum[:])
}
