package bookings

import (
	"time"

	"github.com/google/uuid"
)

// StatusResponse is the short-poll view of a booking
type StatusResponse struct {
	BookingID          uuid.UUID `json:"booking_id"`
	Status             Status    `json:"status"`
	NextStatuses       []Status  `json:"next_statuses"`
	BalanceChargeError string    `json:"balance_charge_error,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BookingList represents paginated bookings
type BookingList struct {
	Bookings   []Booking  `json:"bookings"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
