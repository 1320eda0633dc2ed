package payments

// CheckoutRequest represents the request to pay for approved bookings
type CheckoutRequest struct {
	BookingIDs []string `json:"booking_ids" validate:"required,min=1,max=20,dive,required"`
}

// RefundRequest represents an admin refund; Amount 0 refunds everything
// still refundable
type RefundRequest struct {
	Amount int64  `json:"amount" validate:"gte=0"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}
