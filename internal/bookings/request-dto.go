package bookings

// CreateBookingRequest represents a booking request for one space
type CreateBookingRequest struct {
	SpaceID    string `json:"space_id" validate:"required,uuid"`
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	StartDate  string `json:"start_date" validate:"required"`
	EndDate    string `json:"end_date" validate:"required"`
	Notes      string `json:"notes" validate:"max=2000"`
}

// ReasonRequest carries the mandatory reason of a reject or decline
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

// ListQuery represents query parameters for listing bookings
type ListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}
