package admin

// PaymentFlowQuery represents the filters of the payments console
type PaymentFlowQuery struct {
	Status       string `form:"status"`
	PayoutStatus string `form:"payout_status"`
	Search       string `form:"search"`
	Page         int    `form:"page"`
	Limit        int    `form:"limit"`
}

// NotesRequest carries the admin's reason for an override
type NotesRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}
