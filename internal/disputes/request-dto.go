package disputes

// OpenDisputeRequest represents an advertiser's complaint about a booking
type OpenDisputeRequest struct {
	IssueType IssueType `json:"issue_type" validate:"required,oneof=DAMAGE MISLEADING_LISTING NOT_VISIBLE POOR_QUALITY SAFETY WRONG_LOCATION"`
	Reason    string    `json:"reason" validate:"required,min=10,max=2000"`
	Photos    []string  `json:"photos" validate:"max=20,dive,required,url"`
}

// ResolveRequest represents the admin's decision. RefundAmount applies to the
// refund action; 0 refunds everything still refundable.
type ResolveRequest struct {
	Action       Action `json:"action" validate:"required,oneof=reinstate refund reject_dispute"`
	Notes        string `json:"notes" validate:"required,min=3,max=2000"`
	RefundAmount int64  `json:"refund_amount" validate:"gte=0"`
}
