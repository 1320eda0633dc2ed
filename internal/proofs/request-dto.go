package proofs

// SubmitProofRequest represents the owner's installation evidence
type SubmitProofRequest struct {
	Photos []string `json:"photos" validate:"required,min=1,max=20,dive,required,url"`
	Notes  string   `json:"notes" validate:"max=2000"`
}

// ReviewRequest carries the reviewer's reason for a correction or rejection
type ReviewRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}
