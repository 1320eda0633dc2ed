package proofs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending             Status = "PENDING"
	StatusUnderReview         Status = "UNDER_REVIEW"
	StatusApproved            Status = "APPROVED"
	StatusRejected            Status = "REJECTED"
	StatusCorrectionRequested Status = "CORRECTION_REQUESTED"
	StatusDisputed            Status = "DISPUTED"
)

// InReview reports whether the proof is waiting for the advertiser's decision.
func (s Status) InReview() bool {
	return s == StatusPending || s == StatusUnderReview
}

// Resubmittable reports whether the owner may replace the proof.
func (s Status) Resubmittable() bool {
	return s == StatusCorrectionRequested || s == StatusRejected
}

// BookingProof is the owner's installation evidence. There is one row per
// booking; a resubmission replaces it in place and bumps Revision.
type BookingProof struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID     uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"booking_id"`
	Photos        datatypes.JSON `gorm:"not null" json:"photos"`
	Notes         string         `gorm:"type:text" json:"notes,omitempty"`
	Revision      int            `gorm:"not null;default:1" json:"revision"`
	Status        Status         `gorm:"type:varchar(24);index;not null" json:"status"`
	SubmittedAt   time.Time      `gorm:"not null" json:"submitted_at"`
	AutoApproveAt time.Time      `gorm:"not null" json:"auto_approve_at"`
	ReviewerType  string         `gorm:"type:varchar(20)" json:"reviewer_type,omitempty"`
	ReviewerID    *uuid.UUID     `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes   string         `gorm:"type:text" json:"review_notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (BookingProof) TableName() string {
	return "booking_proofs"
}

func (p *BookingProof) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
