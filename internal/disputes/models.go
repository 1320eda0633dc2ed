package disputes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IssueType string

const (
	IssueDamage            IssueType = "DAMAGE"
	IssueMisleadingListing IssueType = "MISLEADING_LISTING"
	IssueNotVisible        IssueType = "NOT_VISIBLE"
	IssuePoorQuality       IssueType = "POOR_QUALITY"
	IssueSafety            IssueType = "SAFETY"
	IssueWrongLocation     IssueType = "WRONG_LOCATION"
)

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

type Action string

const (
	ActionReinstate     Action = "reinstate"
	ActionRefund        Action = "refund"
	ActionRejectDispute Action = "reject_dispute"
)

// BookingDispute freezes a booking until an admin resolves it. At most one
// dispute per booking is OPEN at a time.
type BookingDispute struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID         uuid.UUID      `gorm:"type:uuid;not null;index;index:idx_disputes_open_booking,unique,where:status = 'OPEN'" json:"booking_id"`
	ProofID           *uuid.UUID     `gorm:"type:uuid" json:"proof_id,omitempty"`
	RaisedByType      string         `gorm:"type:varchar(20);not null" json:"raised_by_type"`
	RaisedByID        *uuid.UUID     `gorm:"type:uuid" json:"raised_by_id,omitempty"`
	IssueType         IssueType      `gorm:"type:varchar(32);not null" json:"issue_type"`
	Reason            string         `gorm:"type:text;not null" json:"reason"`
	Photos            datatypes.JSON `json:"photos,omitempty"`
	Status            Status         `gorm:"type:varchar(10);index;not null" json:"status"`
	ResumeStatus      string         `gorm:"type:varchar(20);not null" json:"resume_status"`
	ProofResumeStatus string         `gorm:"type:varchar(24)" json:"proof_resume_status,omitempty"`
	ResolutionAction  Action         `gorm:"type:varchar(20)" json:"resolution_action,omitempty"`
	ResolutionNotes   string         `gorm:"type:text" json:"resolution_notes,omitempty"`
	RefundAmount      int64          `gorm:"not null;default:0" json:"refund_amount"`
	ResolvedByID      *uuid.UUID     `gorm:"type:uuid" json:"resolved_by_id,omitempty"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (BookingDispute) TableName() string {
	return "booking_disputes"
}

func (d *BookingDispute) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
