package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/clock"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry describes a timeline event before it is persisted.
type Entry struct {
	BookingID  uuid.UUID
	Category   Category
	Type       EventType
	Action     string
	FromStatus string
	ToStatus   string
	Actor      actor.Actor
	Message    string
	Metadata   map[string]interface{}
}

type Recorder struct {
	clock clock.Clock
}

func NewRecorder(clk clock.Clock) *Recorder {
	return &Recorder{clock: clk}
}

// Record appends the entry using tx so the event commits or rolls back with
// the mutation it describes.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, e Entry) (*TimelineEvent, error) {
	event := &TimelineEvent{
		BookingID:  e.BookingID,
		Category:   e.Category,
		Type:       e.Type,
		Action:     e.Action,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ActorType:  string(e.Actor.Type),
		Message:    e.Message,
		OccurredAt: r.clock.Now(),
	}
	if event.Type == "" {
		event.Type = TypeInfo
	}
	if event.ActorType == "" {
		event.ActorType = string(actor.TypeSystem)
	}
	if e.Actor.ID != uuid.Nil {
		id := e.Actor.ID
		event.ActorID = &id
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode timeline metadata: %w", err)
		}
		event.Metadata = datatypes.JSON(raw)
	}

	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record timeline event: %w", err)
	}
	return event, nil
}
