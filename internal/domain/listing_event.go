package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing event types written to the audit trail.
const (
	EventCreated      = "CREATED"
	EventUpdated      = "UPDATED"
	EventDeleted      = "DELETED"
	EventRequested    = "REQUESTED"
	EventApproved     = "APPROVED"
	EventRejected     = "REJECTED"
	EventAutoRejected = "AUTO_REJECTED"
)

type ListingEvent struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	RequestID *uuid.UUID     `gorm:"column:request_id;type:uuid" json:"request_id,omitempty"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	ActorID   uuid.UUID      `gorm:"column:actor_id;type:uuid;not null" json:"actor_id"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (ListingEvent) TableName() string {
	return "listing_events"
}

func (le *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if le.ID == uuid.Nil {
		le.ID = uuid.New()
	}
	if len(le.EventData) == 0 {
		le.EventData = datatypes.JSON("{}")
	}
	return nil
}
