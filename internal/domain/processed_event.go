package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessedEvent dedupes gateway webhook deliveries on (provider, event_id).
type ProcessedEvent struct {
	ID           string         `gorm:"type:varchar(36);primaryKey"`
	Provider     string         `gorm:"type:varchar(32);not null;uniqueIndex:idx_processed_events_provider_event,priority:1"`
	EventID      string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_processed_events_provider_event,priority:2"`
	EventType    string         `gorm:"type:varchar(64);not null"`
	Payload      datatypes.JSON `gorm:"not null"`
	ReceivedAt   time.Time      `gorm:"not null"`
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:text"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

func (e *ProcessedEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
