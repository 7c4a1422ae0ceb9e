package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Start     time.Time `gorm:"not null" json:"start"`
	End       time.Time `gorm:"not null" json:"end"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
