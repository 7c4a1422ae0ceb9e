package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DiscountCredentialStatus string

const (
	DiscountCredentialVerified DiscountCredentialStatus = "verified"
	DiscountCredentialPending  DiscountCredentialStatus = "pending"
	DiscountCredentialExpired  DiscountCredentialStatus = "expired"
)

// DiscountCredential is a card or membership that unlocks discounted prices
// (for example an ESNcard).
type DiscountCredential struct {
	ID         string                   `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string                   `gorm:"type:varchar(36);not null;index:idx_discount_credentials_owner" json:"tenant_id"`
	UserID     string                   `gorm:"type:varchar(36);not null;index:idx_discount_credentials_owner" json:"user_id"`
	Type       string                   `gorm:"type:varchar(64);not null" json:"type"`
	Identifier string                   `gorm:"type:varchar(128)" json:"identifier"`
	Status     DiscountCredentialStatus `gorm:"type:varchar(16);not null" json:"status"`
	ValidTo    *time.Time               `json:"valid_to,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

func (DiscountCredential) TableName() string { return "discount_credentials" }

func (d *DiscountCredential) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
