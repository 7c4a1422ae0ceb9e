package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant is resolved by the identity layer; the engine only reads it.
type Tenant struct {
	ID                        string                                 `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name                      string                                 `gorm:"type:varchar(255);not null" json:"name"`
	Currency                  string                                 `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	StripeAccountID           string                                 `gorm:"type:varchar(64)" json:"stripe_account_id"`
	ApplicationFeePercent     float64                                `gorm:"not null;default:0" json:"application_fee_percent"`
	EnabledDiscountProviders  datatypes.JSONSlice[string]            `json:"enabled_discount_providers"`
	DefaultCancellationPolicy datatypes.JSONType[CancellationPolicy] `json:"default_cancellation_policy"`
	CreatedAt                 time.Time                              `json:"created_at"`
	UpdatedAt                 time.Time                              `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

func (t *Tenant) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
