package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaxRate mirrors a gateway tax rate for one tenant.
type TaxRate struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_tax_rates_tenant_external" json:"tenant_id"`
	ExternalID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_tax_rates_tenant_external" json:"external_id"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	Inclusive   bool      `gorm:"not null" json:"inclusive"`
	Active      bool      `gorm:"not null" json:"active"`
	Percentage  float64   `gorm:"not null;default:0" json:"percentage"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (r *TaxRate) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Compatible reports whether the rate can back a paid registration option.
func (r *TaxRate) Compatible() bool {
	return r.Inclusive && r.Active
}
