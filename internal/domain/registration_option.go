package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DiscountRule struct {
	DiscountType    string `json:"discountType" validate:"required"`
	DiscountedPrice int64  `json:"discountedPrice" validate:"gte=0"`
}

// RegistrationOption carries the seat counters. Only the ledger module
// writes ReservedSpots, ConfirmedSpots and CheckedInSpots.
type RegistrationOption struct {
	ID                    string                            `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID              string                            `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	EventID               string                            `gorm:"type:varchar(36);not null;index" json:"event_id"`
	Title                 string                            `gorm:"type:varchar(255);not null" json:"title" validate:"required"`
	Spots                 int                               `gorm:"not null;default:0" json:"spots" validate:"gte=0"`
	ReservedSpots         int                               `gorm:"not null;default:0" json:"reserved_spots"`
	ConfirmedSpots        int                               `gorm:"not null;default:0" json:"confirmed_spots"`
	CheckedInSpots        int                               `gorm:"not null;default:0" json:"checked_in_spots"`
	IsPaid                bool                              `gorm:"not null;default:false" json:"is_paid"`
	Price                 int64                             `gorm:"not null;default:0" json:"price" validate:"gte=0"`
	TaxRateRef            *string                           `gorm:"type:varchar(64)" json:"tax_rate_ref,omitempty"`
	DiscountRules         datatypes.JSONSlice[DiscountRule] `json:"discount_rules" validate:"dive"`
	CancellationPolicy    *CancellationPolicy               `gorm:"serializer:json" json:"cancellation_policy,omitempty" validate:"omitempty"`
	OpenRegistrationTime  time.Time                         `gorm:"not null" json:"open_registration_time" validate:"required"`
	CloseRegistrationTime time.Time                         `gorm:"not null" json:"close_registration_time" validate:"required,gtfield=OpenRegistrationTime"`
	CreatedAt             time.Time                         `json:"created_at"`
	UpdatedAt             time.Time                         `json:"updated_at"`
}

func (RegistrationOption) TableName() string { return "registration_options" }

func (o *RegistrationOption) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *RegistrationOption) FreeSpots() int {
	return o.Spots - o.ReservedSpots - o.ConfirmedSpots
}

func (o *RegistrationOption) IsOpenAt(t time.Time) bool {
	return !t.Before(o.OpenRegistrationTime) && t.Before(o.CloseRegistrationTime)
}
