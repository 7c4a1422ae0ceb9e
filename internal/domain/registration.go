package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// Registration allows at most one non-cancelled row per (user, event); the
// partial unique index backs the check done in the registration module.
type Registration struct {
	ID                          string                                 `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID                    string                                 `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	UserID                      string                                 `gorm:"type:varchar(36);not null;uniqueIndex:idx_registrations_active_user_event,where:status <> 'CANCELLED'" json:"user_id"`
	EventID                     string                                 `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_registrations_active_user_event,where:status <> 'CANCELLED'" json:"event_id"`
	RegistrationOptionID        string                                 `gorm:"type:varchar(36);not null;index" json:"registration_option_id"`
	Status                      RegistrationStatus                     `gorm:"type:varchar(16);not null;index" json:"status"`
	BasePriceAtRegistration     int64                                  `gorm:"not null;default:0" json:"base_price_at_registration"`
	AppliedDiscountType         *string                                `gorm:"type:varchar(64)" json:"applied_discount_type,omitempty"`
	AppliedDiscountedPrice      *int64                                 `json:"applied_discounted_price,omitempty"`
	EffectiveCancellationPolicy datatypes.JSONType[CancellationPolicy] `json:"effective_cancellation_policy"`
	CheckInTime                 *time.Time                             `json:"check_in_time,omitempty"`
	CancelledAt                 *time.Time                             `json:"cancelled_at,omitempty"`
	CancellationReason          *string                                `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt                   time.Time                              `json:"created_at"`
	UpdatedAt                   time.Time                              `json:"updated_at"`
}

func (Registration) TableName() string { return "registrations" }

func (r *Registration) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
