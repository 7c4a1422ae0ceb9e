package payment

import (
	"context"
	"time"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/modules/registration"
	"eventreg/internal/pkg/authz"
)

type priceResolver interface {
	ValidateTaxRate(ctx context.Context, tenantID string, isPaid bool, taxRateRef *string) error
	LoadEligibility(ctx context.Context, tenant authz.TenantContext, userID string, eventStart time.Time) (pricing.Eligibility, error)
}

type registrationMachine interface {
	Create(ctx context.Context, tx *gorm.DB, in registration.CreateInput) (*domain.Registration, error)
	Lock(ctx context.Context, tx *gorm.DB, id string) (*domain.Registration, error)
	Confirm(ctx context.Context, tx *gorm.DB, id string) (registration.Transition, error)
	Cancel(ctx context.Context, tx *gorm.DB, id string, from domain.RegistrationStatus, reason string) (registration.Transition, error)
	DeletePending(ctx context.Context, tx *gorm.DB, id string) error
	CheckIn(ctx context.Context, tx *gorm.DB, id string, at time.Time) (*domain.Registration, error)
	Get(ctx context.Context, id string) (*domain.Registration, error)
	Status(ctx context.Context, userID, eventID string) (*registration.StatusView, error)
	Notify(reg *domain.Registration)
}
