package webhook

import (
	"context"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/modules/registration"
)

type registrationMachine interface {
	Lock(ctx context.Context, tx *gorm.DB, id string) (*domain.Registration, error)
	Confirm(ctx context.Context, tx *gorm.DB, id string) (registration.Transition, error)
	Cancel(ctx context.Context, tx *gorm.DB, id string, from domain.RegistrationStatus, reason string) (registration.Transition, error)
	DeletePending(ctx context.Context, tx *gorm.DB, id string) error
	Notify(reg *domain.Registration)
}

type tenantReader interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}
