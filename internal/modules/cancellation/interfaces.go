package cancellation

import (
	"context"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/modules/registration"
)

type registrationMachine interface {
	Get(ctx context.Context, id string) (*domain.Registration, error)
	Lock(ctx context.Context, tx *gorm.DB, id string) (*domain.Registration, error)
	Cancel(ctx context.Context, tx *gorm.DB, id string, from domain.RegistrationStatus, reason string) (registration.Transition, error)
	Notify(reg *domain.Registration)
}
