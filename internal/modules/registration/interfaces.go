package registration

import (
	"context"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/modules/ledger"
)

// SeatLedger is the part of the ledger the state machine drives.
type SeatLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, optionID string) (ledger.Seat, error)
	Release(ctx context.Context, tx *gorm.DB, optionID string, wasPending bool) (ledger.ReleaseResult, error)
	ConfirmReserved(ctx context.Context, tx *gorm.DB, optionID string) (ledger.ReleaseResult, error)
	CheckIn(ctx context.Context, tx *gorm.DB, optionID string) error
	UndoCheckIn(ctx context.Context, tx *gorm.DB, optionID string) (ledger.ReleaseResult, error)
}

// StatusPublisher is told about every committed transition.
type StatusPublisher interface {
	PublishRegistration(reg *domain.Registration)
}
