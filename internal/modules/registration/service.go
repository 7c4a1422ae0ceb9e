// Package registration is the lifecycle of a single registration row:
// PENDING -> CONFIRMED -> CANCELLED. Transitions are guarded by the prior
// status so replays and races never touch the ledger twice.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventreg/internal/database"
	"eventreg/internal/domain"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/pkg/apperr"
)

type Service struct {
	db        *gorm.DB
	ledger    SeatLedger
	publisher StatusPublisher
	logger    *slog.Logger
}

func NewService(db *gorm.DB, ledger SeatLedger, publisher StatusPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, ledger: ledger, publisher: publisher, logger: logger}
}

type CreateInput struct {
	TenantID string
	UserID   string
	EventID  string
	Option   *domain.RegistrationOption
	Price    pricing.Price
	Policy   domain.CancellationPolicy
}

// Transition reports whether a call changed anything. Changed is false for
// replays of a transition that already happened.
type Transition struct {
	Registration *domain.Registration
	Changed      bool
}

type StatusView struct {
	IsRegistered  bool                  `json:"isRegistered"`
	Registrations []domain.Registration `json:"registrations"`
}

// Create reserves a seat and inserts the registration. Free seats are
// CONFIRMED straight away, paid ones stay PENDING until payment settles.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, in CreateInput) (*domain.Registration, error) {
	var active int64
	err := tx.WithContext(ctx).Model(&domain.Registration{}).
		Where("user_id = ? AND event_id = ? AND status <> ?", in.UserID, in.EventID, domain.RegistrationCancelled).
		Count(&active).Error
	if err != nil {
		return nil, fmt.Errorf("check existing registration: %w", err)
	}
	if active > 0 {
		return nil, alreadyRegistered(nil)
	}

	seat, err := s.ledger.Reserve(ctx, tx, in.Option.ID)
	if err != nil {
		return nil, err
	}

	status := domain.RegistrationConfirmed
	if seat.Pending {
		status = domain.RegistrationPending
	}

	reg := &domain.Registration{
		TenantID:                    in.TenantID,
		UserID:                      in.UserID,
		EventID:                     in.EventID,
		RegistrationOptionID:        in.Option.ID,
		Status:                      status,
		BasePriceAtRegistration:     in.Price.Base,
		AppliedDiscountType:         in.Price.DiscountType,
		AppliedDiscountedPrice:      in.Price.DiscountedPrice,
		EffectiveCancellationPolicy: datatypes.NewJSONType(in.Policy),
	}
	if err := tx.WithContext(ctx).Create(reg).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, alreadyRegistered(err)
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

// Confirm settles a PENDING registration and moves its seat to confirmed.
func (s *Service) Confirm(ctx context.Context, tx *gorm.DB, id string) (Transition, error) {
	reg, err := s.lock(ctx, tx, id)
	if err != nil {
		return Transition{}, err
	}

	switch reg.Status {
	case domain.RegistrationConfirmed:
		return Transition{Registration: reg}, nil
	case domain.RegistrationCancelled:
		return Transition{Registration: reg}, apperr.ConflictErr("", ErrInvalidTransition, "registration was cancelled")
	}

	if err := s.move(ctx, tx, reg, domain.RegistrationPending, map[string]any{
		"status": domain.RegistrationConfirmed,
	}); err != nil {
		return Transition{}, err
	}
	if _, err := s.ledger.ConfirmReserved(ctx, tx, reg.RegistrationOptionID); err != nil {
		return Transition{}, err
	}

	reg.Status = domain.RegistrationConfirmed
	return Transition{Registration: reg, Changed: true}, nil
}

// Cancel moves a registration from `from` to CANCELLED and frees its seat.
// An already cancelled registration is a no-op.
func (s *Service) Cancel(ctx context.Context, tx *gorm.DB, id string, from domain.RegistrationStatus, reason string) (Transition, error) {
	reg, err := s.lock(ctx, tx, id)
	if err != nil {
		return Transition{}, err
	}

	if reg.Status == domain.RegistrationCancelled {
		return Transition{Registration: reg}, nil
	}
	if reg.Status != from {
		return Transition{Registration: reg}, unexpectedStatus(reg.Status)
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":       domain.RegistrationCancelled,
		"cancelled_at": now,
	}
	if reason != "" {
		updates["cancellation_reason"] = reason
	}
	if err := s.move(ctx, tx, reg, from, updates); err != nil {
		return Transition{}, err
	}
	if _, err := s.ledger.Release(ctx, tx, reg.RegistrationOptionID, from == domain.RegistrationPending); err != nil {
		return Transition{}, err
	}
	if reg.CheckInTime != nil {
		if _, err := s.ledger.UndoCheckIn(ctx, tx, reg.RegistrationOptionID); err != nil {
			return Transition{}, err
		}
	}

	reg.Status = domain.RegistrationCancelled
	reg.CancelledAt = &now
	if reason != "" {
		reg.CancellationReason = &reason
	}
	return Transition{Registration: reg, Changed: true}, nil
}

// DeletePending undoes Create for a paid registration whose checkout could
// not be started.
func (s *Service) DeletePending(ctx context.Context, tx *gorm.DB, id string) error {
	reg, err := s.lock(ctx, tx, id)
	if err != nil {
		return err
	}
	if reg.Status != domain.RegistrationPending {
		return unexpectedStatus(reg.Status)
	}

	res := tx.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.RegistrationPending).
		Delete(&domain.Registration{})
	if res.Error != nil {
		return fmt.Errorf("delete pending registration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return unexpectedStatus(reg.Status)
	}

	_, err = s.ledger.Release(ctx, tx, reg.RegistrationOptionID, true)
	return err
}

func (s *Service) CheckIn(ctx context.Context, tx *gorm.DB, id string, at time.Time) (*domain.Registration, error) {
	reg, err := s.lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != domain.RegistrationConfirmed {
		return nil, unexpectedStatus(reg.Status)
	}
	if reg.CheckInTime != nil {
		return nil, apperr.ConflictErr("", ErrAlreadyCheckedIn, "registration already checked in")
	}

	res := tx.WithContext(ctx).Model(&domain.Registration{}).
		Where("id = ? AND check_in_time IS NULL", id).
		UpdateColumn("check_in_time", at)
	if res.Error != nil {
		return nil, fmt.Errorf("check in registration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ConflictErr("", ErrAlreadyCheckedIn, "registration already checked in")
	}
	if err := s.ledger.CheckIn(ctx, tx, reg.RegistrationOptionID); err != nil {
		return nil, err
	}

	reg.CheckInTime = &at
	return reg, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Registration, error) {
	var reg domain.Registration
	err := s.db.WithContext(ctx).First(&reg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr(ErrNotFound, "registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	return &reg, nil
}

func (s *Service) Status(ctx context.Context, userID, eventID string) (*StatusView, error) {
	var regs []domain.Registration
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Order("created_at DESC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}

	view := &StatusView{Registrations: regs}
	for _, r := range regs {
		if r.Status != domain.RegistrationCancelled {
			view.IsRegistered = true
			break
		}
	}
	return view, nil
}

// Notify publishes a committed transition. Call it after the transaction
// that produced reg has committed.
func (s *Service) Notify(reg *domain.Registration) {
	if s.publisher == nil || reg == nil {
		return
	}
	s.publisher.PublishRegistration(reg)
}

// Lock takes the registration's row lock inside tx. Paths that touch both a
// registration and its payment transaction lock the registration first, then
// the transaction; the option row is always locked last by the ledger.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id string) (*domain.Registration, error) {
	return s.lock(ctx, tx, id)
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, id string) (*domain.Registration, error) {
	var reg domain.Registration
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr(ErrNotFound, "registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock registration: %w", err)
	}
	return &reg, nil
}

func (s *Service) move(ctx context.Context, tx *gorm.DB, reg *domain.Registration, from domain.RegistrationStatus, updates map[string]any) error {
	res := tx.WithContext(ctx).Model(&domain.Registration{}).
		Where("id = ? AND status = ?", reg.ID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update registration status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Warn("registration status changed concurrently",
			"registration_id", reg.ID,
			"expected_status", from,
		)
		return unexpectedStatus(reg.Status)
	}
	return nil
}

func alreadyRegistered(err error) error {
	if err == nil {
		err = ErrAlreadyRegistered
	} else {
		err = errors.Join(ErrAlreadyRegistered, err)
	}
	return apperr.ConflictErr(apperr.CodeConflict, err, "you are already registered for this event")
}

func unexpectedStatus(current domain.RegistrationStatus) error {
	return apperr.ConflictErr("", fmt.Errorf("%w: status is %s", ErrUnexpectedStatus, current), "registration is no longer in the expected status")
}
