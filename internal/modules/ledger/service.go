// Package ledger owns the spot counters of registration options. Every call
// takes the caller's transaction so a seat change commits together with the
// registration row that caused it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventreg/internal/domain"
	"eventreg/internal/pkg/apperr"
)

const (
	colReserved  = "reserved_spots"
	colConfirmed = "confirmed_spots"
	colCheckedIn = "checked_in_spots"
)

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// Seat is one reserved unit of capacity.
type Seat struct {
	OptionID string
	// Pending is true when the seat sits in reserved_spots awaiting payment.
	Pending bool
}

type ReleaseResult struct {
	// Clamped means the counter was already zero and nothing was released.
	Clamped bool
}

// Counters is a read-only view of an option's capacity.
type Counters struct {
	Spots     int
	Reserved  int
	Confirmed int
	CheckedIn int
}

func (c Counters) Free() int { return c.Spots - c.Reserved - c.Confirmed }

// Reserve takes one seat. Paid options hold it in reserved_spots until the
// payment settles, free ones go straight to confirmed_spots.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, optionID string) (Seat, error) {
	opt, err := s.lock(ctx, tx, optionID)
	if err != nil {
		return Seat{}, err
	}

	col := colConfirmed
	if opt.IsPaid {
		col = colReserved
	}

	res := tx.WithContext(ctx).Model(&domain.RegistrationOption{}).
		Where("id = ? AND reserved_spots + confirmed_spots < spots", optionID).
		UpdateColumn(col, gorm.Expr(col+" + 1"))
	if res.Error != nil {
		return Seat{}, fmt.Errorf("reserve spot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Seat{}, apperr.ConflictErr(apperr.CodeEventFull, ErrEventFull, "this registration option is full")
	}

	return Seat{OptionID: optionID, Pending: opt.IsPaid}, nil
}

// Release gives back one seat taken by Reserve. A counter already at zero is
// left alone and reported as clamped.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, optionID string, wasPending bool) (ReleaseResult, error) {
	if _, err := s.lock(ctx, tx, optionID); err != nil {
		return ReleaseResult{}, err
	}

	col := colConfirmed
	if wasPending {
		col = colReserved
	}
	return s.decrement(ctx, tx, optionID, col)
}

// ConfirmReserved moves a settled seat from reserved to confirmed.
func (s *Service) ConfirmReserved(ctx context.Context, tx *gorm.DB, optionID string) (ReleaseResult, error) {
	if _, err := s.lock(ctx, tx, optionID); err != nil {
		return ReleaseResult{}, err
	}

	res, err := s.decrement(ctx, tx, optionID, colReserved)
	if err != nil {
		return ReleaseResult{}, err
	}

	// After a clamped decrement the seat is taken from free capacity, which
	// may no longer have room.
	up := tx.WithContext(ctx).Model(&domain.RegistrationOption{}).
		Where("id = ? AND reserved_spots + confirmed_spots < spots", optionID).
		UpdateColumn(colConfirmed, gorm.Expr(colConfirmed+" + 1"))
	if up.Error != nil {
		return ReleaseResult{}, fmt.Errorf("confirm spot: %w", up.Error)
	}
	if up.RowsAffected == 0 {
		return ReleaseResult{}, apperr.ConflictErr(apperr.CodeEventFull,
			fmt.Errorf("%w: %w", ErrEventFull, ErrCounterUnderflow), "this registration option is full")
	}
	return res, nil
}

// UndoCheckIn gives back the checked-in count of a confirmed seat that is
// being cancelled.
func (s *Service) UndoCheckIn(ctx context.Context, tx *gorm.DB, optionID string) (ReleaseResult, error) {
	if _, err := s.lock(ctx, tx, optionID); err != nil {
		return ReleaseResult{}, err
	}
	return s.decrement(ctx, tx, optionID, colCheckedIn)
}

func (s *Service) CheckIn(ctx context.Context, tx *gorm.DB, optionID string) error {
	if _, err := s.lock(ctx, tx, optionID); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Model(&domain.RegistrationOption{}).
		Where("id = ? AND checked_in_spots < confirmed_spots", optionID).
		UpdateColumn(colCheckedIn, gorm.Expr(colCheckedIn+" + 1"))
	if res.Error != nil {
		return fmt.Errorf("check in spot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ConflictErr("", ErrCheckInOverflow, "no confirmed spot left to check in")
	}
	return nil
}

func (s *Service) Counters(ctx context.Context, optionID string) (Counters, error) {
	var opt domain.RegistrationOption
	err := s.db.WithContext(ctx).First(&opt, "id = ?", optionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Counters{}, apperr.NotFoundErr(ErrOptionNotFound, "registration option not found")
	}
	if err != nil {
		return Counters{}, fmt.Errorf("load counters: %w", err)
	}
	return Counters{
		Spots:     opt.Spots,
		Reserved:  opt.ReservedSpots,
		Confirmed: opt.ConfirmedSpots,
		CheckedIn: opt.CheckedInSpots,
	}, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, optionID string) (*domain.RegistrationOption, error) {
	var opt domain.RegistrationOption
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&opt, "id = ?", optionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr(ErrOptionNotFound, "registration option not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock registration option: %w", err)
	}
	return &opt, nil
}

func (s *Service) decrement(ctx context.Context, tx *gorm.DB, optionID, col string) (ReleaseResult, error) {
	res := tx.WithContext(ctx).Model(&domain.RegistrationOption{}).
		Where("id = ? AND "+col+" > 0", optionID).
		UpdateColumn(col, gorm.Expr(col+" - 1"))
	if res.Error != nil {
		return ReleaseResult{}, fmt.Errorf("release spot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Error("spot counter underflow clamped",
			"option_id", optionID,
			"counter", col,
			"err", ErrCounterUnderflow,
		)
		return ReleaseResult{Clamped: true}, nil
	}
	return ReleaseResult{}, nil
}
