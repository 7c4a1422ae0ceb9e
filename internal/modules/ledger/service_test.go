package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/pkg/apperr"
	"eventreg/internal/testutil"
)

func TestReserveFreeAndPaidCounters(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	free := fx.Option(t, 5, 0)
	paid := fx.Option(t, 5, 1000)

	var freeSeat, paidSeat Seat
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		if freeSeat, err = svc.Reserve(ctx, tx, free.ID); err != nil {
			return err
		}
		paidSeat, err = svc.Reserve(ctx, tx, paid.ID)
		return err
	}))
	assert.False(t, freeSeat.Pending)
	assert.True(t, paidSeat.Pending)

	c, err := svc.Counters(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, Counters{Spots: 5, Confirmed: 1}, c)

	c, err = svc.Counters(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, Counters{Spots: 5, Reserved: 1}, c)
}

func TestReserveThenReleaseRestoresCounters(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	for _, price := range []int64{0, 1000} {
		opt := fx.Option(t, 3, price)
		before, err := svc.Counters(ctx, opt.ID)
		require.NoError(t, err)

		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			seat, err := svc.Reserve(ctx, tx, opt.ID)
			if err != nil {
				return err
			}
			res, err := svc.Release(ctx, tx, opt.ID, seat.Pending)
			assert.False(t, res.Clamped)
			return err
		}))

		after, err := svc.Counters(ctx, opt.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

// The test database has a single connection, so these transactions run one
// after another. It checks that exhaustion is reported as EVENT_FULL, not
// that two open transactions cannot both take the last seat; that rests on
// the conditional UPDATE, covered by TestReserveRechecksCapacityInUpdate.
func TestReserveLastSeatConcurrently(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	const seats = 5
	const attempts = 12
	opt := fx.Option(t, seats, 1000)

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Reserve(ctx, tx, opt.ID)
				return err
			})
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.Code(err) == apperr.CodeEventFull:
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(seats), ok.Load())
	assert.Equal(t, int32(attempts-seats), full.Load())

	c, err := svc.Counters(ctx, opt.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, c.Reserved+c.Confirmed)
	assert.Equal(t, 0, c.Free())
}

func TestReleaseClampsAtZero(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()
	opt := fx.Option(t, 2, 1000)

	var res ReleaseResult
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = svc.Release(ctx, tx, opt.ID, true)
		return err
	}))
	assert.True(t, res.Clamped)

	c, err := svc.Counters(ctx, opt.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Reserved)
}

func TestConfirmReservedAndCheckIn(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()
	opt := fx.Option(t, 2, 1000)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Reserve(ctx, tx, opt.ID); err != nil {
			return err
		}
		if _, err := svc.ConfirmReserved(ctx, tx, opt.ID); err != nil {
			return err
		}
		return svc.CheckIn(ctx, tx, opt.ID)
	}))

	c, err := svc.Counters(ctx, opt.ID)
	require.NoError(t, err)
	assert.Equal(t, Counters{Spots: 2, Confirmed: 1, CheckedIn: 1}, c)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.CheckIn(ctx, tx, opt.ID)
	})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestReserveUnknownOption(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, testutil.Logger())

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Reserve(context.Background(), tx, "missing")
		return err
	})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestReserveRechecksCapacityInUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()
	opt := fx.Option(t, 1, 1000)

	// Another writer takes the last seat after the option was read, the way
	// a concurrent transaction would.
	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := svc.lock(ctx, tx, opt.ID)
		require.NoError(t, err)
		require.Equal(t, 1, locked.Spots-locked.ReservedSpots-locked.ConfirmedSpots)

		require.NoError(t, tx.Model(&domain.RegistrationOption{}).
			Where("id = ?", opt.ID).
			UpdateColumn("reserved_spots", 1).Error)

		_, err = svc.Reserve(ctx, tx, opt.ID)
		return err
	})
	assert.Equal(t, apperr.CodeEventFull, apperr.Code(err))

	c, err := svc.Counters(ctx, opt.ID)
	require.NoError(t, err)
	assert.Equal(t, Counters{Spots: 1}, c)
}

func TestConfirmReservedNeverOverbooks(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()

	t.Run("clamped with room", func(t *testing.T) {
		opt := fx.Option(t, 2, 1000)
		var res ReleaseResult
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = svc.ConfirmReserved(ctx, tx, opt.ID)
			return err
		}))
		assert.True(t, res.Clamped)

		c, err := svc.Counters(ctx, opt.ID)
		require.NoError(t, err)
		assert.Equal(t, Counters{Spots: 2, Confirmed: 1}, c)
	})

	t.Run("clamped and full", func(t *testing.T) {
		opt := fx.Option(t, 1, 1000, func(o *domain.RegistrationOption) {
			o.ConfirmedSpots = 1
		})
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.ConfirmReserved(ctx, tx, opt.ID)
			return err
		})
		assert.Equal(t, apperr.CodeEventFull, apperr.Code(err))
		assert.ErrorIs(t, err, ErrCounterUnderflow)

		c, err := svc.Counters(ctx, opt.ID)
		require.NoError(t, err)
		assert.Equal(t, Counters{Spots: 1, Confirmed: 1}, c)
	})
}

func TestUndoCheckIn(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	svc := NewService(db, testutil.Logger())
	ctx := context.Background()
	opt := fx.Option(t, 2, 0, func(o *domain.RegistrationOption) {
		o.ConfirmedSpots = 1
		o.CheckedInSpots = 1
	})

	var res ReleaseResult
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = svc.UndoCheckIn(ctx, tx, opt.ID)
		return err
	}))
	assert.False(t, res.Clamped)

	c, err := svc.Counters(ctx, opt.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.CheckedIn)
}
