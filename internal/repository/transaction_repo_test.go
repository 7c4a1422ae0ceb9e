package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/repository"
	"eventreg/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestTransactionLookups(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTransactionRepository(db)
	ctx := context.Background()

	txn := &domain.Transaction{
		TenantID:               "t1",
		RegistrationID:         "r1",
		Type:                   domain.TransactionTypeRegistration,
		Method:                 domain.TransactionMethodStripe,
		Status:                 domain.TransactionPending,
		Amount:                 1000,
		Currency:               "eur",
		GatewaySessionID:       strPtr("cs_1"),
		GatewayPaymentIntentID: strPtr("pi_1"),
	}
	require.NoError(t, repo.Create(ctx, txn))

	got, err := repo.FindForSession(ctx, txn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	got, err = repo.FindForSession(ctx, "unknown", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	_, err = repo.FindForSession(ctx, "", "cs_missing")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	got, err = repo.FindForCharge(ctx, "ch_unknown", "pi_1", "")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	changed, err := repo.MarkSuccessful(ctx, txn.ID, "ch_1", "", "")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkSuccessful(ctx, txn.ID, "ch_1", "", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkCancelled(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = repo.FindForCharge(ctx, "ch_1", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSuccessful, got.Status)

	paid, err := repo.FindSuccessfulPayment(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, paid.ID)

	require.NoError(t, repo.UpdateFees(ctx, txn.ID, 936, 35, 29))
	got, err = repo.LockByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NetAmount)
	assert.Equal(t, int64(936), *got.NetAmount)
	assert.Equal(t, int64(29), got.GatewayFee)
}

func TestListStalePending(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTransactionRepository(db)
	ctx := context.Background()

	old := &domain.Transaction{TenantID: "t", RegistrationID: "r1", Type: domain.TransactionTypeRegistration,
		Method: domain.TransactionMethodStripe, Status: domain.TransactionPending, Amount: 1, Currency: "eur"}
	fresh := &domain.Transaction{TenantID: "t", RegistrationID: "r2", Type: domain.TransactionTypeRegistration,
		Method: domain.TransactionMethodStripe, Status: domain.TransactionPending, Amount: 1, Currency: "eur"}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, db.Model(old).UpdateColumn("created_at", time.Now().Add(-2*time.Hour)).Error)

	stale, err := repo.ListStalePending(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestProcessedEventRecordDedupes(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewProcessedEventRepository(db)
	ctx := context.Background()

	mk := func() *domain.ProcessedEvent {
		return &domain.ProcessedEvent{Provider: "stripe", EventID: "evt_1", EventType: "checkout.session.completed",
			Payload: datatypes.JSON(`{}`), ReceivedAt: time.Now()}
	}

	first, created, err := repo.Record(ctx, mk())
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, repo.MarkProcessed(ctx, first.ID, time.Now()))

	second, created, err := repo.Record(ctx, mk())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.NotNil(t, second.ProcessedAt)
}
