package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventreg/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: registrations.user_id")))
	assert.False(t, IsUniqueViolation(errors.New("no such table")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestActiveRegistrationIndexAllowsReRegistrationAfterCancel(t *testing.T) {
	db, err := Connect("file:database_test?mode=memory&cache=shared", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	base := domain.Registration{TenantID: "t", UserID: "u", EventID: "e", RegistrationOptionID: "o"}

	first := base
	first.Status = domain.RegistrationCancelled
	require.NoError(t, db.Create(&first).Error)

	second := base
	second.Status = domain.RegistrationConfirmed
	require.NoError(t, db.Create(&second).Error)

	third := base
	third.Status = domain.RegistrationPending
	err = db.Create(&third).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}
