package cancellation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/ledger"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/modules/registration"
	"eventreg/internal/pkg/apperr"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/repository"
	"eventreg/internal/testutil"
)

type env struct {
	db     *gorm.DB
	fx     *testutil.Fixture
	gw     *testutil.MockGateway
	ledger *ledger.Service
	regs   *registration.Service
	svc    *Service
}

func newEnv(t *testing.T) *env {
	db := testutil.NewDB(t)
	log := testutil.Logger()
	l := ledger.NewService(db, log)
	regs := registration.NewService(db, l, nil, log)
	gw := &testutil.MockGateway{}
	t.Cleanup(func() { gw.AssertExpectations(t) })

	return &env{
		db:     db,
		fx:     testutil.NewFixture(t, db),
		gw:     gw,
		ledger: l,
		regs:   regs,
		svc:    NewService(db, gw, repository.NewTransactionRepository(db), regs, log),
	}
}

var (
	alice = authz.UserContext{ID: "alice"}
	staff = authz.UserContext{ID: "staff", Permissions: []authz.Permission{
		authz.PermCancelAnyRegistration,
		authz.PermSkipRefund,
	}}
)

// confirmed creates a CONFIRMED registration for alice. Paid options also
// get a settled payment of 1000 with fees 35 and 29.
func (e *env) confirmed(t *testing.T, opt *domain.RegistrationOption, policy domain.CancellationPolicy) *domain.Registration {
	t.Helper()
	ctx := context.Background()
	var reg *domain.Registration
	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = e.regs.Create(ctx, tx, registration.CreateInput{
			TenantID: e.fx.Tenant.ID,
			UserID:   alice.ID,
			EventID:  e.fx.Event.ID,
			Option:   opt,
			Price:    pricing.Price{Base: opt.Price, Effective: opt.Price},
			Policy:   policy,
		})
		if err != nil || !opt.IsPaid {
			return err
		}
		tr, err := e.regs.Confirm(ctx, tx, reg.ID)
		if err != nil {
			return err
		}
		reg = tr.Registration
		charge := "ch_1"
		return tx.Create(&domain.Transaction{
			TenantID:        e.fx.Tenant.ID,
			RegistrationID:  reg.ID,
			Type:            domain.TransactionTypeRegistration,
			Method:          domain.TransactionMethodStripe,
			Status:          domain.TransactionSuccessful,
			Amount:          opt.Price,
			Currency:        "eur",
			AppFee:          35,
			GatewayFee:      29,
			GatewayChargeID: &charge,
		}).Error
	}))
	return reg
}

func (e *env) status(t *testing.T, id string) domain.RegistrationStatus {
	t.Helper()
	var reg domain.Registration
	e.fx.Reload(t, &reg, id)
	return reg.Status
}

func (e *env) counters(t *testing.T, optionID string) ledger.Counters {
	t.Helper()
	c, err := e.ledger.Counters(context.Background(), optionID)
	require.NoError(t, err)
	return c
}

func TestRefundAmountPolicyCombinations(t *testing.T) {
	cases := []struct {
		appFees, txFees bool
		want            int64
	}{
		{false, false, 1000},
		{true, false, 1035},
		{false, true, 1029},
		{true, true, 1064},
	}
	for _, tc := range cases {
		policy := domain.CancellationPolicy{IncludeAppFees: tc.appFees, IncludeTransactionFees: tc.txFees}
		assert.Equal(t, tc.want, RefundAmount(1000, 35, 29, policy), "%+v", tc)
	}
}

func TestCheckCutoff(t *testing.T) {
	start := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	policy := domain.CancellationPolicy{AllowCancellation: true, CutoffDays: 2, CutoffHours: 6}
	deadline := time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, CheckCutoff(policy, start, deadline))
	assert.NoError(t, CheckCutoff(policy, start, deadline.Add(-time.Minute)))

	err := CheckCutoff(policy, start, deadline.Add(time.Second))
	assert.Equal(t, apperr.CodeCutoffPassed, apperr.Code(err))
	assert.True(t, apperr.IsKind(err, apperr.BadRequest))

	err = CheckCutoff(domain.CancellationPolicy{}, start, deadline.Add(-72*time.Hour))
	assert.Equal(t, apperr.CodeCancellationNotAllowed, apperr.Code(err))
}

func TestCancelPaidRefundsPerPolicy(t *testing.T) {
	e := newEnv(t)
	opt := e.fx.Option(t, 2, 1000)
	reg := e.confirmed(t, opt, domain.CancellationPolicy{AllowCancellation: true, IncludeAppFees: true, CutoffDays: 1})

	e.gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req gateway.RefundRequest) bool {
		return req.Account == "acct_test" &&
			req.ChargeID == "ch_1" &&
			req.Amount == 1035 &&
			req.RefundAppFee &&
			req.IdempotencyKey == "refund-"+reg.ID &&
			req.Metadata.RegistrationID == reg.ID
	})).Return(&gateway.Refund{ID: "re_1", Status: "succeeded"}, nil).Once()

	res, err := e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, reg.ID,
		Request{Reason: "ill", ReasonNote: "flu"})
	require.NoError(t, err)
	assert.Equal(t, &Result{RefundAmount: 1035, RefundIncludesAppFees: true}, res)

	var stored domain.Registration
	e.fx.Reload(t, &stored, reg.ID)
	assert.Equal(t, domain.RegistrationCancelled, stored.Status)
	require.NotNil(t, stored.CancellationReason)
	assert.Equal(t, "ill: flu", *stored.CancellationReason)
	assert.NotNil(t, stored.CancelledAt)
	assert.Equal(t, ledger.Counters{Spots: 2}, e.counters(t, opt.ID))

	var refund domain.Transaction
	require.NoError(t, e.db.First(&refund, "type = ?", domain.TransactionTypeRefund).Error)
	assert.Equal(t, int64(-1035), refund.Amount)
	assert.Equal(t, domain.TransactionSuccessful, refund.Status)
	require.NotNil(t, refund.GatewayRefundID)
	assert.Equal(t, "re_1", *refund.GatewayRefundID)
}

func TestCancelFreeSkipsGateway(t *testing.T) {
	e := newEnv(t)
	opt := e.fx.Option(t, 2, 0)
	reg := e.confirmed(t, opt, domain.CancellationPolicy{AllowCancellation: true})

	res, err := e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, reg.ID, Request{Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
	assert.Equal(t, domain.RegistrationCancelled, e.status(t, reg.ID))
	assert.Equal(t, ledger.Counters{Spots: 2}, e.counters(t, opt.ID))
	e.gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestRefundFailureLeavesRegistrationConfirmed(t *testing.T) {
	e := newEnv(t)
	opt := e.fx.Option(t, 2, 1000)
	reg := e.confirmed(t, opt, domain.CancellationPolicy{AllowCancellation: true})

	e.gw.On("CreateRefund", mock.Anything, mock.Anything).Return(nil, errors.New("card network down")).Once()

	_, err := e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, reg.ID, Request{Reason: "ill"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefundFailed)
	assert.Equal(t, apperr.CodeInternal, apperr.Code(err))

	assert.Equal(t, domain.RegistrationConfirmed, e.status(t, reg.ID))
	assert.Equal(t, ledger.Counters{Spots: 2, Confirmed: 1}, e.counters(t, opt.ID))

	var refunds int64
	require.NoError(t, e.db.Model(&domain.Transaction{}).Where("type = ?", domain.TransactionTypeRefund).Count(&refunds).Error)
	assert.Zero(t, refunds)
}

func TestCancelPastCutoffChangesNothing(t *testing.T) {
	e := newEnv(t)
	opt := e.fx.Option(t, 2, 1000)
	// The event starts in seven days.
	reg := e.confirmed(t, opt, domain.CancellationPolicy{AllowCancellation: true, CutoffDays: 8})

	_, err := e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, reg.ID, Request{Reason: "ill"})
	assert.Equal(t, apperr.CodeCutoffPassed, apperr.Code(err))
	assert.Equal(t, domain.RegistrationConfirmed, e.status(t, reg.ID))
	assert.Equal(t, ledger.Counters{Spots: 2, Confirmed: 1}, e.counters(t, opt.ID))
	e.gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestCancelAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	opt := e.fx.Option(t, 2, 1000)
	reg := e.confirmed(t, opt, domain.CancellationPolicy{AllowCancellation: true})
	tenant := e.fx.TenantContext()

	_, err := e.svc.CancelRegistration(ctx, tenant, authz.UserContext{ID: "mallory"}, reg.ID, Request{Reason: "x"})
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))

	_, err = e.svc.CancelRegistration(ctx, tenant, alice, reg.ID, Request{Reason: "x", SkipRefund: true})
	assert.ErrorIs(t, err, ErrSkipRefundForbidden)

	res, err := e.svc.CancelRegistration(ctx, tenant, staff, reg.ID, Request{Reason: "no show", SkipRefund: true})
	require.NoError(t, err)
	assert.Zero(t, res.RefundAmount)
	assert.Equal(t, domain.RegistrationCancelled, e.status(t, reg.ID))
	e.gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestCancelRequiresConfirmed(t *testing.T) {
	e := newEnv(t)
	opt := e.fx.Option(t, 2, 1000)

	var reg *domain.Registration
	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = e.regs.Create(context.Background(), tx, registration.CreateInput{
			TenantID: e.fx.Tenant.ID, UserID: alice.ID, EventID: e.fx.Event.ID, Option: opt,
			Price: pricing.Price{Base: 1000, Effective: 1000},
		})
		return err
	}))

	_, err := e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, reg.ID, Request{Reason: "x"})
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = e.svc.CancelRegistration(context.Background(), e.fx.TenantContext(), alice, "missing", Request{Reason: "x"})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}
