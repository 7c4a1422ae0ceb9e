// Package payment turns a registration request into a seat and, for paid
// options, a gateway checkout session.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventreg/internal/domain"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/modules/registration"
	"eventreg/internal/pkg/apperr"
	"eventreg/internal/pkg/authz"
)

const (
	expireAttempts      = 2
	reasonPendingByUser = "cancelled before payment"
)

type Options struct {
	SuccessURL  string
	CancelURL   string
	CheckoutTTL time.Duration
}

type Service struct {
	db            *gorm.DB
	gateway       gateway.Gateway
	pricing       priceResolver
	registrations registrationMachine
	opts          Options
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(db *gorm.DB, gw gateway.Gateway, pricing priceResolver, registrations registrationMachine, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckoutTTL <= 0 {
		opts.CheckoutTTL = 30 * time.Minute
	}
	return &Service{
		db:            db,
		gateway:       gw,
		pricing:       pricing,
		registrations: registrations,
		opts:          opts,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterForEvent reserves a seat for user. Paid registrations come back
// PENDING with a checkout URL; if the checkout cannot be started the seat
// and the registration are rolled back before the error is returned.
func (s *Service) RegisterForEvent(ctx context.Context, tenant authz.TenantContext, user authz.UserContext, eventID, optionID string) (*RegisterResult, error) {
	opt, event, err := s.loadOption(ctx, tenant.ID, eventID, optionID)
	if err != nil {
		return nil, err
	}
	if !opt.IsOpenAt(s.now()) {
		return nil, apperr.BadRequestErr("", ErrRegistrationClosed, "registration for this option is not open")
	}
	if err := s.pricing.ValidateTaxRate(ctx, tenant.ID, opt.IsPaid, opt.TaxRateRef); err != nil {
		return nil, err
	}

	elig, err := s.pricing.LoadEligibility(ctx, tenant, user.ID, event.Start)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	price := pricing.ResolveEffectivePrice(opt, elig)

	policy := tenant.DefaultCancellationPolicy
	if opt.CancellationPolicy != nil {
		policy = *opt.CancellationPolicy
	}

	var (
		reg *domain.Registration
		txn *domain.Transaction
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.registrations.Create(ctx, tx, createInput(tenant, user, event, opt, price, policy))
		if err != nil {
			return err
		}
		if !opt.IsPaid {
			return nil
		}
		if price.Effective == 0 {
			// Fully discounted: nothing to collect.
			tr, err := s.registrations.Confirm(ctx, tx, reg.ID)
			if err != nil {
				return err
			}
			reg = tr.Registration
			return nil
		}

		txn = &domain.Transaction{
			TenantID:       tenant.ID,
			RegistrationID: reg.ID,
			Type:           domain.TransactionTypeRegistration,
			Method:         domain.TransactionMethodStripe,
			Status:         domain.TransactionPending,
			Amount:         price.Effective,
			Currency:       tenant.Currency,
			AppFee:         applicationFee(price.Effective, tenant.ApplicationFeePercent),
		}
		if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
			return fmt.Errorf("insert pending transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if txn == nil {
		s.registrations.Notify(reg)
		s.logger.Info("registration confirmed",
			"registration_id", reg.ID,
			"event_id", eventID,
			"user_id", user.ID,
		)
		return &RegisterResult{Registration: reg}, nil
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{
		Account:        tenant.StripeAccountID,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		ProductName:    fmt.Sprintf("%s - %s", event.Title, opt.Title),
		TaxRateID:      derefString(opt.TaxRateRef),
		ApplicationFee: txn.AppFee,
		SuccessURL:     s.opts.SuccessURL,
		CancelURL:      s.opts.CancelURL,
		ExpiresAt:      s.now().Add(s.opts.CheckoutTTL),
		CustomerRef:    user.ID,
		Metadata: gateway.Metadata{
			RegistrationID: reg.ID,
			TenantID:       tenant.ID,
			TransactionID:  txn.ID,
		},
		IdempotencyKey: "checkout-" + reg.ID,
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			"registration_id", reg.ID,
			"transaction_id", txn.ID,
			"err", err,
		)
		s.compensate(ctx, reg.ID, txn.ID)
		return nil, apperr.New(apperr.Internal, apperr.CodeInternal, "payment could not be started", errors.Join(ErrCheckoutUnavailable, err))
	}

	res := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, domain.TransactionPending).
		Updates(map[string]any{
			"gateway_session_id":  sess.ID,
			"gateway_session_url": sess.URL,
		})
	if res.Error != nil {
		s.logger.Error("persisting checkout session failed",
			"registration_id", reg.ID,
			"session_id", sess.ID,
			"err", res.Error,
		)
		s.expireSession(context.WithoutCancel(ctx), tenant.StripeAccountID, sess.ID, reg.ID)
		s.compensate(ctx, reg.ID, txn.ID)
		return nil, apperr.Wrap(fmt.Errorf("persist checkout session: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		// Cancelled or swept while the session was being created; the
		// session must not stay payable.
		s.logger.Warn("registration left pending during checkout, expiring session",
			"registration_id", reg.ID,
			"session_id", sess.ID,
		)
		s.expireSession(context.WithoutCancel(ctx), tenant.StripeAccountID, sess.ID, reg.ID)
		return nil, apperr.ConflictErr("", ErrCheckoutAbandoned, "the registration was cancelled before payment could start")
	}
	txn.GatewaySessionID = &sess.ID
	txn.GatewaySessionURL = &sess.URL

	s.registrations.Notify(reg)
	s.logger.Info("registration pending payment",
		"registration_id", reg.ID,
		"event_id", eventID,
		"session_id", sess.ID,
		"amount", txn.Amount,
	)
	return &RegisterResult{Registration: reg, Transaction: txn, CheckoutURL: sess.URL}, nil
}

// CancelPendingRegistration drops an unpaid registration and its seat. The
// gateway session is expired afterwards on a best-effort basis.
func (s *Service) CancelPendingRegistration(ctx context.Context, tenant authz.TenantContext, user authz.UserContext, registrationID string) (*domain.Registration, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.TenantID != tenant.ID {
		return nil, apperr.NotFoundErr(nil, "registration not found")
	}
	if reg.UserID != user.ID && !user.Can(authz.PermCancelAnyRegistration) {
		return nil, apperr.ForbiddenErr(ErrNotOwner, "you cannot cancel another user's registration")
	}
	if reg.Status != domain.RegistrationPending {
		return nil, apperr.ConflictErr("", ErrNotPending, "only pending registrations can be cancelled this way")
	}

	var sessionID string
	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(ctx, tx, reg.ID); err != nil {
			return err
		}

		var txn domain.Transaction
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("registration_id = ? AND type = ? AND status = ?", reg.ID, domain.TransactionTypeRegistration, domain.TransactionPending).
			First(&txn).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load pending transaction: %w", err)
		}

		tr, err := s.registrations.Cancel(ctx, tx, reg.ID, domain.RegistrationPending, reasonPendingByUser)
		if err != nil {
			return err
		}
		reg, changed = tr.Registration, tr.Changed

		if !found {
			return nil
		}
		if err := tx.WithContext(ctx).Model(&txn).
			Where("status = ?", domain.TransactionPending).
			Update("status", domain.TransactionCancelled).Error; err != nil {
			return fmt.Errorf("cancel pending transaction: %w", err)
		}
		sessionID = derefString(txn.GatewaySessionID)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if changed {
		s.registrations.Notify(reg)
	}
	if sessionID != "" {
		s.expireSession(ctx, tenant.StripeAccountID, sessionID, reg.ID)
	}
	return reg, nil
}

func (s *Service) RegistrationStatus(ctx context.Context, user authz.UserContext, eventID string) (*registration.StatusView, error) {
	view, err := s.registrations.Status(ctx, user.ID, eventID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return view, nil
}

func (s *Service) CheckIn(ctx context.Context, tenant authz.TenantContext, user authz.UserContext, registrationID string) (*domain.Registration, error) {
	if !user.Can(authz.PermCheckIn) {
		return nil, apperr.ForbiddenErr(ErrMissingCheckInRights, "you are not allowed to check in participants")
	}
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.TenantID != tenant.ID {
		return nil, apperr.NotFoundErr(nil, "registration not found")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.registrations.CheckIn(ctx, tx, registrationID, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	s.registrations.Notify(reg)
	return reg, nil
}

func (s *Service) loadOption(ctx context.Context, tenantID, eventID, optionID string) (*domain.RegistrationOption, *domain.Event, error) {
	var opt domain.RegistrationOption
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", optionID, tenantID).
		First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && opt.EventID != eventID) {
		return nil, nil, apperr.NotFoundErr(ErrOptionNotFound, "registration option not found")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(fmt.Errorf("load registration option: %w", err))
	}

	var event domain.Event
	err = s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", eventID, tenantID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFoundErr(ErrEventNotFound, "event not found")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(fmt.Errorf("load event: %w", err))
	}
	return &opt, &event, nil
}

// compensate undoes a paid registration whose checkout never started. It
// runs detached from the request so a client disconnect cannot leak the
// reserved seat.
func (s *Service) compensate(ctx context.Context, registrationID, transactionID string) {
	cctx := context.WithoutCancel(ctx)
	err := s.db.WithContext(cctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(cctx, tx, registrationID); err != nil {
			return err
		}
		if err := tx.Where("id = ? AND status = ?", transactionID, domain.TransactionPending).
			Delete(&domain.Transaction{}).Error; err != nil {
			return fmt.Errorf("delete pending transaction: %w", err)
		}
		return s.registrations.DeletePending(cctx, tx, registrationID)
	})
	if err != nil {
		s.logger.Error("compensation failed, reserved seat left for the stale sweeper",
			"registration_id", registrationID,
			"transaction_id", transactionID,
			"err", err,
		)
		return
	}
	s.logger.Info("registration rolled back after checkout failure", "registration_id", registrationID)
}

// expireSession closes a checkout session. The call is idempotent on the
// gateway side, so it is retried once and then abandoned.
func (s *Service) expireSession(ctx context.Context, account, sessionID, registrationID string) {
	var err error
	for attempt := 1; attempt <= expireAttempts; attempt++ {
		if err = s.gateway.ExpireCheckoutSession(ctx, account, sessionID); err == nil {
			return
		}
	}
	s.logger.Warn("best-effort gateway effect abandoned",
		"effect", "expire_checkout_session",
		"outcome", "abandoned",
		"registration_id", registrationID,
		"session_id", sessionID,
		"err", err,
	)
}

func createInput(tenant authz.TenantContext, user authz.UserContext, event *domain.Event, opt *domain.RegistrationOption, price pricing.Price, policy domain.CancellationPolicy) registration.CreateInput {
	return registration.CreateInput{
		TenantID: tenant.ID,
		UserID:   user.ID,
		EventID:  event.ID,
		Option:   opt,
		Price:    price,
		Policy:   policy,
	}
}

func applicationFee(amount int64, percent float64) int64 {
	if percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * percent / 100))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
