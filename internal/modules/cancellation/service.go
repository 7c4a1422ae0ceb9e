// Package cancellation cancels confirmed registrations under their frozen
// cancellation policy and refunds what the policy allows.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/gateway"
	"eventreg/internal/pkg/apperr"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/repository"
)

type Service struct {
	db            *gorm.DB
	gateway       gateway.Gateway
	txns          *repository.TransactionRepository
	registrations registrationMachine
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(db *gorm.DB, gw gateway.Gateway, txns *repository.TransactionRepository, registrations registrationMachine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:            db,
		gateway:       gw,
		txns:          txns,
		registrations: registrations,
		logger:        logger,
		now:           time.Now,
	}
}

// RefundAmount is what goes back to the participant: the amount paid plus
// the fees the policy says to include.
func RefundAmount(paid, appFee, gatewayFee int64, policy domain.CancellationPolicy) int64 {
	amount := paid
	if policy.IncludeAppFees {
		amount += appFee
	}
	if policy.IncludeTransactionFees {
		amount += gatewayFee
	}
	return amount
}

// CheckCutoff rejects cancellations the policy forbids or that come after
// eventStart minus the cutoff.
func CheckCutoff(policy domain.CancellationPolicy, eventStart, now time.Time) error {
	if !policy.AllowCancellation {
		return apperr.BadRequestErr(apperr.CodeCancellationNotAllowed, ErrNotAllowed, "cancellation is not allowed for this registration")
	}
	deadline := eventStart.
		Add(-time.Duration(policy.CutoffDays) * 24 * time.Hour).
		Add(-time.Duration(policy.CutoffHours) * time.Hour)
	if now.After(deadline) {
		return apperr.BadRequestErr(apperr.CodeCutoffPassed, ErrCutoffPassed, "the cancellation deadline has passed")
	}
	return nil
}

// CancelRegistration cancels a CONFIRMED registration. The refund is issued
// before anything changes locally; if the gateway refuses it the
// registration stays CONFIRMED so the call can be retried.
func (s *Service) CancelRegistration(ctx context.Context, tenant authz.TenantContext, actor authz.UserContext, registrationID string, req Request) (*Result, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.TenantID != tenant.ID {
		return nil, apperr.NotFoundErr(nil, "registration not found")
	}
	if reg.UserID != actor.ID && !actor.Can(authz.PermCancelAnyRegistration) {
		return nil, apperr.ForbiddenErr(ErrNotOwner, "you cannot cancel another user's registration")
	}
	if req.SkipRefund && !actor.Can(authz.PermSkipRefund) {
		return nil, apperr.ForbiddenErr(ErrSkipRefundForbidden, "you are not allowed to skip the refund")
	}
	if reg.Status != domain.RegistrationConfirmed {
		return nil, apperr.ConflictErr("", ErrNotConfirmed, "only confirmed registrations can be cancelled")
	}

	var event domain.Event
	if err := s.db.WithContext(ctx).First(&event, "id = ?", reg.EventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundErr(err, "event not found")
		}
		return nil, apperr.Wrap(fmt.Errorf("load event: %w", err))
	}

	policy := reg.EffectiveCancellationPolicy.Data()
	if err := CheckCutoff(policy, event.Start, s.now()); err != nil {
		return nil, err
	}

	res := &Result{}
	var refund *domain.Transaction
	if !req.SkipRefund {
		refund, err = s.refund(ctx, tenant, reg, policy, req.Reason)
		if err != nil {
			return nil, err
		}
		if refund != nil {
			res.RefundAmount = -refund.Amount
			res.RefundIncludesAppFees = policy.IncludeAppFees
			res.RefundIncludesTransactionFees = policy.IncludeTransactionFees
		}
	}

	reason := req.Reason
	if req.ReasonNote != "" {
		reason = req.Reason + ": " + req.ReasonNote
	}

	var cancelled *domain.Registration
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(ctx, tx, reg.ID); err != nil {
			return err
		}
		if refund != nil {
			if _, err := s.txns.WithTx(tx).RecordRefund(ctx, refund); err != nil {
				return fmt.Errorf("record refund: %w", err)
			}
		}
		tr, err := s.registrations.Cancel(ctx, tx, reg.ID, domain.RegistrationConfirmed, reason)
		if err != nil {
			return err
		}
		if tr.Changed {
			cancelled = tr.Registration
		}
		return nil
	})
	if err != nil {
		if refund != nil {
			s.logger.Error("refund issued but cancellation not stored",
				"registration_id", reg.ID,
				"refund_id", derefString(refund.GatewayRefundID),
				"err", err,
			)
		}
		return nil, apperr.Wrap(err)
	}

	if cancelled != nil {
		s.registrations.Notify(cancelled)
	}
	s.logger.Info("registration cancelled",
		"registration_id", reg.ID,
		"actor_id", actor.ID,
		"refund_amount", res.RefundAmount,
		"skip_refund", req.SkipRefund,
	)
	return res, nil
}

// refund issues the gateway refund and returns the transaction to record,
// or nil when nothing was paid.
func (s *Service) refund(ctx context.Context, tenant authz.TenantContext, reg *domain.Registration, policy domain.CancellationPolicy, reason string) (*domain.Transaction, error) {
	var opt domain.RegistrationOption
	if err := s.db.WithContext(ctx).First(&opt, "id = ?", reg.RegistrationOptionID).Error; err != nil {
		return nil, apperr.Wrap(fmt.Errorf("load registration option: %w", err))
	}
	if !opt.IsPaid {
		return nil, nil
	}

	payment, err := s.txns.FindSuccessfulPayment(ctx, reg.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Paid option fully discounted: confirmed without a charge.
		if reg.AppliedDiscountedPrice != nil && *reg.AppliedDiscountedPrice == 0 {
			return nil, nil
		}
		return nil, apperr.Wrap(fmt.Errorf("%w: registration %s", ErrNoPayment, reg.ID))
	}
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("find payment: %w", err))
	}
	if payment.Method != domain.TransactionMethodStripe {
		return nil, apperr.BadRequestErr("", ErrManualRefund, "this payment has to be refunded manually")
	}
	if payment.GatewayChargeID == nil {
		return nil, apperr.Wrap(fmt.Errorf("%w: payment %s has no charge", ErrNoPayment, payment.ID))
	}

	amount := RefundAmount(payment.Amount, payment.AppFee, payment.GatewayFee, policy)
	out, err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
		Account:      tenant.StripeAccountID,
		ChargeID:     *payment.GatewayChargeID,
		Amount:       amount,
		Reason:       reason,
		RefundAppFee: policy.IncludeAppFees,
		Metadata: gateway.Metadata{
			RegistrationID: reg.ID,
			TenantID:       tenant.ID,
			TransactionID:  payment.ID,
		},
		IdempotencyKey: "refund-" + reg.ID,
	})
	if err != nil {
		s.logger.Error("refund failed, registration left confirmed",
			"registration_id", reg.ID,
			"charge_id", *payment.GatewayChargeID,
			"amount", amount,
			"err", err,
		)
		return nil, apperr.New(apperr.Internal, apperr.CodeInternal, "refund could not be issued, try again later",
			fmt.Errorf("%w: %w", ErrRefundFailed, err))
	}

	refundID := out.ID
	return &domain.Transaction{
		TenantID:        reg.TenantID,
		RegistrationID:  reg.ID,
		Type:            domain.TransactionTypeRefund,
		Method:          domain.TransactionMethodStripe,
		Status:          domain.TransactionSuccessful,
		Amount:          -amount,
		Currency:        payment.Currency,
		GatewayChargeID: payment.GatewayChargeID,
		GatewayRefundID: &refundID,
	}, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
