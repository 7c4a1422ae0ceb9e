// Package webhook reconciles asynchronous gateway events with local state.
// Every handler tolerates duplicate and out-of-order delivery.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/registration"
	"eventreg/internal/repository"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

const (
	reasonCheckoutExpired = "checkout session expired"
	commentLatePayment    = "paid after the registration was cancelled; refund manually"
)

type Service struct {
	db            *gorm.DB
	gateway       gateway.Gateway
	txns          *repository.TransactionRepository
	markers       *repository.ProcessedEventRepository
	tenants       tenantReader
	registrations registrationMachine
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(
	db *gorm.DB,
	gw gateway.Gateway,
	txns *repository.TransactionRepository,
	markers *repository.ProcessedEventRepository,
	tenants tenantReader,
	registrations registrationMachine,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:            db,
		gateway:       gw,
		txns:          txns,
		markers:       markers,
		tenants:       tenants,
		registrations: registrations,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle applies one verified event. A returned error means the gateway
// should redeliver; recognised no-ops return nil.
func (s *Service) Handle(ctx context.Context, ev gateway.Event, payload []byte) (Outcome, error) {
	log := s.logger.With("event_id", ev.ID, "event_type", ev.Type)

	marker, created, err := s.markers.Record(ctx, &domain.ProcessedEvent{
		Provider:   s.gateway.Name(),
		EventID:    ev.ID,
		EventType:  ev.Type,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("record webhook event: %w", err)
	}
	if !created && marker.ProcessedAt != nil {
		log.Info("webhook event already processed")
		return OutcomeDuplicate, nil
	}

	outcome, err := s.apply(ctx, ev)
	if err != nil {
		log.Error("webhook event failed, awaiting redelivery", "err", err)
		if merr := s.markers.MarkFailed(ctx, marker.ID, err); merr != nil {
			log.Error("recording webhook failure failed", "err", merr)
		}
		return "", err
	}

	if err := s.markers.MarkProcessed(ctx, marker.ID, s.now().UTC()); err != nil {
		return "", fmt.Errorf("mark webhook processed: %w", err)
	}
	log.Info("webhook event handled", "outcome", outcome)
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, ev gateway.Event) (Outcome, error) {
	switch ev.Kind {
	case gateway.EventSessionCompleted:
		return s.sessionCompleted(ctx, ev)
	case gateway.EventSessionExpired:
		return s.sessionExpired(ctx, ev)
	case gateway.EventChargeUpdated:
		return s.chargeUpdated(ctx, ev)
	case gateway.EventUnknown:
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, nil
	}
}

func (s *Service) sessionCompleted(ctx context.Context, ev gateway.Event) (Outcome, error) {
	txn, ok, err := s.findForSession(ctx, ev)
	if !ok || err != nil {
		return OutcomeIgnored, err
	}

	sess, err := s.refetch(ctx, ev.Account, txn, ev.SessionID)
	if err != nil {
		return "", err
	}
	if sess.Status != gateway.SessionComplete || sess.PaymentStatus != gateway.PaymentPaid {
		s.logger.Info("session not settled yet, ignoring",
			"session_id", sess.ID,
			"status", sess.Status,
			"payment_status", sess.PaymentStatus,
		)
		return OutcomeIgnored, nil
	}
	return s.settle(ctx, txn, sess)
}

func (s *Service) sessionExpired(ctx context.Context, ev gateway.Event) (Outcome, error) {
	txn, ok, err := s.findForSession(ctx, ev)
	if !ok || err != nil {
		return OutcomeIgnored, err
	}

	sess, err := s.refetch(ctx, ev.Account, txn, ev.SessionID)
	if err != nil {
		return "", err
	}
	if sess.Status != gateway.SessionExpired {
		s.logger.Info("session not expired, ignoring", "session_id", sess.ID, "status", sess.Status)
		return OutcomeIgnored, nil
	}
	return s.expire(ctx, txn)
}

func (s *Service) chargeUpdated(ctx context.Context, ev gateway.Event) (Outcome, error) {
	txn, err := s.txns.FindForCharge(ctx, ev.ChargeID, ev.PaymentIntentID, ev.Metadata.TransactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The completion event may still be in flight.
		return "", fmt.Errorf("%w: %s", ErrUnknownCharge, ev.ChargeID)
	}
	if err != nil {
		return "", fmt.Errorf("find transaction for charge: %w", err)
	}

	account, err := s.account(ctx, ev.Account, txn)
	if err != nil {
		return "", err
	}
	bal, err := s.gateway.GetChargeBalance(ctx, account, ev.ChargeID)
	if err != nil {
		return "", fmt.Errorf("fetch charge balance: %w", err)
	}

	if err := s.txns.UpdateFees(ctx, txn.ID, bal.Net, bal.AppFee, bal.GatewayFee); err != nil {
		return "", fmt.Errorf("store charge fees: %w", err)
	}
	s.logger.Info("charge fees reconciled",
		"transaction_id", txn.ID,
		"charge_id", ev.ChargeID,
		"net", bal.Net,
		"app_fee", bal.AppFee,
		"gateway_fee", bal.GatewayFee,
	)
	return OutcomeProcessed, nil
}

// settle marks a paid session's transaction successful and confirms the
// registration, both in one database transaction.
func (s *Service) settle(ctx context.Context, txn *domain.Transaction, sess *gateway.CheckoutSession) (Outcome, error) {
	var confirmed *domain.Registration
	outcome := OutcomeProcessed

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(ctx, tx, txn.RegistrationID); err != nil {
			return err
		}
		txns := s.txns.WithTx(tx)
		locked, err := txns.LockByID(ctx, txn.ID)
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}

		switch locked.Status {
		case domain.TransactionSuccessful:
			outcome = OutcomeDuplicate
			return nil
		case domain.TransactionCancelled:
			return s.recordLatePayment(ctx, txns, locked, sess)
		}

		tr, err := s.registrations.Confirm(ctx, tx, locked.RegistrationID)
		if errors.Is(err, registration.ErrInvalidTransition) {
			return s.recordLatePayment(ctx, txns, locked, sess)
		}
		if err != nil {
			return err
		}
		if _, err := txns.MarkSuccessful(ctx, locked.ID, sess.ChargeID, sess.PaymentIntentID, ""); err != nil {
			return fmt.Errorf("mark transaction successful: %w", err)
		}
		if tr.Changed {
			confirmed = tr.Registration
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if confirmed != nil {
		s.registrations.Notify(confirmed)
		s.logger.Info("registration confirmed by payment",
			"registration_id", confirmed.ID,
			"transaction_id", txn.ID,
			"session_id", sess.ID,
		)
	}
	return outcome, nil
}

// recordLatePayment keeps money received for a registration that was
// already cancelled. The seat is not restored.
func (s *Service) recordLatePayment(ctx context.Context, txns *repository.TransactionRepository, txn *domain.Transaction, sess *gateway.CheckoutSession) error {
	if _, err := txns.MarkSuccessful(ctx, txn.ID, sess.ChargeID, sess.PaymentIntentID, commentLatePayment); err != nil {
		return fmt.Errorf("record late payment: %w", err)
	}
	s.logger.Error("payment received for cancelled registration, manual refund needed",
		"registration_id", txn.RegistrationID,
		"transaction_id", txn.ID,
		"session_id", sess.ID,
		"charge_id", sess.ChargeID,
	)
	return nil
}

func (s *Service) expire(ctx context.Context, txn *domain.Transaction) (Outcome, error) {
	var cancelled *domain.Registration
	outcome := OutcomeProcessed

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(ctx, tx, txn.RegistrationID); err != nil {
			return err
		}
		txns := s.txns.WithTx(tx)
		changed, err := txns.MarkCancelled(ctx, txn.ID)
		if err != nil {
			return fmt.Errorf("cancel transaction: %w", err)
		}
		if !changed {
			outcome = OutcomeDuplicate
			return nil
		}

		tr, err := s.registrations.Cancel(ctx, tx, txn.RegistrationID, domain.RegistrationPending, reasonCheckoutExpired)
		if errors.Is(err, registration.ErrUnexpectedStatus) {
			s.logger.Warn("expired session for a registration no longer pending",
				"registration_id", txn.RegistrationID,
				"transaction_id", txn.ID,
			)
			return nil
		}
		if err != nil {
			return err
		}
		if tr.Changed {
			cancelled = tr.Registration
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if cancelled != nil {
		s.registrations.Notify(cancelled)
		s.logger.Info("registration released after checkout expiry",
			"registration_id", cancelled.ID,
			"transaction_id", txn.ID,
		)
	}
	return outcome, nil
}

func (s *Service) findForSession(ctx context.Context, ev gateway.Event) (*domain.Transaction, bool, error) {
	txn, err := s.txns.FindForSession(ctx, ev.Metadata.TransactionID, ev.SessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Rolled back after a failed checkout, or not ours.
		s.logger.Warn("no transaction for checkout session",
			"session_id", ev.SessionID,
			"transaction_id", ev.Metadata.TransactionID,
		)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find transaction for session: %w", err)
	}
	return txn, true, nil
}

// refetch asks the gateway for the session's current state; the event name
// alone is not trusted.
func (s *Service) refetch(ctx context.Context, eventAccount string, txn *domain.Transaction, sessionID string) (*gateway.CheckoutSession, error) {
	if sessionID == "" && txn.GatewaySessionID != nil {
		sessionID = *txn.GatewaySessionID
	}
	account, err := s.account(ctx, eventAccount, txn)
	if err != nil {
		return nil, err
	}
	sess, err := s.gateway.GetCheckoutSession(ctx, account, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch checkout session: %w", err)
	}
	if sess.ID != sessionID {
		return nil, fmt.Errorf("%w: want %s got %s", ErrSessionMismatch, sessionID, sess.ID)
	}
	return sess, nil
}

func (s *Service) account(ctx context.Context, eventAccount string, txn *domain.Transaction) (string, error) {
	if eventAccount != "" {
		return eventAccount, nil
	}
	tenant, err := s.tenants.GetByID(ctx, txn.TenantID)
	if err != nil {
		return "", fmt.Errorf("load tenant %s: %w", txn.TenantID, err)
	}
	return tenant.StripeAccountID, nil
}
