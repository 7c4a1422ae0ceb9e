package webhook

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"eventreg/internal/domain"
	"eventreg/internal/gateway"
)

const sweepBatch = 100

type SweepResult struct {
	Confirmed  int
	Expired    int
	RolledBack int
	Skipped    int
}

// SweepStale reconciles registration payments still pending after olderThan,
// for deliveries the gateway never made or compensations that failed.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (SweepResult, error) {
	var res SweepResult

	stale, err := s.txns.ListStalePending(ctx, s.now().Add(-olderThan), sweepBatch)
	if err != nil {
		return res, fmt.Errorf("list stale transactions: %w", err)
	}

	for i := range stale {
		txn := &stale[i]
		log := s.logger.With("transaction_id", txn.ID, "registration_id", txn.RegistrationID)

		if txn.GatewaySessionID == nil {
			if err := s.rollback(ctx, txn); err != nil {
				log.Error("stale rollback failed", "err", err)
				res.Skipped++
				continue
			}
			res.RolledBack++
			continue
		}

		sess, err := s.refetch(ctx, "", txn, *txn.GatewaySessionID)
		if err != nil {
			log.Warn("stale session lookup failed", "err", err)
			res.Skipped++
			continue
		}

		switch {
		case sess.Status == gateway.SessionComplete && sess.PaymentStatus == gateway.PaymentPaid:
			_, err = s.settle(ctx, txn, sess)
			if err == nil {
				res.Confirmed++
			}
		case sess.Status == gateway.SessionExpired:
			_, err = s.expire(ctx, txn)
			if err == nil {
				res.Expired++
			}
		default:
			// Still open past its expiry: ask the gateway to close it; the
			// expiry event or the next sweep releases the seat.
			account, aerr := s.account(ctx, "", txn)
			if aerr == nil {
				aerr = s.gateway.ExpireCheckoutSession(ctx, account, sess.ID)
			}
			if aerr != nil {
				log.Warn("best-effort gateway effect abandoned",
					"effect", "expire_checkout_session",
					"outcome", "abandoned",
					"session_id", sess.ID,
					"err", aerr,
				)
			}
			res.Skipped++
			continue
		}
		if err != nil {
			log.Error("stale reconciliation failed", "err", err)
			res.Skipped++
		}
	}
	return res, nil
}

func (s *Service) rollback(ctx context.Context, txn *domain.Transaction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.registrations.Lock(ctx, tx, txn.RegistrationID); err != nil {
			return err
		}
		if err := tx.Where("id = ? AND status = ?", txn.ID, domain.TransactionPending).
			Delete(&domain.Transaction{}).Error; err != nil {
			return fmt.Errorf("delete stale transaction: %w", err)
		}
		return s.registrations.DeletePending(ctx, tx, txn.RegistrationID)
	})
}
