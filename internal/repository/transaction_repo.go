package repository

import (
	"context"
	"errors"
	"time"

	"eventreg/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository provides DB access for money movements. Use WithTx
// to run the same queries inside a caller's transaction.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// FindForSession resolves the registration payment behind a checkout
// session, preferring the transaction id carried in gateway metadata.
func (r *TransactionRepository) FindForSession(ctx context.Context, transactionID, sessionID string) (*domain.Transaction, error) {
	if transactionID != "" {
		t, err := r.getWhere(ctx, "id = ? AND type = ?", transactionID, domain.TransactionTypeRegistration)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return t, err
		}
	}
	if sessionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return r.getWhere(ctx, "gateway_session_id = ?", sessionID)
}

// FindForCharge resolves a registration payment by charge id, then by the
// payment intent, then by the transaction id in metadata.
func (r *TransactionRepository) FindForCharge(ctx context.Context, chargeID, paymentIntentID, transactionID string) (*domain.Transaction, error) {
	if chargeID != "" {
		t, err := r.getWhere(ctx, "gateway_charge_id = ? AND type = ?", chargeID, domain.TransactionTypeRegistration)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return t, err
		}
	}
	if paymentIntentID != "" {
		t, err := r.getWhere(ctx, "gateway_payment_intent_id = ? AND type = ?", paymentIntentID, domain.TransactionTypeRegistration)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return t, err
		}
	}
	if transactionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return r.getWhere(ctx, "id = ? AND type = ?", transactionID, domain.TransactionTypeRegistration)
}

func (r *TransactionRepository) LockByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindSuccessfulPayment returns the settled registration payment of a
// registration, if any.
func (r *TransactionRepository) FindSuccessfulPayment(ctx context.Context, registrationID string) (*domain.Transaction, error) {
	return r.getWhere(ctx, "registration_id = ? AND type = ? AND status = ?",
		registrationID, domain.TransactionTypeRegistration, domain.TransactionSuccessful)
}

// MarkSuccessful settles a pending payment. It reports false when the row
// was not pending any more.
func (r *TransactionRepository) MarkSuccessful(ctx context.Context, id, chargeID, paymentIntentID, comment string) (bool, error) {
	updates := map[string]any{"status": domain.TransactionSuccessful}
	if chargeID != "" {
		updates["gateway_charge_id"] = chargeID
	}
	if paymentIntentID != "" {
		updates["gateway_payment_intent_id"] = paymentIntentID
	}
	if comment != "" {
		updates["comment"] = comment
	}
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status <> ?", id, domain.TransactionSuccessful).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// RecordRefund inserts a refund transaction unless one with the same gateway
// refund id is already stored. It reports whether a row was inserted.
func (r *TransactionRepository) RecordRefund(ctx context.Context, t *domain.Transaction) (bool, error) {
	if t.GatewayRefundID != nil {
		var n int64
		if err := r.db.WithContext(ctx).Model(&domain.Transaction{}).
			Where("gateway_refund_id = ?", *t.GatewayRefundID).
			Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *TransactionRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TransactionPending).
		Update("status", domain.TransactionCancelled)
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) UpdateFees(ctx context.Context, id string, net, appFee, gatewayFee int64) error {
	return r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"net_amount":  net,
			"app_fee":     appFee,
			"gateway_fee": gatewayFee,
		}).Error
}

// ListStalePending returns registration payments still pending that were
// created before the cutoff.
func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", domain.TransactionTypeRegistration, domain.TransactionPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) getWhere(ctx context.Context, query string, args ...any) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := r.db.WithContext(ctx).Where(query, args...).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
