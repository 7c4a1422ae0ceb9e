package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypeRegistration TransactionType = "registration"
	TransactionTypeRefund       TransactionType = "refund"
)

type TransactionMethod string

const (
	TransactionMethodStripe   TransactionMethod = "stripe"
	TransactionMethodCash     TransactionMethod = "cash"
	TransactionMethodTransfer TransactionMethod = "transfer"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionCancelled  TransactionStatus = "cancelled"
)

// Transaction records one money movement. Refunds carry a negative amount.
type Transaction struct {
	ID                     string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID               string            `gorm:"type:varchar(36);not null;index" json:"tenant_id"`
	RegistrationID         string            `gorm:"type:varchar(36);not null;index" json:"registration_id"`
	Type                   TransactionType   `gorm:"type:varchar(16);not null" json:"type"`
	Method                 TransactionMethod `gorm:"type:varchar(16);not null" json:"method"`
	Status                 TransactionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Amount                 int64             `gorm:"not null" json:"amount"`
	Currency               string            `gorm:"type:varchar(3);not null" json:"currency"`
	AppFee                 int64             `gorm:"not null;default:0" json:"app_fee"`
	GatewayFee             int64             `gorm:"not null;default:0" json:"gateway_fee"`
	NetAmount              *int64            `json:"net_amount,omitempty"`
	GatewaySessionID       *string           `gorm:"type:varchar(255);uniqueIndex" json:"gateway_session_id,omitempty"`
	GatewaySessionURL      *string           `gorm:"type:text" json:"gateway_session_url,omitempty"`
	GatewayPaymentIntentID *string           `gorm:"type:varchar(255);index" json:"gateway_payment_intent_id,omitempty"`
	GatewayChargeID        *string           `gorm:"type:varchar(255);index" json:"gateway_charge_id,omitempty"`
	GatewayRefundID        *string           `gorm:"type:varchar(255);uniqueIndex" json:"gateway_refund_id,omitempty"`
	Comment                string            `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
