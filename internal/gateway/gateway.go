package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Checkout session states as reported by the gateway.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	PaymentPaid = "paid"
)

// Gateway is the external payment provider. Every call is scoped to the
// tenant's connected account.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, account, sessionID string) (*CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, account, sessionID string) error
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	GetChargeBalance(ctx context.Context, account, chargeID string) (*ChargeBalance, error)
	ParseEvent(payload []byte, signature string) (Event, error)
}

type CheckoutSessionRequest struct {
	Account        string
	Amount         int64
	Currency       string
	ProductName    string
	TaxRateID      string
	ApplicationFee int64
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	CustomerRef    string
	Metadata       Metadata
	IdempotencyKey string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	ChargeID        string
	Metadata        Metadata
}

type RefundRequest struct {
	Account        string
	ChargeID       string
	Amount         int64
	Reason         string
	RefundAppFee   bool
	Metadata       Metadata
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Status string
}

// ChargeBalance is the settled fee breakdown of one charge.
type ChargeBalance struct {
	ChargeID   string
	Net        int64
	AppFee     int64
	GatewayFee int64
}

// Metadata correlates gateway objects with local rows.
type Metadata struct {
	RegistrationID string `json:"registrationId"`
	TenantID       string `json:"tenantId"`
	TransactionID  string `json:"transactionId"`
}

const (
	metaRegistrationID = "registrationId"
	metaTenantID       = "tenantId"
	metaTransactionID  = "transactionId"
)

func (m Metadata) Map() map[string]string {
	out := map[string]string{}
	if m.RegistrationID != "" {
		out[metaRegistrationID] = m.RegistrationID
	}
	if m.TenantID != "" {
		out[metaTenantID] = m.TenantID
	}
	if m.TransactionID != "" {
		out[metaTransactionID] = m.TransactionID
	}
	return out
}

func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		RegistrationID: m[metaRegistrationID],
		TenantID:       m[metaTenantID],
		TransactionID:  m[metaTransactionID],
	}
}

type EventKind int

const (
	EventUnknown EventKind = iota
	EventSessionCompleted
	EventSessionExpired
	EventChargeUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventSessionCompleted:
		return "session_completed"
	case EventSessionExpired:
		return "session_expired"
	case EventChargeUpdated:
		return "charge_updated"
	default:
		return "unknown"
	}
}

// Event is a verified webhook delivery reduced to the fields the reconciler
// needs. Which ID fields are set depends on Kind.
type Event struct {
	ID              string
	Kind            EventKind
	Type            string
	Account         string
	SessionID       string
	ChargeID        string
	PaymentIntentID string
	Metadata        Metadata
}
