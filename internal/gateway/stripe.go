package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeEventSessionCompleted = "checkout.session.completed"
	stripeEventSessionExpired   = "checkout.session.expired"
	stripeEventChargeUpdated    = "charge.updated"

	feeTypeApplication = "application_fee"
	feeTypeStripe      = "stripe_fee"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API host, used against local fakes.
	BaseURL string
}

type Stripe struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

func NewStripe(cfg StripeConfig, logger *slog.Logger) *Stripe {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// GetBackendWithConfig normalises the config in place, so each backend
	// gets its own copy.
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		bc := &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: timeout},
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		return stripe.GetBackendWithConfig(t, bc)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})

	return &Stripe{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	lineItem := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(req.Currency),
			UnitAmount:  stripe.Int64(req.Amount),
			TaxBehavior: stripe.String(string(stripe.PriceTaxBehaviorInclusive)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.ProductName),
			},
		},
	}
	if req.TaxRateID != "" {
		lineItem.TaxRates = []*string{stripe.String(req.TaxRateID)}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ExpiresAt:  stripe.Int64(req.ExpiresAt.Unix()),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{lineItem},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata.Map(),
		},
	}
	if req.ApplicationFee > 0 {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(req.ApplicationFee)
	}
	if req.CustomerRef != "" {
		params.ClientReferenceID = stripe.String(req.CustomerRef)
	}
	for k, v := range req.Metadata.Map() {
		params.AddMetadata(k, v)
	}
	s.scope(&params.Params, ctx, req.Account, req.IdempotencyKey)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) GetCheckoutSession(ctx context.Context, account, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	s.scope(&params.Params, ctx, account, "")

	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) ExpireCheckoutSession(ctx context.Context, account, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	s.scope(&params.Params, ctx, account, "expire-"+sessionID)

	if _, err := s.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("stripe expire checkout session: %w", err)
	}
	return nil
}

func (s *Stripe) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(req.ChargeID),
		Amount: stripe.Int64(req.Amount),
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.RefundAppFee {
		params.RefundApplicationFee = stripe.Bool(true)
	}
	for k, v := range req.Metadata.Map() {
		params.AddMetadata(k, v)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	s.scope(&params.Params, ctx, req.Account, req.IdempotencyKey)

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create refund: %w", err)
	}
	return &Refund{ID: r.ID, Status: string(r.Status)}, nil
}

func (s *Stripe) GetChargeBalance(ctx context.Context, account, chargeID string) (*ChargeBalance, error) {
	params := &stripe.ChargeParams{}
	params.AddExpand("balance_transaction")
	s.scope(&params.Params, ctx, account, "")

	ch, err := s.api.Charges.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get charge: %w", err)
	}
	bt := ch.BalanceTransaction
	if bt == nil {
		return nil, fmt.Errorf("stripe charge %s has no balance transaction yet", chargeID)
	}

	out := &ChargeBalance{ChargeID: ch.ID, Net: bt.Net}
	for _, fd := range bt.FeeDetails {
		switch fd.Type {
		case feeTypeApplication:
			out.AppFee += fd.Amount
		case feeTypeStripe:
			out.GatewayFee += fd.Amount
		}
	}
	return out, nil
}

func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("stripe webhook rejected", "err", err)
		return Event{}, ErrInvalidSignature
	}

	out := Event{ID: ev.ID, Type: string(ev.Type), Account: ev.Account}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case stripeEventSessionCompleted, stripeEventSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return Event{}, errors.Join(ErrMalformedEvent, err)
		}
		out.Kind = EventSessionCompleted
		if out.Type == stripeEventSessionExpired {
			out.Kind = EventSessionExpired
		}
		out.SessionID = sess.ID
		out.Metadata = MetadataFromMap(sess.Metadata)
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
	case stripeEventChargeUpdated:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, errors.Join(ErrMalformedEvent, err)
		}
		out.Kind = EventChargeUpdated
		out.ChargeID = ch.ID
		out.Metadata = MetadataFromMap(ch.Metadata)
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
	default:
		out.Kind = EventUnknown
	}
	return out, nil
}

func (s *Stripe) scope(p *stripe.Params, ctx context.Context, account, idempotencyKey string) {
	p.Context = ctx
	if account != "" {
		p.SetStripeAccount(account)
	}
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
}

func toCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      MetadataFromMap(sess.Metadata),
	}
	if pi := sess.PaymentIntent; pi != nil {
		out.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			out.ChargeID = pi.LatestCharge.ID
		}
	}
	return out
}
