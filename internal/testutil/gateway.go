package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"eventreg/internal/gateway"
)

// MockGateway is a testify double for gateway.Gateway.
type MockGateway struct {
	mock.Mock
}

var _ gateway.Gateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "stripe" }

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if s, ok := args.Get(0).(*gateway.CheckoutSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, account, sessionID string) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, account, sessionID)
	if s, ok := args.Get(0).(*gateway.CheckoutSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ExpireCheckoutSession(ctx context.Context, account, sessionID string) error {
	return m.Called(ctx, account, sessionID).Error(0)
}

func (m *MockGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*gateway.Refund); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetChargeBalance(ctx context.Context, account, chargeID string) (*gateway.ChargeBalance, error) {
	args := m.Called(ctx, account, chargeID)
	if b, ok := args.Get(0).(*gateway.ChargeBalance); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ParseEvent(payload []byte, signature string) (gateway.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(gateway.Event), args.Error(1)
}
