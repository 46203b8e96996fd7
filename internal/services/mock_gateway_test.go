package services

import (
	"context"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) GetBalances(ctx context.Context) ([]broker.Balance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Balance), args.Error(1)
}

func (m *MockGateway) GetPositions(ctx context.Context, underlying string) ([]broker.Position, error) {
	args := m.Called(ctx, underlying)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Position), args.Error(1)
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req *broker.OrderRequest) (*broker.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Order), args.Error(1)
}

func (m *MockGateway) GetProducts(ctx context.Context) ([]broker.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Product), args.Error(1)
}

func (m *MockGateway) GetTicker(ctx context.Context, symbol string) (*broker.Ticker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*broker.Ticker), args.Error(1)
}

type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	args := m.Called(ctx, instrument)
	return args.Get(0).(float64), args.Error(1)
}
