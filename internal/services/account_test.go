package services

import (
	"context"
	"testing"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccountStatus(t *testing.T) {
	ctx := context.Background()
	user := &models.User{ID: "u1", APIKey: "k", APISecret: "s"}

	t.Run("connected", func(t *testing.T) {
		gw := &MockGateway{}
		gw.On("GetBalances", mock.Anything).Return([]broker.Balance{
			{AssetSymbol: "USD", AvailableBalance: 10},
			{AssetSymbol: "USDT", AvailableBalance: 1250.5},
			{AssetSymbol: "BTC", AvailableBalance: 0.2},
		}, nil)
		gw.On("GetPositions", mock.Anything, "BTC").Return([]broker.Position{
			{ProductID: 27, ProductSymbol: "BTCUSD", Size: 3},
			{ProductID: 101, ProductSymbol: "C-BTC-95000-161026", Size: 0},
		}, nil)
		gw.On("GetPositions", mock.Anything, "ETH").Return([]broker.Position{
			{ProductID: 3136, ProductSymbol: "ETHUSD", Size: -1},
		}, nil)

		s := NewAccountService(broker.GatewayFactoryFunc(func(*broker.Credentials) (broker.Gateway, error) { return gw, nil }))
		status := s.Status(ctx, user)

		assert.True(t, status.Connected)
		assert.Equal(t, "USDT", status.Asset)
		assert.Equal(t, 1250.5, status.AvailableBalance)
		assert.Equal(t, 2, status.OpenPositions)
		assert.Empty(t, status.Error)
		gw.AssertExpectations(t)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		gw := &MockGateway{}
		gw.On("GetBalances", mock.Anything).Return(nil, broker.ErrInvalidCredentials)

		s := NewAccountService(broker.GatewayFactoryFunc(func(*broker.Credentials) (broker.Gateway, error) { return gw, nil }))
		status := s.Status(ctx, user)

		assert.False(t, status.Connected)
		assert.Contains(t, status.Error, broker.ErrInvalidCredentials.Error())
		gw.AssertNotCalled(t, "GetPositions", mock.Anything, mock.Anything)
	})

	t.Run("no credentials", func(t *testing.T) {
		s := NewAccountService(broker.GatewayFactoryFunc(func(*broker.Credentials) (broker.Gateway, error) {
			require.Fail(t, "gateway must not be built")
			return nil, nil
		}))
		status := s.Status(ctx, &models.User{ID: "u2"})
		assert.False(t, status.Connected)
		assert.Equal(t, ErrNoCredentials.Error(), status.Error)
	})
}

func TestAccountProducts(t *testing.T) {
	ctx := context.Background()
	gw := &MockGateway{}
	gw.On("GetProducts", mock.Anything).Return([]broker.Product{
		{ID: 27, Symbol: "BTCUSD", ContractType: broker.ContractPerpetual},
		{ID: 28, Symbol: "BTCUSD_27Mar26", ContractType: broker.ContractFutures},
		{ID: 101, Symbol: "P-ETH-3000-161026", ContractType: broker.ContractPut},
		{ID: 3136, Symbol: "ETHUSD", ProductType: string(broker.ContractPerpetual)},
		{ID: 5, Symbol: "SOLUSD", ContractType: broker.ContractPerpetual},
	}, nil)
	s := NewAccountService(broker.GatewayFactoryFunc(func(*broker.Credentials) (broker.Gateway, error) { return gw, nil }))

	products, err := s.Products(ctx, &models.User{ID: "u1", APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.EqualValues(t, 27, products[0].ID)
	assert.EqualValues(t, 3136, products[1].ID)

	_, err = s.Products(ctx, &models.User{ID: "u2"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}
