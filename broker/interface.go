package broker

import (
	"context"
)

// Gateway is the signed REST surface of the derivatives exchange.
// Every call is bounded by its own timeout and is never retried.
type Gateway interface {
	// Name returns the name of the exchange
	Name() string

	// Account related methods
	GetBalances(ctx context.Context) ([]Balance, error)
	GetPositions(ctx context.Context, underlying string) ([]Position, error)

	// Order related methods
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// Market data methods (unsigned)
	GetProducts(ctx context.Context) ([]Product, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// GatewayFactory builds a Gateway bound to one account's credentials
type GatewayFactory interface {
	New(credentials *Credentials) (Gateway, error)
}

// GatewayFactoryFunc adapts a function to GatewayFactory
type GatewayFactoryFunc func(credentials *Credentials) (Gateway, error)

// New calls f(credentials)
func (f GatewayFactoryFunc) New(credentials *Credentials) (Gateway, error) {
	return f(credentials)
}

// PriceSource supplies a reference mark price for an instrument code (BTC, ETH)
type PriceSource interface {
	MarkPrice(ctx context.Context, instrument string) (float64, error)
}
