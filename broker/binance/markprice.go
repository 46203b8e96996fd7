package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

const name = "binance"

// MarkPriceSource reads USDT-margined perpetual mark prices from Binance.
// Only public endpoints are used, so no credentials are needed.
type MarkPriceSource struct {
	client  *futures.Client
	quote   string
	timeout time.Duration
}

// NewMarkPriceSource creates a public mark price source
func NewMarkPriceSource(timeout time.Duration) *MarkPriceSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarkPriceSource{
		client:  binance.NewFuturesClient("", ""),
		quote:   "USDT",
		timeout: timeout,
	}
}

// MarkPrice returns the current mark price of <instrument>USDT
func (s *MarkPriceSource) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	symbol := strings.ToUpper(instrument) + s.quote
	res, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, broker.NewBrokerError(name, "MARK_PRICE_FAILED", "Failed to get premium index for "+symbol, err)
	}

	for _, idx := range res {
		if idx.Symbol != symbol {
			continue
		}
		price, err := strconv.ParseFloat(idx.MarkPrice, 64)
		if err != nil || price <= 0 {
			return 0, broker.NewBrokerError(name, "MARK_PRICE_INVALID", fmt.Sprintf("bad mark price %q", idx.MarkPrice), broker.ErrInvalidPrice)
		}
		return price, nil
	}

	return 0, broker.NewBrokerError(name, "MARK_PRICE_MISSING", "No premium index for "+symbol, broker.ErrInvalidProduct)
}

var _ broker.PriceSource = (*MarkPriceSource)(nil)
