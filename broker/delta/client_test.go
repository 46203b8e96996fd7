package delta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = &broker.Credentials{APIKey: "key-1", APISecret: "secret-1"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testCreds, 5*time.Second, nil)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestSign(t *testing.T) {
	a := Sign("secret", "GET", "1700000000", "/v2/positions", "?underlying_asset_symbol=BTC", "")
	b := Sign("secret", "GET", "1700000000", "/v2/positions", "?underlying_asset_symbol=BTC", "")
	c := Sign("other", "GET", "1700000000", "/v2/positions", "?underlying_asset_symbol=BTC", "")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "", QueryString(nil))
	assert.Equal(t, "?a=1&b=2&c=3", QueryString(map[string]string{"c": "3", "a": "1", "b": "2"}))
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.india.delta.exchange", BaseURL("india", false))
	assert.Equal(t, "https://api.delta.exchange", BaseURL("global", false))
	assert.Equal(t, "https://cdn-ind.testnet.deltaex.org", BaseURL("india", true))
	assert.Equal(t, "https://testnet-api.delta.exchange", BaseURL("global", true))
}

func TestGetPositionsSignsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/positions", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("underlying_asset_symbol"))
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		assert.Equal(t, "1700000000", r.Header.Get("timestamp"))

		want := Sign("secret-1", "GET", "1700000000", "/v2/positions", "?underlying_asset_symbol=BTC", "")
		assert.Equal(t, want, r.Header.Get("signature"))

		_, _ = io.WriteString(w, `{"success":true,"result":[
			{"product_id":27,"product_symbol":"BTCUSD","size":-3,"entry_price":"95000"},
			{"product_id":28,"product_symbol":"C-BTC-95000-171026","size":0}
		]}`)
	})

	positions, err := c.GetPositions(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(27), positions[0].ProductID)
	assert.Equal(t, int64(-3), positions[0].Size)
	assert.Equal(t, broker.Decimal(95000), positions[0].EntryPrice)
}

func TestGetProductsIsUnsigned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("signature"))
		assert.Empty(t, r.Header.Get("api-key"))
		_, _ = io.WriteString(w, `{"success":true,"result":[
			{"id":27,"symbol":"BTCUSD","contract_type":"perpetual_futures","underlying_asset":{"symbol":"BTC"}},
			{"id":901,"symbol":"C-BTC-95000-171026","contract_type":"call_options","strike_price":"95000",
			 "settlement_time":"2026-10-17T12:00:00Z","underlying_asset":{"symbol":"BTC"}}
		]}`)
	})

	products, err := c.GetProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.True(t, products[0].IsFutures())
	assert.True(t, products[1].IsOption())
	assert.Equal(t, broker.Decimal(95000), products[1].StrikePrice)
	require.NotNil(t, products[1].SettlementTime)
	assert.Equal(t, 17, products[1].SettlementTime.Day())
}

func TestPlaceOrderSignsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)

		var req broker.OrderRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, int64(27), req.ProductID)
		assert.Equal(t, broker.OrderSideBuy, req.Side)
		assert.Equal(t, broker.OrderTypeMarket, req.Type)

		want := Sign("secret-1", "POST", "1700000000", "/v2/orders", "", string(body))
		assert.Equal(t, want, r.Header.Get("signature"))

		_, _ = io.WriteString(w, `{"success":true,"result":{"id":555,"product_id":27,"side":"buy","size":2,"state":"closed"}}`)
	})

	order, err := c.PlaceOrder(context.Background(), &broker.OrderRequest{
		ProductID: 27, Size: 2, Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(555), order.ID)
	assert.Contains(t, order.Raw, `"id":555`)
}

func TestPlaceOrderRejectsInvalidRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid order must not reach the exchange")
	})

	_, err := c.PlaceOrder(context.Background(), &broker.OrderRequest{ProductID: 27, Side: broker.OrderSideBuy, Type: broker.OrderTypeMarket})
	assert.ErrorIs(t, err, broker.ErrInvalidQuantity)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		code   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"error":{"code":"invalid_api_key"}}`, broker.ErrInvalidCredentials, "UNAUTHORIZED"},
		{"rate limited", http.StatusTooManyRequests, `{}`, broker.ErrRateLimitExceeded, "RATE_LIMIT"},
		{"server error", http.StatusBadGateway, `oops`, broker.ErrAPIError, "SERVER_ERROR"},
		{"order rejected", http.StatusBadRequest, `{"success":false,"error":{"code":"insufficient_margin"}}`, broker.ErrAPIError, "insufficient_margin"},
		{"success false on 200", http.StatusOK, `{"success":false,"error":{"code":"open_order_limit"}}`, broker.ErrAPIError, "open_order_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.GetBalances(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var be *broker.BrokerError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.code, be.Code)
		})
	}
}

func TestSignedCallWithoutCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil, time.Second, nil)
	_, err := c.GetBalances(context.Background())
	assert.ErrorIs(t, err, broker.ErrInvalidCredentials)
}

func TestFactory(t *testing.T) {
	f := NewFactory(Options{Region: "global", RateLimit: 5, Burst: 2})

	_, err := f.New(&broker.Credentials{})
	assert.ErrorIs(t, err, broker.ErrInvalidCredentials)

	gw, err := f.New(testCreds)
	require.NoError(t, err)
	assert.Equal(t, "delta", gw.Name())
	assert.Equal(t, "https://api.delta.exchange", gw.(*Client).http.BaseURL)
	assert.NotNil(t, gw.(*Client).limiter)
}
