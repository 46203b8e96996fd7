package delta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	name      = "delta"
	userAgent = "tv-autotrade"

	DefaultTimeout = 30 * time.Second
)

// BaseURL returns the REST root for a region/testnet combination
func BaseURL(region string, testnet bool) string {
	switch {
	case testnet && region == "global":
		return "https://testnet-api.delta.exchange"
	case testnet:
		return "https://cdn-ind.testnet.deltaex.org"
	case region == "global":
		return "https://api.delta.exchange"
	default:
		return "https://api.india.delta.exchange"
	}
}

// Client is a Delta Exchange gateway bound to one account
type Client struct {
	http        *resty.Client
	credentials *broker.Credentials
	limiter     *rate.Limiter
	now         func() time.Time
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string          `json:"code"`
	Context json.RawMessage `json:"context,omitempty"`
}

// NewClient creates a client against baseURL. limiter may be nil.
func NewClient(baseURL string, credentials *broker.Credentials, timeout time.Duration, limiter *rate.Limiter) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Content-Type", "application/json"),
		credentials: credentials,
		limiter:     limiter,
		now:         time.Now,
	}
}

// Name returns the broker name
func (c *Client) Name() string {
	return name
}

// GetBalances retrieves wallet balances
func (c *Client) GetBalances(ctx context.Context) ([]broker.Balance, error) {
	var out []broker.Balance
	if _, err := c.do(ctx, http.MethodGet, "/v2/wallet/balances", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPositions retrieves open positions on one underlying asset
func (c *Client) GetPositions(ctx context.Context, underlying string) ([]broker.Position, error) {
	query := map[string]string{"underlying_asset_symbol": underlying}

	var all []broker.Position
	if _, err := c.do(ctx, http.MethodGet, "/v2/positions", query, nil, true, &all); err != nil {
		return nil, err
	}

	out := all[:0]
	for _, p := range all {
		if p.Size != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetProducts retrieves the full product catalog
func (c *Client) GetProducts(ctx context.Context) ([]broker.Product, error) {
	var out []broker.Product
	if _, err := c.do(ctx, http.MethodGet, "/v2/products", nil, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTicker retrieves live prices for a product symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*broker.Ticker, error) {
	var out broker.Ticker
	if _, err := c.do(ctx, http.MethodGet, "/v2/tickers/"+url.PathEscape(symbol), nil, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceOrder places a new order
func (c *Client) PlaceOrder(ctx context.Context, req *broker.OrderRequest) (*broker.Order, error) {
	if err := broker.ValidateOrderRequest(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	var order broker.Order
	raw, err := c.do(ctx, http.MethodPost, "/v2/orders", nil, body, true, &order)
	if err != nil {
		return nil, err
	}
	order.Raw = string(raw)
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body []byte, signed bool, out any) ([]byte, error) {
	if signed && !c.credentials.Valid() {
		return nil, broker.NewBrokerError(name, "INVALID_CREDENTIALS", "API key and secret are required", broker.ErrInvalidCredentials)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, broker.NewBrokerError(name, "RATE_LIMIT", "Local rate limiter refused request", broker.ErrRateLimitExceeded)
		}
	}

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	if signed {
		timestamp := strconv.FormatInt(c.now().Unix(), 10)
		req.SetHeader("api-key", c.credentials.APIKey)
		req.SetHeader("timestamp", timestamp)
		req.SetHeader("signature", Sign(c.credentials.APISecret, method, timestamp, path, QueryString(query), string(body)))
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, broker.NewBrokerError(name, "TIMEOUT", method+" "+path+" timed out", broker.ErrTimeout)
		}
		return nil, broker.NewBrokerError(name, "NETWORK_ERROR", method+" "+path+" failed", fmt.Errorf("%w: %v", broker.ErrNetworkError, err))
	}

	raw := resp.Body()
	if err := checkStatus(resp.StatusCode(), raw); err != nil {
		return raw, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, broker.NewBrokerError(name, "DECODE_FAILED", "Malformed response envelope", err)
	}
	if !env.Success {
		code := "UNKNOWN"
		if env.Error != nil && env.Error.Code != "" {
			code = env.Error.Code
		}
		return raw, broker.NewBrokerError(name, code, string(raw), broker.ErrAPIError)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return raw, broker.NewBrokerError(name, "DECODE_FAILED", "Malformed result payload", err)
		}
	}
	return raw, nil
}

func checkStatus(status int, raw []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return broker.NewBrokerError(name, "UNAUTHORIZED",
			"Authentication failed; check API key/secret, IP whitelist and testnet flag", broker.ErrInvalidCredentials)
	case status == http.StatusTooManyRequests:
		return broker.NewBrokerError(name, "RATE_LIMIT", string(raw), broker.ErrRateLimitExceeded)
	case status >= 500:
		return broker.NewBrokerError(name, "SERVER_ERROR", fmt.Sprintf("HTTP %d: %s", status, raw), broker.ErrAPIError)
	case status >= 400:
		// 4xx bodies still carry the {success:false,error:{code}} envelope
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Code != "" {
			return broker.NewBrokerError(name, env.Error.Code, fmt.Sprintf("HTTP %d: %s", status, raw), broker.ErrAPIError)
		}
		return broker.NewBrokerError(name, "HTTP_ERROR", fmt.Sprintf("HTTP %d: %s", status, raw), broker.ErrAPIError)
	}
	return nil
}
