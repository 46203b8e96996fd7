package broker

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "market_order"
	OrderTypeLimit  OrderType = "limit_order"
)

// ContractType classifies a product in the exchange catalog
type ContractType string

const (
	ContractPerpetual ContractType = "perpetual_futures"
	ContractFutures   ContractType = "futures"
	ContractCall      ContractType = "call_options"
	ContractPut       ContractType = "put_options"
)

// Credentials represents the API credentials of one exchange account
type Credentials struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APISecret string `json:"api_secret" yaml:"api_secret"`
	Testnet   bool   `json:"is_testnet" yaml:"testnet"`
	Region    string `json:"region" yaml:"region"` // india, global
}

// Valid reports whether both halves of the key pair are present
func (c *Credentials) Valid() bool {
	return c != nil && c.APIKey != "" && c.APISecret != ""
}

// OrderRequest represents a request to place an order
type OrderRequest struct {
	ProductID  int64     `json:"product_id"`
	Size       int64     `json:"size"`
	Side       OrderSide `json:"side"`
	Type       OrderType `json:"order_type"`
	LimitPrice string    `json:"limit_price,omitempty"`
	ReduceOnly bool      `json:"reduce_only,omitempty"`
}

// Order represents an order acknowledgement
type Order struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	ProductSymbol string    `json:"product_symbol"`
	Side          OrderSide `json:"side"`
	Size          int64     `json:"size"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"created_at"`

	// Raw is the untouched response body, kept for the trade audit trail
	Raw string `json:"-"`
}

// Position represents an open position; Size is signed, negative for short
type Position struct {
	ProductID     int64   `json:"product_id"`
	ProductSymbol string  `json:"product_symbol"`
	Size          int64   `json:"size"`
	EntryPrice    Decimal `json:"entry_price"`
}

// Balance represents one wallet asset balance
type Balance struct {
	AssetSymbol      string  `json:"asset_symbol"`
	Balance          Decimal `json:"balance"`
	AvailableBalance Decimal `json:"available_balance"`
}

// Asset is the nested underlying/settling asset descriptor
type Asset struct {
	Symbol string `json:"symbol"`
}

// Product represents an instrument in the exchange catalog
type Product struct {
	ID              int64        `json:"id"`
	Symbol          string       `json:"symbol"`
	ContractType    ContractType `json:"contract_type"`
	ProductType     string       `json:"product_type"`
	StrikePrice     Decimal      `json:"strike_price"`
	SettlementTime  *time.Time   `json:"settlement_time"`
	State           string       `json:"state"`
	UnderlyingAsset Asset        `json:"underlying_asset"`
}

// Kind returns the contract classification, falling back to product_type for older catalogs
func (p *Product) Kind() ContractType {
	if p.ContractType != "" {
		return p.ContractType
	}
	return ContractType(p.ProductType)
}

// IsFutures reports whether the product is a perpetual or dated future
func (p *Product) IsFutures() bool {
	k := p.Kind()
	return k == ContractPerpetual || k == ContractFutures
}

// IsOption reports whether the product is a call or put
func (p *Product) IsOption() bool {
	k := p.Kind()
	return k == ContractCall || k == ContractPut
}

// Underlying returns the underlying asset code, parsed from the symbol when absent
func (p *Product) Underlying() string {
	if p.UnderlyingAsset.Symbol != "" {
		return strings.ToUpper(p.UnderlyingAsset.Symbol)
	}
	// C-BTC-95000-171026
	parts := strings.Split(p.Symbol, "-")
	if len(parts) >= 2 && p.IsOption() {
		return strings.ToUpper(parts[1])
	}
	return ""
}

// Ticker carries the live price fields used for spot reference
type Ticker struct {
	Symbol    string  `json:"symbol"`
	MarkPrice Decimal `json:"mark_price"`
	SpotPrice Decimal `json:"spot_price"`
	Close     Decimal `json:"close"`
}

// Reference returns the first positive price among mark, spot and close
func (t *Ticker) Reference() float64 {
	for _, v := range []Decimal{t.MarkPrice, t.SpotPrice, t.Close} {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

// Decimal decodes exchange numbers that arrive either quoted or bare
type Decimal float64

// UnmarshalJSON accepts "123.4", 123.4 and null
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*d = Decimal(f)
	return nil
}

// MarshalJSON writes the value as a bare number
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(d))
}
