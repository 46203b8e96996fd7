package models

import (
	"strings"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
)

// Feed subscriptions
const (
	FeedShared   = "shared"
	FeedPersonal = "personal"
)

// User is a subscriber account. Identity and settings editing live elsewhere;
// this service only reads them.
type User struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	Name      string          `json:"name"`
	Feed      string          `json:"feed" gorm:"size:16;not null;default:shared;index"`
	FeedID    *string         `json:"feed_id,omitempty" gorm:"size:36;uniqueIndex"`
	APIKey    string          `json:"-"`
	APISecret string          `json:"-"`
	Region    string          `json:"region,omitempty" gorm:"size:16"`
	Testnet   bool            `json:"testnet"`
	IsActive  bool            `json:"is_active"`
	Settings  TradingSettings `json:"settings" gorm:"serializer:json;type:text"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Credentials returns the exchange credentials of the user
func (u *User) Credentials() *broker.Credentials {
	return &broker.Credentials{
		APIKey:    u.APIKey,
		APISecret: u.APISecret,
		Testnet:   u.Testnet,
		Region:    u.Region,
	}
}

// HasCredentials reports whether an exchange key pair is configured
func (u *User) HasCredentials() bool {
	return u.APIKey != "" && u.APISecret != ""
}

// StrategyConfig resolves the stored settings, with the user's feed column
// taking precedence over the legacy subscriber_type field.
func (u *User) StrategyConfig() StrategyConfig {
	cfg := u.Settings.Resolve()
	if u.Feed != "" {
		cfg.Feed = u.Feed
	}
	return cfg
}

// OptionAction maps a signal to an option right and order side
type OptionAction string

const (
	BuyCall  OptionAction = "buy_call"
	BuyPut   OptionAction = "buy_put"
	SellCall OptionAction = "sell_call"
	SellPut  OptionAction = "sell_put"
)

// Valid reports whether the action is one of the four known mappings
func (a OptionAction) Valid() bool {
	switch a {
	case BuyCall, BuyPut, SellCall, SellPut:
		return true
	}
	return false
}

// Right returns the option right (call or put)
func (a OptionAction) Right() broker.ContractType {
	if strings.HasSuffix(string(a), "_put") {
		return broker.ContractPut
	}
	return broker.ContractCall
}

// Side returns the order side
func (a OptionAction) Side() broker.OrderSide {
	if strings.HasPrefix(string(a), "sell_") {
		return broker.OrderSideSell
	}
	return broker.OrderSideBuy
}

// Strike selection modes
const (
	StrikeATM  = "atm"
	StrikeOTM1 = "otm_1"
	StrikeOTM2 = "otm_2"
)

// Expiry preferences
const (
	ExpirySameDay  = "same_day"
	ExpiryNextDay  = "next_day"
	ExpiryDayAfter = "day_after"
	ExpiryWeekly   = "weekly"
	ExpiryMonthly  = "monthly"
)

// StrategyConfigVersion is the version of the resolved settings layout
const StrategyConfigVersion = 2

// TradingSettings is the stored settings document. Fields are pointers so
// that "unset" can fall through to legacy aliases and defaults.
type TradingSettings struct {
	Version     int      `json:"version,omitempty" yaml:"version,omitempty"`
	Instruments []string `json:"instruments,omitempty" yaml:"instruments,omitempty"`

	BTCFuturesEnabled *bool  `json:"btc_futures_enabled,omitempty" yaml:"btc_futures_enabled,omitempty"`
	BTCOptionsEnabled *bool  `json:"btc_options_enabled,omitempty" yaml:"btc_options_enabled,omitempty"`
	ETHFuturesEnabled *bool  `json:"eth_futures_enabled,omitempty" yaml:"eth_futures_enabled,omitempty"`
	ETHOptionsEnabled *bool  `json:"eth_options_enabled,omitempty" yaml:"eth_options_enabled,omitempty"`
	BTCFuturesLotSize *int64 `json:"btc_futures_lot_size,omitempty" yaml:"btc_futures_lot_size,omitempty"`
	BTCOptionsLotSize *int64 `json:"btc_options_lot_size,omitempty" yaml:"btc_options_lot_size,omitempty"`
	ETHFuturesLotSize *int64 `json:"eth_futures_lot_size,omitempty" yaml:"eth_futures_lot_size,omitempty"`
	ETHOptionsLotSize *int64 `json:"eth_options_lot_size,omitempty" yaml:"eth_options_lot_size,omitempty"`

	OptionsStrikeSelection string       `json:"options_strike_selection,omitempty" yaml:"options_strike_selection,omitempty"`
	OptionsExpiry          string       `json:"options_expiry,omitempty" yaml:"options_expiry,omitempty"`
	OnBuySignal            OptionAction `json:"on_buy_signal,omitempty" yaml:"on_buy_signal,omitempty"`
	OnSellSignal           OptionAction `json:"on_sell_signal,omitempty" yaml:"on_sell_signal,omitempty"`
	SubscriberType         string       `json:"subscriber_type,omitempty" yaml:"subscriber_type,omitempty"`

	// legacy aliases
	TradeFutures     *bool  `json:"trade_futures,omitempty" yaml:"trade_futures,omitempty"`
	TradeOptions     *bool  `json:"trade_options,omitempty" yaml:"trade_options,omitempty"`
	BTCLotSize       *int64 `json:"btc_lot_size,omitempty" yaml:"btc_lot_size,omitempty"`
	ETHLotSize       *int64 `json:"eth_lot_size,omitempty" yaml:"eth_lot_size,omitempty"`
	ContractQuantity *int64 `json:"contract_quantity,omitempty" yaml:"contract_quantity,omitempty"`
}

// InstrumentConfig is the resolved per-instrument switchboard
type InstrumentConfig struct {
	FuturesEnabled bool  `json:"futures_enabled"`
	FuturesLotSize int64 `json:"futures_lot_size"`
	OptionsEnabled bool  `json:"options_enabled"`
	OptionsLotSize int64 `json:"options_lot_size"`
}

// StrategyConfig is the fully defaulted view of TradingSettings
type StrategyConfig struct {
	Version         int                         `json:"version"`
	Feed            string                      `json:"feed"`
	Instruments     map[string]InstrumentConfig `json:"instruments"`
	StrikeSelection string                      `json:"options_strike_selection"`
	Expiry          string                      `json:"options_expiry"`
	OnBuySignal     OptionAction                `json:"on_buy_signal"`
	OnSellSignal    OptionAction                `json:"on_sell_signal"`
}

// Instrument returns the config of an enabled instrument
func (c StrategyConfig) Instrument(code string) (InstrumentConfig, bool) {
	ic, ok := c.Instruments[strings.ToUpper(code)]
	return ic, ok
}

// OptionActionFor returns the option mapping for a BUY or SELL signal
func (c StrategyConfig) OptionActionFor(action string) OptionAction {
	if action == ActionSell {
		return c.OnSellSignal
	}
	return c.OnBuySignal
}

// SupportedInstruments are the underlyings the pipeline trades
var SupportedInstruments = []string{"BTC", "ETH"}

// Resolve applies the defaulting rules once:
// per-instrument flag, then legacy trade_futures/trade_options, then default;
// per-instrument lot size, then legacy <inst>_lot_size, then contract_quantity, then 1.
func (s TradingSettings) Resolve() StrategyConfig {
	cfg := StrategyConfig{
		Version:         StrategyConfigVersion,
		Feed:            FeedShared,
		Instruments:     make(map[string]InstrumentConfig),
		StrikeSelection: StrikeATM,
		Expiry:          ExpiryWeekly,
		OnBuySignal:     BuyCall,
		OnSellSignal:    BuyPut,
	}

	enabled := s.Instruments
	if len(enabled) == 0 {
		enabled = SupportedInstruments
	}

	for _, raw := range enabled {
		code := strings.ToUpper(strings.TrimSpace(raw))
		var futures, options *bool
		var futuresLot, optionsLot, legacyLot *int64
		switch code {
		case "BTC":
			futures, options = s.BTCFuturesEnabled, s.BTCOptionsEnabled
			futuresLot, optionsLot, legacyLot = s.BTCFuturesLotSize, s.BTCOptionsLotSize, s.BTCLotSize
		case "ETH":
			futures, options = s.ETHFuturesEnabled, s.ETHOptionsEnabled
			futuresLot, optionsLot, legacyLot = s.ETHFuturesLotSize, s.ETHOptionsLotSize, s.ETHLotSize
		default:
			continue
		}

		cfg.Instruments[code] = InstrumentConfig{
			FuturesEnabled: firstBool(true, futures, s.TradeFutures),
			OptionsEnabled: firstBool(false, options, s.TradeOptions),
			FuturesLotSize: firstLot(futuresLot, legacyLot, s.ContractQuantity),
			OptionsLotSize: firstLot(optionsLot, legacyLot, s.ContractQuantity),
		}
	}

	switch s.OptionsStrikeSelection {
	case StrikeATM, StrikeOTM1, StrikeOTM2:
		cfg.StrikeSelection = s.OptionsStrikeSelection
	}
	switch s.OptionsExpiry {
	case ExpirySameDay, ExpiryNextDay, ExpiryDayAfter, ExpiryWeekly, ExpiryMonthly:
		cfg.Expiry = s.OptionsExpiry
	}
	if s.OnBuySignal.Valid() {
		cfg.OnBuySignal = s.OnBuySignal
	}
	if s.OnSellSignal.Valid() {
		cfg.OnSellSignal = s.OnSellSignal
	}

	switch s.SubscriberType {
	case "custom_strategy", FeedPersonal:
		cfg.Feed = FeedPersonal
	}

	return cfg
}

func firstBool(def bool, values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return def
}

func firstLot(values ...*int64) int64 {
	for _, v := range values {
		if v != nil && *v > 0 {
			return *v
		}
	}
	return 1
}
