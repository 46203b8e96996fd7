package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/google/uuid"
)

// Feed identifies where an alert was delivered
type Feed struct {
	Source string // primary_feed, custom_feed
	Owner  string // models.OwnerShared or a user id
}

// SharedFeed is the feed of the shared webhook
var SharedFeed = Feed{Source: models.SourcePrimaryFeed, Owner: models.OwnerShared}

// PersonalFeed is the feed of one user's personal webhook
func PersonalFeed(userID string) Feed {
	return Feed{Source: models.SourceCustomFeed, Owner: userID}
}

// Normalizer turns raw webhook bodies into candidate alerts
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize parses and validates a webhook body. Exactly one of the
// returned values is non-nil.
func (n *Normalizer) Normalize(body []byte, feed Feed) (*models.Alert, *Rejection) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, reject("unsupported payload: body must be JSON")
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		obj = map[string]any{"message": stringify(decoded)}
	}
	fields := foldKeys(obj)

	rawSymbol := fields.str("symbol", "ticker")
	if rawSymbol == "" {
		return nil, reject("no symbol")
	}

	rawAction := fields.str("action", "strategy.order.action")
	if rawAction == "" {
		rawAction = fields.nested("strategy", "order", "action")
	}
	if rawAction == "" {
		return nil, reject("no action")
	}

	symbol, instrument, ok := NormalizeSymbol(rawSymbol)
	if !ok {
		return nil, reject("unknown instrument: %s", rawSymbol)
	}

	action, ok := NormalizeAction(rawAction)
	if !ok {
		return nil, reject("invalid action: %s", rawAction)
	}

	alert := &models.Alert{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Instrument:   instrument,
		Action:       action,
		Price:        fields.price("price", "close"),
		Message:      fields.str("message", "comment"),
		StrategyType: strategyHint(fields),
		Source:       feed.Source,
		SourceOwner:  feed.Owner,
		CreatedAt:    n.now().UTC(),
		RawBody:      string(body),
	}
	return alert, nil
}

// NormalizeSymbol cleans a charting ticker into the canonical <INST>USD form
// and returns the instrument. BINANCE:BTCUSDT.P, BTC-USD and BTC all map to BTCUSD.
func NormalizeSymbol(raw string) (symbol, instrument string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = broker.NormalizeSymbol(strings.TrimSuffix(s, ".P"))
	s = strings.ReplaceAll(s, "USDT", "USD")

	switch s {
	case "BTC", "BITCOIN":
		s = "BTCUSD"
	case "ETH", "ETHEREUM":
		s = "ETHUSD"
	default:
		if !strings.HasSuffix(s, "USD") {
			s += "USD"
		}
	}

	for _, inst := range models.SupportedInstruments {
		if strings.HasPrefix(s, inst) {
			return s, inst, true
		}
	}
	return s, "", false
}

// NormalizeAction maps the accepted action vocabulary onto BUY or SELL
func NormalizeAction(raw string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "ENTRY_LONG":
		return models.ActionBuy, true
	case "SELL", "SHORT", "ENTRY_SHORT", "EXIT":
		return models.ActionSell, true
	}
	return "", false
}

func strategyHint(f payloadFields) string {
	for _, key := range []string{"strategy", "product", "type"} {
		v, ok := f[key].(string)
		if !ok {
			continue
		}
		switch hint := strings.ToLower(strings.TrimSpace(v)); hint {
		case models.StrategyFutures, models.StrategyOptions, models.StrategyBoth:
			return hint
		}
	}
	return models.StrategyBoth
}

// payloadFields is a JSON object with lower-cased keys
type payloadFields map[string]any

func foldKeys(obj map[string]any) payloadFields {
	out := make(payloadFields, len(obj))
	for k, v := range obj {
		lk := strings.ToLower(k)
		// an exact lower-case key wins over a differently cased duplicate
		if _, exists := out[lk]; exists && k != lk {
			continue
		}
		out[lk] = v
	}
	return out
}

func (f payloadFields) str(keys ...string) string {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return s
		}
	}
	return ""
}

func (f payloadFields) nested(path ...string) string {
	var cur any = map[string]any(f)
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = foldKeys(m)[p]
	}
	if s, ok := cur.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (f payloadFields) price(keys ...string) *float64 {
	for _, k := range keys {
		var p float64
		switch v := f[k].(type) {
		case float64:
			p = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			p = parsed
		default:
			continue
		}
		if p > 0 {
			return &p
		}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
