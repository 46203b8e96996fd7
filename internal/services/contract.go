package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
)

// wideExpiryToleranceDays bounds the nearest policy's second search pass
const wideExpiryToleranceDays = 30

// OptionChoice is a resolved option contract with the targets it was scored against
type OptionChoice struct {
	Product      broker.Product
	Spot         float64
	TargetStrike float64
	TargetExpiry time.Time
	ExpiryDiff   int     // days between settlement date and target date
	Score        float64 // strike distance in strike intervals
}

// ContractResolver maps strategy executions to exchange products
type ContractResolver struct {
	cfg    config.OptionsConfig
	prices broker.PriceSource
	now    func() time.Time
	logger *log.Logger
}

// NewContractResolver creates a resolver. prices is an optional secondary
// spot reference and may be nil.
func NewContractResolver(cfg config.OptionsConfig, prices broker.PriceSource) *ContractResolver {
	return &ContractResolver{
		cfg:    cfg,
		prices: prices,
		now:    time.Now,
		logger: log.New(log.Writer(), "[ContractResolver] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (r *ContractResolver) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// FindFutures returns the first perpetual or dated future whose symbol contains the instrument
func (r *ContractResolver) FindFutures(products []broker.Product, instrument string) (*broker.Product, error) {
	for i := range products {
		p := &products[i]
		if p.IsFutures() && strings.Contains(strings.ToUpper(p.Symbol), instrument) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no futures product for %s", ErrResolutionFailed, instrument)
}

// FindOption computes the target strike and expiry for an options execution
// and picks the best scoring listed contract.
func (r *ContractResolver) FindOption(ctx context.Context, gw broker.Gateway, products []broker.Product, alert *models.Alert, exec StrategyExecution) (*OptionChoice, error) {
	interval := r.interval(exec.Instrument)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: no strike interval for %s", ErrResolutionFailed, exec.Instrument)
	}

	now := r.now().UTC()
	right := exec.OptionAction.Right()
	spot := r.SpotPrice(ctx, gw, products, alert)
	target := TargetStrike(spot, interval, exec.StrikeSelection, right)
	expiry := TargetExpiry(now, exec.Expiry, r.cfg.CutoffHour())

	var candidates []OptionChoice
	for _, p := range products {
		if !p.IsOption() || p.Kind() != right || p.Underlying() != exec.Instrument {
			continue
		}
		if p.SettlementTime == nil || !p.SettlementTime.After(now) {
			continue
		}
		if p.State != "" && p.State != "live" {
			continue
		}
		candidates = append(candidates, OptionChoice{
			Product:      p,
			Spot:         spot,
			TargetStrike: target,
			TargetExpiry: expiry,
			ExpiryDiff:   daysBetween(*p.SettlementTime, expiry),
			Score:        math.Abs(float64(p.StrikePrice)-target) / interval,
		})
	}

	tolerance := r.cfg.ExpiryToleranceDays
	best := pickOption(candidates, tolerance)
	if best == nil && r.cfg.StrikePolicy != config.StrikePolicyStrict {
		best = pickOption(candidates, wideExpiryToleranceDays)
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no %s %s option near strike %.0f expiring %s",
			ErrResolutionFailed, exec.Instrument, right, target, expiry.Format("2006-01-02"))
	}

	if r.cfg.StrikePolicy == config.StrikePolicyStrict && best.Score > r.cfg.MaxStrikeSteps {
		return nil, fmt.Errorf("%w: closest %s strike %.0f is %.1f intervals from target %.0f",
			ErrResolutionFailed, exec.Instrument, float64(best.Product.StrikePrice), best.Score, target)
	}

	if best.ExpiryDiff > 0 || best.Score > 0 {
		r.logger.Printf("Using %s for target strike %.0f expiry %s (expiry off by %d days, strike off by %.1f intervals)",
			best.Product.Symbol, target, expiry.Format("2006-01-02"), best.ExpiryDiff, best.Score)
	}
	return best, nil
}

// SpotPrice resolves the reference price: the alert price, then the Delta
// perpetual ticker, then the secondary price source, then a configured constant.
func (r *ContractResolver) SpotPrice(ctx context.Context, gw broker.Gateway, products []broker.Product, alert *models.Alert) float64 {
	if alert.Price != nil && *alert.Price > 0 {
		return *alert.Price
	}

	if perp, err := r.FindFutures(products, alert.Instrument); err == nil {
		ticker, err := gw.GetTicker(ctx, perp.Symbol)
		if err == nil {
			if p := ticker.Reference(); p > 0 {
				return p
			}
		} else {
			r.logger.Printf("Ticker for %s unavailable: %v", perp.Symbol, err)
		}
	}

	if r.prices != nil {
		p, err := r.prices.MarkPrice(ctx, alert.Instrument)
		if err == nil && p > 0 {
			return p
		}
		r.logger.Printf("Secondary mark price for %s unavailable: %v", alert.Instrument, err)
	}

	fallback := r.cfg.FallbackPrice[alert.Instrument]
	r.logger.Printf("Using fallback spot %.0f for %s", fallback, alert.Instrument)
	return fallback
}

func (r *ContractResolver) interval(instrument string) float64 {
	return r.cfg.StrikeInterval[instrument]
}

// ATMStrike rounds spot to the nearest multiple of interval
func ATMStrike(spot, interval float64) float64 {
	return math.Round(spot/interval) * interval
}

// TargetStrike applies the OTM offset: calls move up, puts move down
func TargetStrike(spot, interval float64, selection string, right broker.ContractType) float64 {
	atm := ATMStrike(spot, interval)

	var steps float64
	switch selection {
	case models.StrikeOTM1:
		steps = 1
	case models.StrikeOTM2:
		steps = 2
	}
	if right == broker.ContractPut {
		steps = -steps
	}
	return atm + steps*interval
}

// TargetExpiry returns the target settlement date (midnight UTC)
func TargetExpiry(now time.Time, preference string, cutoffHour int) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	pastCutoff := now.Hour() >= cutoffHour

	switch preference {
	case models.ExpirySameDay:
		return today
	case models.ExpiryNextDay:
		return today.AddDate(0, 0, 1)
	case models.ExpiryDayAfter:
		return today.AddDate(0, 0, 2)
	case models.ExpiryMonthly:
		last := lastFriday(today.Year(), today.Month())
		if today.After(last) || (today.Equal(last) && pastCutoff) {
			next := today.AddDate(0, 1, 1-today.Day())
			last = lastFriday(next.Year(), next.Month())
		}
		return last
	default:
		days := (int(time.Friday) - int(today.Weekday()) + 7) % 7
		if days == 0 && pastCutoff {
			days = 7
		}
		return today.AddDate(0, 0, days)
	}
}

func lastFriday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func daysBetween(a, b time.Time) int {
	a, b = a.UTC(), b.UTC()
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := da.Sub(db).Hours() / 24
	return int(math.Abs(math.Round(diff)))
}

// pickOption prefers the closest expiry, then the lowest strike score
func pickOption(candidates []OptionChoice, maxDays int) *OptionChoice {
	var within []OptionChoice
	for _, c := range candidates {
		if c.ExpiryDiff <= maxDays {
			within = append(within, c)
		}
	}
	if len(within) == 0 {
		return nil
	}

	sort.SliceStable(within, func(i, j int) bool {
		a, b := within[i], within[j]
		if a.ExpiryDiff != b.ExpiryDiff {
			return a.ExpiryDiff < b.ExpiryDiff
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.Product.Symbol < b.Product.Symbol
	})
	return &within[0]
}
