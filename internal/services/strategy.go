package services

import (
	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/models"
)

// StrategyExecution is one (user, instrument, futures|options) unit of work
type StrategyExecution struct {
	UserID       string
	AlertID      string
	Instrument   string
	StrategyType string
	LotSize      int64
	Side         broker.OrderSide

	// options only
	StrikeSelection string
	Expiry          string
	OptionAction    models.OptionAction
}

// ResolveExecutions expands an alert for one user. The result has zero, one
// or two entries: futures first, then options.
func ResolveExecutions(alert *models.Alert, user *models.User) []StrategyExecution {
	cfg := user.StrategyConfig()
	inst, ok := cfg.Instrument(alert.Instrument)
	if !ok {
		return nil
	}

	var execs []StrategyExecution
	if inst.FuturesEnabled && alert.AllowsFutures() {
		execs = append(execs, StrategyExecution{
			UserID:       user.ID,
			AlertID:      alert.ID,
			Instrument:   alert.Instrument,
			StrategyType: models.StrategyFutures,
			LotSize:      inst.FuturesLotSize,
			Side:         signalSide(alert.Action),
		})
	}

	if inst.OptionsEnabled && alert.AllowsOptions() {
		action := cfg.OptionActionFor(alert.Action)
		execs = append(execs, StrategyExecution{
			UserID:          user.ID,
			AlertID:         alert.ID,
			Instrument:      alert.Instrument,
			StrategyType:    models.StrategyOptions,
			LotSize:         inst.OptionsLotSize,
			Side:            action.Side(),
			StrikeSelection: cfg.StrikeSelection,
			Expiry:          cfg.Expiry,
			OptionAction:    action,
		})
	}

	return execs
}

func signalSide(action string) broker.OrderSide {
	if action == models.ActionSell {
		return broker.OrderSideSell
	}
	return broker.OrderSideBuy
}
