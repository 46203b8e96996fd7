package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/models"
)

// Executor reconciles a user's positions and places the opening order
// for one strategy execution. Every attempt is recorded as a trade.
type Executor struct {
	resolver *ContractResolver
	trades   *TradeService
	logger   *log.Logger
}

// NewExecutor creates an executor
func NewExecutor(resolver *ContractResolver, trades *TradeService) *Executor {
	return &Executor{
		resolver: resolver,
		trades:   trades,
		logger:   log.New(log.Writer(), "[Executor] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (e *Executor) SetLogger(logger *log.Logger) {
	e.logger = logger
}

// Execute runs one strategy execution: resolve the product, close opposing
// positions, then open. Closes always complete before the open is sent.
func (e *Executor) Execute(ctx context.Context, gw broker.Gateway, alert *models.Alert, exec StrategyExecution) error {
	base := models.Trade{
		UserID:       exec.UserID,
		AlertID:      alert.ID,
		Symbol:       alert.Symbol,
		StrategyType: exec.StrategyType,
		Instrument:   exec.Instrument,
		Action:       alert.Action,
		Purpose:      models.PurposeOpen,
		Side:         string(exec.Side),
		Quantity:     exec.LotSize,
	}

	products, err := gw.GetProducts(ctx)
	if err != nil {
		return e.fail(ctx, base, fmt.Errorf("failed to load products: %w", err))
	}

	var product *broker.Product
	switch exec.StrategyType {
	case models.StrategyOptions:
		choice, err := e.resolver.FindOption(ctx, gw, products, alert, exec)
		if err != nil {
			return e.fail(ctx, base, err)
		}
		product = &choice.Product
	default:
		product, err = e.resolver.FindFutures(products, exec.Instrument)
		if err != nil {
			return e.fail(ctx, base, err)
		}
	}
	base.ProductID = product.ID
	base.ProductSymbol = product.Symbol

	positions, err := gw.GetPositions(ctx, exec.Instrument)
	if err != nil {
		return e.fail(ctx, base, fmt.Errorf("failed to load positions: %w", err))
	}

	for _, pos := range e.positionsToClose(products, positions, product, exec) {
		_ = e.place(ctx, gw, base, pos.ProductSymbol, broker.CloseOrder(pos))
	}

	open := &broker.OrderRequest{
		ProductID: product.ID,
		Size:      exec.LotSize,
		Side:      exec.Side,
		Type:      broker.OrderTypeMarket,
	}
	return e.place(ctx, gw, base, product.Symbol, open)
}

// positionsToClose applies the reversal policy. Options flatten every option
// position on the instrument; futures close the same product only when it
// points the other way.
func (e *Executor) positionsToClose(products []broker.Product, positions []broker.Position, target *broker.Product, exec StrategyExecution) []broker.Position {
	catalog := make(map[int64]*broker.Product, len(products))
	for i := range products {
		catalog[products[i].ID] = &products[i]
	}

	var out []broker.Position
	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}

		switch exec.StrategyType {
		case models.StrategyOptions:
			if isOptionOn(catalog[pos.ProductID], pos, exec.Instrument) {
				out = append(out, pos)
			}
		default:
			if pos.ProductID == target.ID && broker.PositionSide(pos.Size) != exec.Side {
				out = append(out, pos)
			}
		}
	}
	return out
}

func isOptionOn(p *broker.Product, pos broker.Position, instrument string) bool {
	if p != nil {
		return p.IsOption() && p.Underlying() == instrument
	}
	// delisted or not in the catalog; fall back to the symbol, e.g. C-BTC-95000-171026
	parts := strings.Split(pos.ProductSymbol, "-")
	return len(parts) >= 2 && (parts[0] == "C" || parts[0] == "P") && strings.EqualFold(parts[1], instrument)
}

func (e *Executor) place(ctx context.Context, gw broker.Gateway, base models.Trade, productSymbol string, req *broker.OrderRequest) error {
	trade := base
	trade.ProductID = req.ProductID
	trade.ProductSymbol = productSymbol
	trade.Side = string(req.Side)
	trade.Quantity = req.Size
	if req.ReduceOnly {
		trade.Purpose = models.PurposeClose
	}

	order, err := gw.PlaceOrder(ctx, req)
	if err != nil {
		level := "rejected"
		if broker.IsTemporaryError(err) {
			level = "failed (transient)"
		}
		e.logger.Printf("%s order %s %d %s for user %s %s: %v",
			trade.Purpose, trade.Side, trade.Quantity, productSymbol, trade.UserID, level, err)
		trade.Status = models.TradeFailed
		trade.Error = err.Error()
		e.record(ctx, &trade)
		return err
	}

	trade.Status = models.TradeSuccess
	trade.Response = order.Raw
	e.logger.Printf("%s order %s %d %s for user %s placed: id=%d state=%s",
		trade.Purpose, trade.Side, trade.Quantity, productSymbol, trade.UserID, order.ID, order.State)
	e.record(ctx, &trade)
	return nil
}

func (e *Executor) fail(ctx context.Context, trade models.Trade, err error) error {
	e.logger.Printf("%s execution for user %s on alert %s failed: %v", trade.StrategyType, trade.UserID, trade.AlertID, err)
	trade.Status = models.TradeFailed
	trade.Error = err.Error()
	e.record(ctx, &trade)
	return err
}

// RecordFailure stores a failed trade for an execution that never reached the exchange
func (e *Executor) RecordFailure(ctx context.Context, alert *models.Alert, exec StrategyExecution, err error) {
	_ = e.fail(ctx, models.Trade{
		UserID:       exec.UserID,
		AlertID:      alert.ID,
		Symbol:       alert.Symbol,
		StrategyType: exec.StrategyType,
		Instrument:   exec.Instrument,
		Action:       alert.Action,
		Purpose:      models.PurposeOpen,
		Side:         string(exec.Side),
		Quantity:     exec.LotSize,
	}, err)
}

func (e *Executor) record(ctx context.Context, trade *models.Trade) {
	// the audit row must survive a cancelled execution context
	if err := e.trades.Record(context.WithoutCancel(ctx), trade); err != nil {
		e.logger.Printf("Failed to record trade for user %s on alert %s: %v", trade.UserID, trade.AlertID, err)
	}
}
