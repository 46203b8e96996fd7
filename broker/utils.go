package broker

import (
	"fmt"
	"strings"
)

// ValidateOrderRequest validates an order request
func ValidateOrderRequest(req *OrderRequest) error {
	if req == nil {
		return fmt.Errorf("order request is nil")
	}

	if req.ProductID <= 0 {
		return ErrInvalidProduct
	}

	if req.Side != OrderSideBuy && req.Side != OrderSideSell {
		return ErrInvalidOrderSide
	}

	if req.Type != OrderTypeMarket && req.Type != OrderTypeLimit {
		return ErrInvalidOrderType
	}

	if req.Size <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidQuantity)
	}

	if req.Type == OrderTypeLimit && req.LimitPrice == "" {
		return fmt.Errorf("%w: price required for limit orders", ErrInvalidPrice)
	}

	return nil
}

// NormalizeSymbol upper-cases a symbol and strips - _ / separators
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.ReplaceAll(symbol, "-", "")
	symbol = strings.ReplaceAll(symbol, "_", "")
	symbol = strings.ReplaceAll(symbol, "/", "")
	return symbol
}

// GetOppositeOrderSide returns the opposite order side
func GetOppositeOrderSide(side OrderSide) OrderSide {
	if side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// PositionSide returns the order side that opened a signed position size
func PositionSide(size int64) OrderSide {
	if size < 0 {
		return OrderSideSell
	}
	return OrderSideBuy
}

// CloseOrder builds the market order that flattens a position
func CloseOrder(pos Position) *OrderRequest {
	size := pos.Size
	if size < 0 {
		size = -size
	}
	return &OrderRequest{
		ProductID:  pos.ProductID,
		Size:       size,
		Side:       GetOppositeOrderSide(PositionSide(pos.Size)),
		Type:       OrderTypeMarket,
		ReduceOnly: true,
	}
}
