package broker

import (
	"errors"
	"fmt"
)

// Common broker errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrInvalidOrderSide   = errors.New("invalid order side")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrAPIError           = errors.New("API error")
	ErrNetworkError       = errors.New("network error")
	ErrTimeout            = errors.New("request timeout")
)

// BrokerError represents a broker-specific error
type BrokerError struct {
	Broker  string `json:"broker"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Broker, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Broker, e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new broker error
func NewBrokerError(broker, code, message string, err error) *BrokerError {
	return &BrokerError{
		Broker:  broker,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsTemporaryError checks if an error is temporary (network, rate limit, etc.).
// Nothing retries on it; it only decides the log level of a failed trade.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrNetworkError) ||
		errors.Is(err, ErrTimeout) {
		return true
	}

	var brokerErr *BrokerError
	if errors.As(err, &brokerErr) {
		switch brokerErr.Code {
		case "RATE_LIMIT", "NETWORK_ERROR", "TIMEOUT", "SERVER_ERROR":
			return true
		}
	}

	return false
}
