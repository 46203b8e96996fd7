package services

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateAlert   = errors.New("duplicate alert")
	ErrResolutionFailed = errors.New("contract resolution failed")
	ErrUnknownFeed      = errors.New("unknown feed")
	ErrNoCredentials    = errors.New("exchange credentials not configured")
)

// Rejection is the structured outcome of an unusable webhook payload
type Rejection struct {
	Reason string `json:"reason"`
}

func reject(format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}
