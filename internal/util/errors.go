// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound               = errors.New("resource not found")
	ErrInvalidInput           = errors.New("invalid input provided")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyProcessed       = errors.New("already processed") // Idempotent no-op, callers should treat as success
	ErrSessionNotFound        = errors.New("session not found")
	ErrAccountNotFound        = errors.New("wallet account not found")
	ErrHoldNotFound           = errors.New("hold entry not found")
	ErrSettlementFailed       = errors.New("payment settlement failed") // Session stays ended, payment_pending is set
)

// IsError checks if the given error wraps the target error.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
