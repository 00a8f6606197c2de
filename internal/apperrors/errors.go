// Package apperrors holds the error values the ledger returns to its callers.
package apperrors

import "errors"

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidClientName = errors.New("client name must not be empty")
	ErrInvalidKind       = errors.New("operation kind must be deposit or withdrawal")
	ErrInvalidRange      = errors.New("since must not be after till")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrClientNotFound    = errors.New("client not found")
	ErrNoData            = errors.New("no operations found for the requested period")
	ErrStorageFailure    = errors.New("storage failure")
	ErrDuplicateID       = errors.New("operation id already recorded")
)

// IsValidation reports whether err was caused by bad caller input
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidClientName) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidRange)
}
