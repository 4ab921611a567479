// Package common defines the error taxonomy shared by the ledger store,
// the engines and the HTTP layer. Handlers switch on these with errors.Is.
package common

import (
	"errors"
	"fmt"
)

// Request-level errors: the caller sent something wrong and must not retry as-is.
var (
	// ErrInvalidRequest is returned for malformed or missing input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means no principal could be resolved for the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the principal's role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Business-rule rejections.
var (
	// ErrQuestCapped means the user reached the quest's max completions.
	ErrQuestCapped = errors.New("quest already completed max times")
	// ErrOnCooldown means the cooldown since the last completion has not elapsed.
	ErrOnCooldown = errors.New("quest on cooldown")
	// ErrInsufficientStock rejects a decrement below zero under the reject policy.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds rejects a debit below zero under the reject policy.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Storage errors. Both are safe to retry; checkouts carry an idempotency key for that.
var (
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means the ledger store could not complete the operation.
	ErrUnavailable = errors.New("store unavailable")
	// ErrTimeout means the ledger store did not answer within the configured bound.
	ErrTimeout = errors.New("store timeout")
)

var (
	// ErrInvalidAmount rejects wallet amounts that are not positive whole numbers.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive number", ErrInvalidRequest)
	// ErrUndoExpired means the order is older than the undo window.
	ErrUndoExpired = fmt.Errorf("%w: undo window expired", ErrInvalidRequest)
)

// Invalid builds an ErrInvalidRequest with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// IsClassified reports whether err already belongs to one of the taxonomy classes.
func IsClassified(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest, ErrNotFound, ErrUnauthorized, ErrForbidden,
		ErrQuestCapped, ErrOnCooldown, ErrInsufficientStock, ErrInsufficientFunds,
		ErrConflict, ErrUnavailable, ErrTimeout,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
