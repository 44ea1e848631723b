package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain packages wrap one of these so transports can classify
// failures with errors.Is.
var (
	// ErrValidation indicates bad input; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing order, item or part.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique-key or constraint conflict.
	ErrConflict = errors.New("conflict")
	// ErrTransaction indicates a begin/commit/rollback or locking failure.
	// The transaction has been rolled back by the time it surfaces.
	ErrTransaction = errors.New("transaction failed")
	// ErrTimeout indicates the transaction deadline or lock timeout expired.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrTransaction)
)

// UserSafeMessage returns an error message that can be shown to API clients.
// Unclassified errors collapse to a generic message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err.Error()
	case errors.Is(err, ErrTimeout):
		return "the operation timed out, please retry"
	default:
		return "internal error"
	}
}
