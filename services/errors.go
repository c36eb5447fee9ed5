package services

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these to HTTP statuses; everything wrapping
// ErrConflict or ErrValidation is rejected with zero partial effect.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	// ErrTransient marks store-level failures that are safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// Named business errors, each carrying its kind.
var (
	ErrInsufficientStock    = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrPromotionExhausted   = fmt.Errorf("%w: promotion usage limit reached", ErrConflict)
	ErrNoCourierAvailable   = fmt.Errorf("%w: no courier available", ErrConflict)
	ErrCourierUnavailable   = fmt.Errorf("%w: courier is not available", ErrConflict)
	ErrDeliveryTerminal     = fmt.Errorf("%w: delivery is in a terminal state", ErrConflict)
	ErrOrderTerminal        = fmt.Errorf("%w: order is in a terminal state", ErrConflict)
	ErrPromotionNotEligible = fmt.Errorf("%w: promotion conditions not met", ErrConflict)
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
