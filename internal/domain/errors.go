package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart                = errors.New("cart has no items to settle")
	ErrCounterpartyRequired     = errors.New("counterparty required")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrCreditLimitExceeded      = errors.New("credit limit exceeded")
	ErrInsufficientTender       = errors.New("insufficient tendered amount")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidDiscount          = errors.New("invalid discount")
	ErrUnknownProduct           = errors.New("unknown product")
)

// ValidationError is returned before anything is persisted. Err is one of the sentinels above.
type ValidationError struct {
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Err: err, Details: fmt.Sprintf(format, args...)}
}

// PersistenceError reports a failed write while settling. Records written by earlier steps
// stay committed.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("settlement failed at %s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError wrapping target (any sentinel when
// target is nil).
func IsValidation(err error, target error) bool {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	return target == nil || errors.Is(verr.Err, target)
}
