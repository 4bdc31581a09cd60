package payment

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentCancelled         = errors.New("payment cancelled")
	ErrPaymentFailed            = errors.New("payment failed")
	ErrPaymentTimeout           = errors.New("payment timed out")
	ErrPaymentAlreadyInProgress = errors.New("payment already in progress")
	ErrInvalidIntent            = errors.New("invalid payment intent")

	// ErrIncompleteCompletion is a completion callback missing the payment id or txid.
	ErrIncompleteCompletion = errors.New("completion without payment id or txid")

	errSDKUnspecified = errors.New("pi sdk reported an unspecified error")
)

// CancelledError is returned when the user cancels in the wallet.
type CancelledError struct {
	PaymentID string
}

func (e *CancelledError) Error() string {
	if e.PaymentID == "" {
		return ErrPaymentCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrPaymentCancelled, e.PaymentID)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrPaymentCancelled
}

// FailedError wraps whatever the SDK reported through onError, or the error
// that kept the flow from starting.
type FailedError struct {
	Err     error
	Payment *PaymentDTO
}

func (e *FailedError) Error() string {
	if e.Err == nil {
		return ErrPaymentFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrPaymentFailed, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

func (e *FailedError) Is(target error) bool {
	return target == ErrPaymentFailed
}
