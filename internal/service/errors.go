package service

import "fmt"

// ValidationError covers rejected checkout input: empty cart, missing
// shipping fields, unknown products. Surfaced to the caller as 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// GatewayError covers a rejected or unreachable payment gateway.
// Timeout distinguishes a deadline expiry from an outright rejection.
type GatewayError struct {
	Err     error
	Timeout bool
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway timeout: %v", e.Err)
	}
	return fmt.Sprintf("gateway error: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// PersistenceError covers a store write failure after the payment
// intent was already created. The orphaned intent is cancelled
// best-effort by the checkout flow before this error surfaces.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
