// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// Validation errors are raised synchronously, before any queue or transport
// interaction, and are never retried automatically.
var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceDisabled     = errors.New("device is disabled")
	ErrDeviceNotConnected = errors.New("device is not connected")
	ErrInvalidTransition  = errors.New("invalid device status transition")
	ErrQueueClosed        = errors.New("job queue is closed")
)

// TransportError wraps a failure in the injected transport. It moves the
// device to ERROR in the registry and is surfaced to the caller; retry is the
// caller's decision.
type TransportError struct {
	Op     string
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transport %s failed: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError for op wrapping err.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// EncodingError signals malformed template or transaction data.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding failed: %s", e.Reason)
}

// PaymentDeclinedError carries the terminal's decline reason.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}
