package channel

import (
	"errors"
	"fmt"
)

// =============================================================================
// Channel Errors
// =============================================================================

// ClosedError is returned when operating on a closed channel.
type ClosedError struct{}

func (e *ClosedError) Error() string {
	return "channel is closed"
}

// NewClosedError creates a new ClosedError.
func NewClosedError() *ClosedError {
	return &ClosedError{}
}

// IsClosed reports whether err is a ClosedError.
func IsClosed(err error) bool {
	var ce *ClosedError
	return errors.As(err, &ce)
}

// InvalidEventError is returned for events missing required fields.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// NewInvalidEventError creates a new InvalidEventError.
func NewInvalidEventError(reason string) *InvalidEventError {
	return &InvalidEventError{Reason: reason}
}
