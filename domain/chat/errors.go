package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a caller names a session that has no messages
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole signals a message carrying a role outside the closed set
	ErrInvalidRole = errors.New("invalid role")

	// ErrNotImplemented marks a capability the adapter does not offer; do not retry
	ErrNotImplemented = errors.New("not implemented")

	// ErrNoAdapter is returned by a router whose binding was never set
	ErrNoAdapter = errors.New("no provider adapter configured")

	// ErrUnsupportedModel is returned when a provider/model pair is not in the configured set
	ErrUnsupportedModel = errors.New("unsupported provider/model pair")

	// ErrEmptyMessage is returned for a blank user message
	ErrEmptyMessage = errors.New("message is required")
)

// AdapterError wraps any failure at the provider/transport boundary
type AdapterError struct {
	Op       string
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError builds an AdapterError for provider/op wrapping err
func NewAdapterError(provider, op string, err error) *AdapterError {
	return &AdapterError{Op: op, Provider: provider, Err: err}
}

// IsAdapterError reports whether err carries an AdapterError
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}
