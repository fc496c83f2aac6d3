package api

import (
	"errors"
	"fmt"
)

// ErrSessionInvalid means the backend rejected the X-Session-Token. The
// caller decides whether that amounts to a logout; nothing here resets
// state on its own.
var ErrSessionInvalid = errors.New("session token rejected by backend")

// AuthError means the identity provider access token was rejected during
// session exchange.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// ValidationError covers client-side rejection of a request before any
// network traffic, and malformed server payloads.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NetworkError wraps a transport failure on an HTTP call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
