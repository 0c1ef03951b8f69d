package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the call's deadline expires before a result arrives.
	ErrTimeout = errors.New("gateway rpc: timeout")

	// ErrCancelled is returned when the caller's context ends first. The context's own
	// error is wrapped alongside it.
	ErrCancelled = errors.New("gateway rpc: cancelled")
)

// HandshakeRejectedError is returned when the gateway answers connect with ok=false.
type HandshakeRejectedError struct {
	Code    string
	Message string
}

func (e *HandshakeRejectedError) Error() string {
	return "gateway connect failed: " + e.Message
}

// RPCError is returned when the gateway answers the method with ok=false. Message is the
// remote message verbatim.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("gateway rpc: %s failed: %s", e.Method, e.Message)
}

// TransportError reports that the connection failed, or closed before the call completed.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return "gateway rpc: transport: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a *TransportError. It is the usual
// shouldRetry predicate for middleware.RetryMiddleware.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
