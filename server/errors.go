package server

import (
	"errors"

	"clawdash/middleware"
)

// Error codes sent in failed responses.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeProtocolMismatch = "PROTOCOL_MISMATCH"
	CodeMethodNotFound   = "METHOD_NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// Error is returned by handlers to control the {code, message} of the failed response.
// Any other error is reported as INTERNAL with its text as the message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func toError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, middleware.ErrRateLimited) {
		return &Error{Code: CodeRateLimited, Message: err.Error()}
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
