// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package errors holds the single error vocabulary surfaced to callers of the
// query builders and the auth state wrapper.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an Error. The taxonomy is flat.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuthentication
	KindDatabase
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindDatabase:
		return "database"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error codes produced locally, before any network call.
const (
	CodeFilterRequired    = "FILTER_REQUIRED"
	CodeCardinality       = "PGRST116"
	CodeDecodeFailed      = "DECODE_FAILED"
	CodeNotConfigured     = "NOT_CONFIGURED"
	CodeAlreadyConfigured = "ALREADY_CONFIGURED"
	CodeNoSession         = "NO_SESSION"
	CodeRefreshFailed     = "REFRESH_FAILED"
	CodeReservedColumn    = "RESERVED_COLUMN"
	CodeEmailNotVerified  = "EMAIL_NOT_CONFIRMED"
	CodeWeakPassword      = "WEAK_PASSWORD"
	CodePanic             = "PANIC"
)

// Error is the error type carried by every Failure.
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Hint    string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	cause := e.Cause.Error()
	if e.Message == "" {
		return cause
	}
	if strings.HasSuffix(e.Message, cause) {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, cause)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind and code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code != "" && e.Code == t.Code
}

var (
	ErrNotConfigured     = NewConfigurationError("client is not configured; call Init first", CodeNotConfigured, nil)
	ErrAlreadyConfigured = NewConfigurationError("client is already configured; call Reset before Init", CodeAlreadyConfigured, nil)
)

// NewNetworkError creates a network error
func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Cause: cause}
}

// NewAuthenticationError creates an authentication error with an optional backend code
func NewAuthenticationError(message, code string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Code: code, Cause: cause}
}

// NewDatabaseError creates a database error with optional code and hint
func NewDatabaseError(message, code, hint string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: message, Code: code, Hint: hint, Cause: cause}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message, code string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Code: code, Cause: cause}
}

// NewUnknownError creates an unknown error
func NewUnknownError(message string, cause error) *Error {
	return &Error{Kind: KindUnknown, Message: message, Cause: cause}
}

// Classify converts any error into an *Error. An *Error anywhere in the chain is
// returned as is; timeouts, cancellations and net.Error values become Network
// errors; everything else gets the fallback kind.
func Classify(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return NewNetworkError(err.Error(), err)
	}
	return &Error{Kind: fallback, Message: err.Error(), Cause: err}
}

// FromPanic converts a recovered panic value into an error of the given kind.
func FromPanic(recovered interface{}, kind Kind) *Error {
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%v", recovered)
	}
	return &Error{Kind: kind, Message: "unexpected panic", Code: CodePanic, Cause: cause}
}

// KindOf reports the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
