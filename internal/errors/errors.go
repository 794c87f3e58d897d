// Package errors implements the SDK's closed error taxonomy as a tagged
// variant, rather than a proliferation of sentinel error values. Every
// boundary in the SDK (transport, storage, RPC, queue) translates whatever
// it observes into one of the [Kind] values below before it crosses into
// caller-visible territory.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed taxonomy from which every caller-visible SDK error is
// drawn. New members are a breaking change for anyone pattern-matching on
// [Kind].
type Kind int

const (
	// Generic covers anything that doesn't fit a more specific kind.
	Generic Kind = iota
	// Database signals a storage/DAO failure.
	Database
	// Network signals a transport-level or server-side failure. Carries
	// a numeric code via [Error.Code].
	Network
	// Authentication signals invalid, expired, or revoked credentials.
	Authentication
	// InvalidParameter signals caller-supplied data the SDK rejected.
	// Carries [Error.Field].
	InvalidParameter
	// Timeout signals an operation exceeded its deadline. Carries
	// [Error.Deadline].
	Timeout
	// Disconnected signals the client is not connected.
	Disconnected
	// NotInitialized signals the SDK has not been configured.
	NotInitialized
)

func (k Kind) String() string {
	switch k {
	case Generic:
		return "generic"
	case Database:
		return "database"
	case Network:
		return "network"
	case Authentication:
		return "authentication"
	case InvalidParameter:
		return "invalid_parameter"
	case Timeout:
		return "timeout"
	case Disconnected:
		return "disconnected"
	case NotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// Error is the single error type carried across every SDK boundary. Kind
// selects which of the optional fields is meaningful.
type Error struct {
	Kind     Kind
	Message  string
	Code     int           // meaningful when Kind == Network
	Field    string        // meaningful when Kind == InvalidParameter
	Deadline time.Duration // meaningful when Kind == Timeout
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	switch e.Kind {
	case Network:
		return fmt.Sprintf("network error (code=%d): %s", e.Code, msg)
	case InvalidParameter:
		return fmt.Sprintf("invalid parameter %q: %s", e.Field, msg)
	case Timeout:
		return fmt.Sprintf("timeout after %s: %s", e.Deadline, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errors.New(SomeKind, "")) style matching on Kind
// alone, ignoring message/payload.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	if message == "" {
		message = "Unknown error"
	}
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewNetwork(code int, message string) *Error {
	return &Error{Kind: Network, Code: code, Message: message}
}

func NewInvalidParameter(field, message string) *Error {
	return &Error{Kind: InvalidParameter, Field: field, Message: message}
}

func NewTimeout(deadline time.Duration, message string) *Error {
	return &Error{Kind: Timeout, Deadline: deadline, Message: message}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, else
// Generic.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Generic
}
