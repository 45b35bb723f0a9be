package client

import (
	"errors"
	"fmt"

	"github.com/dm/dashsync/internal/model"
)

// Kind classifies a client failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is a malformed endpoint or request. Fatal to that call only.
	KindConfig
	// KindTransport is a connection failure or timeout.
	KindTransport
	// KindServer is a non-2xx response.
	KindServer
	// KindDecode is a response whose shape does not match the collection.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every DefaultClient call that fails.
type Error struct {
	Kind       Kind
	Collection model.Collection // empty for calls not tied to a collection
	StatusCode int              // KindServer only
	Body       string           // KindServer only, truncated
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindConfig:
		msg = fmt.Sprintf("invalid configuration: %v", e.Err)
	case KindTransport:
		msg = fmt.Sprintf("network error: %v", e.Err)
	case KindServer:
		msg = fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Body)
	case KindDecode:
		msg = fmt.Sprintf("data parsing error: %v", e.Err)
	default:
		msg = fmt.Sprintf("%v", e.Err)
	}
	if e.Collection != "" {
		return string(e.Collection) + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether waiting for the next sync cycle may fix the
// failure. Transport and server errors are retryable; config and decode
// errors are not.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindServer
}

// IsRetryable reports whether err is an *Error that is Retryable.
func IsRetryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Retryable()
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}
