package api

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every gateway failure. Callers match with
// errors.Is; ErrAuth must be treated as session invalidation.
var (
	ErrAuth       = errors.New("authentication rejected")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("request rejected")
	ErrServer     = errors.New("server error")
	ErrNetwork    = errors.New("network error")
)

// genericMessage is shown when the server response carries no usable
// message, mirroring the web client's fallback.
const genericMessage = "something went wrong"

// Error is a classified gateway failure. Kind is one of the sentinels
// above; Message is the server-supplied display message when present.
type Error struct {
	Kind       error
	StatusCode int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}

	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// classify maps an HTTP status to its error sentinel.
func classify(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 404:
		return ErrNotFound
	case status >= 400 && status < 500:
		return ErrValidation
	default:
		return ErrServer
	}
}
